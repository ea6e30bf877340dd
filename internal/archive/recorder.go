package archive

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/longapp/chat-client/internal/client"
	"github.com/longapp/chat-client/internal/protocol"
)

// Sink persists records. Store implements it.
type Sink interface {
	Insert(ctx context.Context, r Record) error
}

// WriteTimeout bounds a single insert.
const WriteTimeout = 5 * time.Second

// Recorder is a client.Notifier that archives every message the session
// sends or receives. Inserts run on a background goroutine; when the queue
// is full, records are dropped and logged.
type Recorder struct {
	client.NopNotifier

	sink  Sink
	queue chan Record
	done  chan struct{}

	mu    sync.Mutex
	owner string
	once  sync.Once
}

// NewRecorder starts a Recorder writing to sink.
func NewRecorder(sink Sink, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	r := &Recorder{
		sink:  sink,
		queue: make(chan Record, queueSize),
		done:  make(chan struct{}),
	}
	go r.loop()
	return r
}

// AuthChanged tracks whose messages are being archived.
func (r *Recorder) AuthChanged(user string, authenticated bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if authenticated {
		r.owner = user
	} else {
		r.owner = ""
	}
}

// MessageReceived archives an inbound message.
func (r *Recorder) MessageReceived(msg protocol.ChatMessage) { r.record(msg) }

// MessageSent archives an outbound message.
func (r *Recorder) MessageSent(msg protocol.ChatMessage) { r.record(msg) }

func (r *Recorder) record(msg protocol.ChatMessage) {
	if msg.IsSignal() {
		return
	}
	r.mu.Lock()
	owner := r.owner
	r.mu.Unlock()
	if owner == "" {
		return
	}

	select {
	case r.queue <- NewRecord(owner, msg):
	default:
		log.Warn().Msgf("[archive] queue full, dropping message from %s", msg.Name)
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), WriteTimeout)
		if err := r.sink.Insert(ctx, rec); err != nil {
			log.Warn().Err(err).Msg("[archive] insert failed")
		}
		cancel()
	}
}

// Close flushes queued records and stops the writer. The Recorder must not
// receive messages afterwards.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.queue) })
	<-r.done
}
