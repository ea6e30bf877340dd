package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SyntheticSource produces a headless call's local media: an Opus track
// carrying silence and an idle VP8 track.
type SyntheticSource struct {
	StreamID string
}

func (s SyntheticSource) Acquire(ctx context.Context) (Media, error) {
	stream := s.StreamID
	if stream == "" {
		stream = "chatclient"
	}
	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", stream)
	if err != nil {
		return nil, fmt.Errorf("call: audio track: %w", err)
	}
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", stream)
	if err != nil {
		return nil, fmt.Errorf("call: video track: %w", err)
	}

	m := &SampleMedia{
		audio: audio,
		video: video,
		done:  make(chan struct{}),
	}
	go m.pump()
	return m, nil
}

// SampleMedia holds locally generated tracks.
type SampleMedia struct {
	audio *webrtc.TrackLocalStaticSample
	video *webrtc.TrackLocalStaticSample

	done     chan struct{}
	stopOnce sync.Once
}

// Tracks returns the tracks to add to a peer connection.
func (m *SampleMedia) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{m.audio, m.video}
}

// Stop ends sample generation.
func (m *SampleMedia) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *SampleMedia) pump() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_ = m.audio.WriteSample(media.Sample{Data: opusSilence, Duration: 20 * time.Millisecond})
		}
	}
}
