package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/longapp/chat-client/internal/archive"
	"github.com/longapp/chat-client/internal/call"
	"github.com/longapp/chat-client/internal/chat"
	"github.com/longapp/chat-client/internal/client"
	"github.com/longapp/chat-client/internal/protocol"
)

// recentSource is the read side of the message archive.
type recentSource interface {
	Recent(ctx context.Context, owner string, peer chat.Entry, limit int) ([]archive.Record, error)
}

// printer renders session effects as terminal lines.
type printer struct {
	client.NopNotifier

	mu         sync.Mutex
	w          io.Writer
	autoAccept bool
	archive    recentSource
}

func newPrinter(w io.Writer, autoAccept bool) *printer {
	return &printer{w: w, autoAccept: autoAccept}
}

func (p *printer) printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) errorf(err error) {
	p.printf("! %v", err)
}

func formatMessage(msg protocol.ChatMessage) string {
	if msg.IsRoom() {
		return fmt.Sprintf("[%s] %s: %s", msg.To, msg.Name, msg.Mes)
	}
	return fmt.Sprintf("%s: %s", msg.Name, msg.Mes)
}

func (p *printer) Navigate(screen client.Screen, target string) {
	if target != "" {
		p.printf("-- %s: %s", screen, target)
		return
	}
	p.printf("-- %s", screen)
}

func (p *printer) Notice(n client.Notice) {
	p.printf("[%s] %s", n.Level, n.Text)
}

func (p *printer) Sound() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.w, "\a")
}

func (p *printer) ConfirmCall(from string) bool {
	if p.autoAccept {
		p.printf("-- accepting call from %s", from)
	} else {
		p.printf("-- declined call from %s (run with --auto-accept-calls to accept)", from)
	}
	return p.autoAccept
}

func (p *printer) ConnectionChanged(connected bool) {
	if connected {
		p.printf("-- connected")
	} else {
		p.printf("-- disconnected, reconnecting")
	}
}

func (p *printer) AuthChanged(user string, authenticated bool) {
	if authenticated {
		p.printf("-- signed in as %s", user)
	} else {
		p.printf("-- signed out")
	}
}

func (p *printer) HistoryLoaded(target chat.Entry, messages []protocol.ChatMessage) {
	if len(messages) == 0 {
		return
	}
	p.printf("-- %s %s, %d messages", target.Type, target.Name, len(messages))
	for _, m := range messages {
		p.printf("   %s", formatMessage(m))
	}
}

func (p *printer) MessageReceived(msg protocol.ChatMessage) {
	p.printf("%s", formatMessage(msg))
}

func (p *printer) PresenceChanged(target string, state chat.PresenceState) {
	if target == "" || state == chat.PresenceUnknown {
		return
	}
	p.printf("-- %s is %s", target, state)
}

func (p *printer) DisplayNameChanged(name string) {
	if name != "" {
		p.printf("-- display name: %s", name)
	}
}

func (p *printer) CallStateChanged(state call.State, peer string) {
	if peer == "" {
		p.printf("-- call %s", state)
		return
	}
	p.printf("-- call %s (%s)", state, peer)
}

func (p *printer) printList(entries []chat.Entry) {
	if len(entries) == 0 {
		p.printf("-- no conversations")
		return
	}
	for i, e := range entries {
		p.printf("%2d. %s (%s)", i+1, e.Name, e.Type)
	}
}

func (p *printer) printHistory(snap client.Snapshot) {
	if snap.Target == nil {
		p.printf("-- no conversation open")
		return
	}
	p.printf("-- %s %s (%s)", snap.Target.Type, snap.Target.Name, snap.Presence)
	for _, m := range snap.History {
		p.printf("   %s %s", m.CreateAt, formatMessage(m))
	}
}

const helpText = `commands:
  /register <user> <password> <password>
  /login <user> <password>
  /logout
  /open <user>          open a direct conversation
  /room <name>          open a room
  /close                back to the conversation list
  /find <user>          look a user up and open the conversation
  /create <room>        create a room
  /join <room>          join a room
  /call                 call the open direct conversation
  /hangup               end the call
  /list                 show conversations
  /history              show the open conversation
  /archive [n]          show archived messages of the open conversation
  //text                send text starting with a slash
anything else is sent to the open conversation`

func (p *printer) help() {
	p.printf("%s", helpText)
}
