package client

import (
	"time"

	"github.com/longapp/chat-client/internal/call"
	"github.com/longapp/chat-client/internal/chat"
	"github.com/longapp/chat-client/internal/protocol"
)

// Screen is a coarse navigation target for the embedding application.
type Screen string

const (
	ScreenLogin    Screen = "login"
	ScreenRegister Screen = "register"
	ScreenHome     Screen = "home"
	ScreenChat     Screen = "chat"
)

// Level classifies a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a transient message for the user. A non-zero Timeout asks the
// embedder to dismiss it after that long.
type Notice struct {
	Level   Level
	Text    string
	Timeout time.Duration
}

// Notifier receives the effects of the session state machine. All methods
// are called from the event loop and must not block.
type Notifier interface {
	Navigate(screen Screen, target string)
	Notice(n Notice)
	Sound()
	// ConfirmCall asks whether to accept an incoming call.
	ConfirmCall(from string) bool

	ConnectionChanged(connected bool)
	AuthChanged(user string, authenticated bool)
	ListChanged(entries []chat.Entry)
	HistoryLoaded(target chat.Entry, messages []protocol.ChatMessage)
	MessageAppended(target chat.Entry, msg protocol.ChatMessage)
	MessageReceived(msg protocol.ChatMessage)
	MessageSent(msg protocol.ChatMessage)
	PresenceChanged(target string, state chat.PresenceState)
	DisplayNameChanged(name string)
	CallStateChanged(state call.State, peer string)
}

// NopNotifier ignores every effect and declines calls. Embed it to
// implement only part of Notifier.
type NopNotifier struct{}

func (NopNotifier) Navigate(Screen, string)                          {}
func (NopNotifier) Notice(Notice)                                    {}
func (NopNotifier) Sound()                                           {}
func (NopNotifier) ConfirmCall(string) bool                          { return false }
func (NopNotifier) ConnectionChanged(bool)                           {}
func (NopNotifier) AuthChanged(string, bool)                         {}
func (NopNotifier) ListChanged([]chat.Entry)                         {}
func (NopNotifier) HistoryLoaded(chat.Entry, []protocol.ChatMessage) {}
func (NopNotifier) MessageAppended(chat.Entry, protocol.ChatMessage) {}
func (NopNotifier) MessageReceived(protocol.ChatMessage)             {}
func (NopNotifier) MessageSent(protocol.ChatMessage)                 {}
func (NopNotifier) PresenceChanged(string, chat.PresenceState)       {}
func (NopNotifier) DisplayNameChanged(string)                        {}
func (NopNotifier) CallStateChanged(call.State, string)              {}

// Notifiers fans every effect out to all members. A call is accepted when
// any member accepts it.
type Notifiers []Notifier

func (ns Notifiers) Navigate(screen Screen, target string) {
	for _, n := range ns {
		n.Navigate(screen, target)
	}
}

func (ns Notifiers) Notice(notice Notice) {
	for _, n := range ns {
		n.Notice(notice)
	}
}

func (ns Notifiers) Sound() {
	for _, n := range ns {
		n.Sound()
	}
}

func (ns Notifiers) ConfirmCall(from string) bool {
	accepted := false
	for _, n := range ns {
		if n.ConfirmCall(from) {
			accepted = true
		}
	}
	return accepted
}

func (ns Notifiers) ConnectionChanged(connected bool) {
	for _, n := range ns {
		n.ConnectionChanged(connected)
	}
}

func (ns Notifiers) AuthChanged(user string, authenticated bool) {
	for _, n := range ns {
		n.AuthChanged(user, authenticated)
	}
}

func (ns Notifiers) ListChanged(entries []chat.Entry) {
	for _, n := range ns {
		n.ListChanged(entries)
	}
}

func (ns Notifiers) HistoryLoaded(target chat.Entry, messages []protocol.ChatMessage) {
	for _, n := range ns {
		n.HistoryLoaded(target, messages)
	}
}

func (ns Notifiers) MessageAppended(target chat.Entry, msg protocol.ChatMessage) {
	for _, n := range ns {
		n.MessageAppended(target, msg)
	}
}

func (ns Notifiers) MessageReceived(msg protocol.ChatMessage) {
	for _, n := range ns {
		n.MessageReceived(msg)
	}
}

func (ns Notifiers) MessageSent(msg protocol.ChatMessage) {
	for _, n := range ns {
		n.MessageSent(msg)
	}
}

func (ns Notifiers) PresenceChanged(target string, state chat.PresenceState) {
	for _, n := range ns {
		n.PresenceChanged(target, state)
	}
}

func (ns Notifiers) DisplayNameChanged(name string) {
	for _, n := range ns {
		n.DisplayNameChanged(name)
	}
}

func (ns Notifiers) CallStateChanged(state call.State, peer string) {
	for _, n := range ns {
		n.CallStateChanged(state, peer)
	}
}
