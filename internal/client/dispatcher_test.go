package client

import (
	"testing"

	"github.com/longapp/chat-client/internal/protocol"
)

func TestDispatcher_RoutesByEvent(t *testing.T) {
	d := NewDispatcher()
	var got []string
	d.Register(protocol.EventLogin, func(in protocol.Inbound) { got = append(got, "login") })
	d.Register(protocol.EventSendChat, func(in protocol.Inbound) { got = append(got, "chat") })

	if !d.Dispatch(protocol.Inbound{Seq: 1, Event: protocol.EventSendChat}) {
		t.Error("expected SEND_CHAT to be handled")
	}
	if !d.Dispatch(protocol.Inbound{Seq: 2, Event: protocol.EventLogin}) {
		t.Error("expected LOGIN to be handled")
	}
	if len(got) != 2 || got[0] != "chat" || got[1] != "login" {
		t.Errorf("unexpected handler order: %v", got)
	}
}

func TestDispatcher_UnknownEvent(t *testing.T) {
	d := NewDispatcher()
	if d.Dispatch(protocol.Inbound{Seq: 1, Event: "SOMETHING_NEW"}) {
		t.Error("expected unknown event to be ignored")
	}
	if d.Dispatch(protocol.Inbound{Seq: 2}) {
		t.Error("expected frame without event to be ignored")
	}
}

func TestDispatcher_SkipsProcessedFrames(t *testing.T) {
	d := NewDispatcher()
	calls := 0
	d.Register(protocol.EventSendChat, func(protocol.Inbound) { calls++ })

	in := protocol.Inbound{Seq: 5, Event: protocol.EventSendChat}
	d.Dispatch(in)
	if d.Dispatch(in) {
		t.Error("expected redelivered frame to be skipped")
	}
	if d.Dispatch(protocol.Inbound{Seq: 4, Event: protocol.EventSendChat}) {
		t.Error("expected older frame to be skipped")
	}
	d.Dispatch(protocol.Inbound{Seq: 6, Event: protocol.EventSendChat})
	if calls != 2 {
		t.Errorf("expected 2 handler calls, got %d", calls)
	}
}

func TestDispatcher_UnstampedFramesAlwaysRun(t *testing.T) {
	d := NewDispatcher()
	calls := 0
	d.Register(protocol.EventLogin, func(protocol.Inbound) { calls++ })

	d.Dispatch(protocol.Inbound{Seq: 3, Event: protocol.EventLogin})
	d.Dispatch(protocol.Inbound{Event: protocol.EventLogin})
	d.Dispatch(protocol.Inbound{Event: protocol.EventLogin})
	if calls != 3 {
		t.Errorf("expected 3 handler calls, got %d", calls)
	}
}

func TestDispatcher_RegisterReplaces(t *testing.T) {
	d := NewDispatcher()
	which := ""
	d.Register(protocol.EventLogin, func(protocol.Inbound) { which = "first" })
	d.Register(protocol.EventLogin, func(protocol.Inbound) { which = "second" })
	d.Dispatch(protocol.Inbound{Event: protocol.EventLogin})
	if which != "second" {
		t.Errorf("expected replaced handler to run, got %q", which)
	}
}
