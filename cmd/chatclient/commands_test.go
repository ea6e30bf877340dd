package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/longapp/chat-client/internal/archive"
	"github.com/longapp/chat-client/internal/chat"
	"github.com/longapp/chat-client/internal/client"
	"github.com/longapp/chat-client/internal/protocol"
	"github.com/longapp/chat-client/internal/store"
)

type recordingSender struct {
	events []string
}

func (r *recordingSender) Send(event string, _ interface{}) error {
	r.events = append(r.events, event)
	return nil
}

// sessionDoer runs actions inline on a bare session.
type sessionDoer struct {
	s *client.Session
}

func (d sessionDoer) Do(_ context.Context, f func(*client.Session) error) error {
	return f(d.s)
}

func newTestSession(t *testing.T) (*client.Session, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	s := client.NewSession(client.Options{
		Sender:  sender,
		Backend: store.NewMemory(),
	})
	return s, sender
}

func TestParseLine(t *testing.T) {
	cases := []struct {
		line string
		ok   bool
		want command
	}{
		{"", false, command{}},
		{"   ", false, command{}},
		{"/", false, command{}},
		{"hello there", true, command{text: "hello there"}},
		{"  /Login alice pw ", true, command{name: "login", args: []string{"alice", "pw"}}},
		{"//not a command", true, command{text: "/not a command"}},
		{"/logout", true, command{name: "logout", args: []string{}}},
	}
	for _, tc := range cases {
		got, ok := parseLine(tc.line)
		if ok != tc.ok {
			t.Errorf("parseLine(%q) ok = %v, want %v", tc.line, ok, tc.ok)
			continue
		}
		if !ok {
			continue
		}
		if got.name != tc.want.name || got.text != tc.want.text || strings.Join(got.args, " ") != strings.Join(tc.want.args, " ") {
			t.Errorf("parseLine(%q) = %+v, want %+v", tc.line, got, tc.want)
		}
	}
}

func TestExecute_Usage(t *testing.T) {
	s, sender := newTestSession(t)
	p := newPrinter(&bytes.Buffer{}, false)

	for _, line := range []string{"/login alice", "/register a b", "/open", "/room a b", "/find", "/create", "/join"} {
		cmd, _ := parseLine(line)
		if err := execute(s, cmd, p); !errors.Is(err, errUsage) {
			t.Errorf("%s: expected usage error, got %v", line, err)
		}
	}
	if len(sender.events) != 0 {
		t.Errorf("expected nothing sent, got %v", sender.events)
	}
}

func TestExecute_Actions(t *testing.T) {
	s, sender := newTestSession(t)
	var out bytes.Buffer
	p := newPrinter(&out, false)

	run := func(line string) error {
		cmd, _ := parseLine(line)
		return execute(s, cmd, p)
	}

	if err := run("/open bob"); !errors.Is(err, client.ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
	if err := run("/login alice pw"); err != nil {
		t.Fatalf("/login error: %v", err)
	}
	if len(sender.events) != 1 || sender.events[0] != protocol.EventLogin {
		t.Errorf("expected LOGIN, got %v", sender.events)
	}
	if err := run("hello"); !errors.Is(err, client.ErrNoTarget) {
		t.Errorf("expected ErrNoTarget, got %v", err)
	}
	if err := run("/bogus"); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("expected unknown command error, got %v", err)
	}

	out.Reset()
	if err := run("/help"); err != nil {
		t.Fatalf("/help error: %v", err)
	}
	if !strings.Contains(out.String(), "/login <user> <password>") {
		t.Errorf("unexpected help output: %s", out.String())
	}

	out.Reset()
	if err := run("/history"); err != nil {
		t.Fatalf("/history error: %v", err)
	}
	if !strings.Contains(out.String(), "no conversation open") {
		t.Errorf("unexpected history output: %s", out.String())
	}
}

func TestReadCommands(t *testing.T) {
	s, sender := newTestSession(t)
	var out bytes.Buffer
	p := newPrinter(&out, false)

	input := strings.NewReader("\n/login alice pw\n/open bob\n")
	readCommands(context.Background(), input, sessionDoer{s}, p)

	if len(sender.events) != 1 || sender.events[0] != protocol.EventLogin {
		t.Errorf("expected LOGIN only, got %v", sender.events)
	}
	if !strings.Contains(out.String(), "not authenticated") {
		t.Errorf("expected the /open error to be printed, got %q", out.String())
	}
}

type fakeArchive struct {
	owner string
	peer  chat.Entry
	limit int
}

func (f *fakeArchive) Recent(_ context.Context, owner string, peer chat.Entry, limit int) ([]archive.Record, error) {
	f.owner, f.peer, f.limit = owner, peer, limit
	return []archive.Record{{Sender: "bob", Body: "archived hi", CreatedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}}, nil
}

func TestShowArchive(t *testing.T) {
	s, _ := newTestSession(t)
	var out bytes.Buffer
	p := newPrinter(&out, false)
	cmd, _ := parseLine("/archive 5")

	if err := showArchive(context.Background(), sessionDoer{s}, cmd, p); err == nil {
		t.Error("expected error while the archive is disabled")
	}

	fa := &fakeArchive{}
	p.archive = fa
	if err := showArchive(context.Background(), sessionDoer{s}, cmd, p); !errors.Is(err, client.ErrNoTarget) {
		t.Errorf("expected ErrNoTarget, got %v", err)
	}

	bad, _ := parseLine("/archive zero")
	if err := showArchive(context.Background(), sessionDoer{s}, bad, p); !errors.Is(err, errUsage) {
		t.Errorf("expected usage error, got %v", err)
	}
}

func TestPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out, true)

	if !p.ConfirmCall("bob") {
		t.Error("expected auto-accept")
	}
	p.MessageReceived(protocol.ChatMessage{Name: "dave", To: "team", Mes: "standup", Type: protocol.KindRoom})
	p.MessageReceived(protocol.ChatMessage{Name: "bob", To: "alice", Mes: "hi", Type: protocol.KindPerson})
	p.PresenceChanged("bob", chat.PresenceUnknown)
	p.PresenceChanged("bob", chat.PresenceOnline)

	text := out.String()
	for _, want := range []string{"accepting call from bob", "[team] dave: standup", "bob: hi", "bob is online"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output:\n%s", want, text)
		}
	}
	if strings.Contains(text, "unknown") {
		t.Errorf("expected unknown presence to be silent:\n%s", text)
	}

	if newPrinter(&out, false).ConfirmCall("bob") {
		t.Error("expected calls to be declined by default")
	}
}
