package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/longapp/chat-client/internal/chat"
	"github.com/longapp/chat-client/internal/client"
)

var errUsage = errors.New("usage")

// doer runs f on the session's event loop. client.Runner implements it.
type doer interface {
	Do(ctx context.Context, f func(s *client.Session) error) error
}

// command is one parsed input line. Plain text has an empty name.
type command struct {
	name string
	args []string
	text string
}

// parseLine parses an input line. Blank lines report false.
func parseLine(line string) (command, bool) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return command{}, false
	case strings.HasPrefix(line, "//"):
		return command{text: line[1:]}, true
	case !strings.HasPrefix(line, "/"):
		return command{text: line}, true
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

func usage(form string) error {
	return fmt.Errorf("%w: %s", errUsage, form)
}

// execute runs cmd against the session. It must be called on the loop.
func execute(s *client.Session, cmd command, p *printer) error {
	arg := func(n int) bool { return len(cmd.args) == n }

	switch cmd.name {
	case "":
		return s.SendChat(cmd.text)
	case "register":
		if !arg(3) {
			return usage("/register <user> <password> <password>")
		}
		return s.Register(cmd.args[0], cmd.args[1], cmd.args[2])
	case "login":
		if !arg(2) {
			return usage("/login <user> <password>")
		}
		return s.Login(cmd.args[0], cmd.args[1])
	case "logout":
		return s.Logout()
	case "open":
		if !arg(1) {
			return usage("/open <user>")
		}
		return s.OpenConversation(chat.Person(cmd.args[0]))
	case "room":
		if !arg(1) {
			return usage("/room <name>")
		}
		return s.OpenConversation(chat.Room(cmd.args[0]))
	case "close":
		s.CloseConversation()
		return nil
	case "find":
		if !arg(1) {
			return usage("/find <user>")
		}
		return s.CheckUserExist(cmd.args[0])
	case "create":
		if !arg(1) {
			return usage("/create <room>")
		}
		return s.CreateRoom(cmd.args[0])
	case "join":
		if !arg(1) {
			return usage("/join <room>")
		}
		return s.JoinRoom(cmd.args[0])
	case "call":
		return s.StartCall()
	case "hangup":
		s.EndCall()
		return nil
	case "list":
		p.printList(s.Snapshot().Entries)
		return nil
	case "history":
		p.printHistory(s.Snapshot())
		return nil
	case "help":
		p.help()
		return nil
	default:
		return fmt.Errorf("unknown command /%s, try /help", cmd.name)
	}
}

// readCommands executes lines from r until r is exhausted or the loop stops.
func readCommands(ctx context.Context, r io.Reader, d doer, p *printer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}

		var err error
		if cmd.name == "archive" {
			err = showArchive(ctx, d, cmd, p)
		} else {
			err = d.Do(ctx, func(s *client.Session) error { return execute(s, cmd, p) })
		}
		if errors.Is(err, client.ErrStopped) || ctx.Err() != nil {
			return
		}
		if err != nil {
			p.errorf(err)
		}
	}
}

// showArchive queries the archive off the loop.
func showArchive(ctx context.Context, d doer, cmd command, p *printer) error {
	if p.archive == nil {
		return errors.New("archive disabled, set --database-url")
	}
	limit := 20
	if len(cmd.args) == 1 {
		n, err := strconv.Atoi(cmd.args[0])
		if err != nil || n <= 0 {
			return usage("/archive [n]")
		}
		limit = n
	}

	var owner string
	var target chat.Entry
	err := d.Do(ctx, func(s *client.Session) error {
		owner = s.User()
		t, ok := s.Target()
		if !ok {
			return client.ErrNoTarget
		}
		target = t
		return nil
	})
	if err != nil {
		return err
	}

	records, err := p.archive.Recent(ctx, owner, target, limit)
	if err != nil {
		return err
	}
	p.printf("-- archive %s, %d messages", target.Name, len(records))
	for _, r := range records {
		p.printf("   %s %s: %s", r.CreatedAt.Format("2006-01-02 15:04:05"), r.Sender, r.Body)
	}
	return nil
}
