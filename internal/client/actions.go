package client

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/longapp/chat-client/internal/chat"
	"github.com/longapp/chat-client/internal/metrics"
	"github.com/longapp/chat-client/internal/protocol"
)

// Register creates an account and, on success, logs straight in.
func (s *Session) Register(user, pass, confirm string) error {
	if err := chat.ValidateRegistration(user, pass, confirm); err != nil {
		s.notice(LevelError, err.Error(), 0)
		return err
	}

	creds := protocol.Credentials{User: user, Pass: pass}
	s.registering = &creds
	s.screen = ScreenRegister
	if err := s.opts.Sender.Send(protocol.EventRegister, creds); err != nil {
		s.registering = nil
		return fmt.Errorf("client: register: %w", err)
	}
	return nil
}

// Login authenticates with a password.
func (s *Session) Login(user, pass string) error {
	if err := chat.ValidateLogin(user, pass); err != nil {
		s.notice(LevelError, err.Error(), 0)
		return err
	}

	s.pendingUser = user
	if err := s.opts.Sender.Send(protocol.EventLogin, protocol.Credentials{User: user, Pass: pass}); err != nil {
		s.pendingUser = ""
		return fmt.Errorf("client: login: %w", err)
	}
	return nil
}

// Logout tells the server, then clears the local session after the
// display delays.
func (s *Session) Logout() error {
	if err := s.opts.Sender.Send(protocol.EventLogout, nil); err != nil {
		log.Warn().Err(err).Msg("[session] LOGOUT not delivered, clearing local state anyway")
	}

	s.timers.stopAll()
	s.calls.End()
	s.notice(LevelInfo, "Signing out...", 0)
	s.after(s.opts.Delays.LogoutNotice, func() {
		s.notice(LevelSuccess, "Signed out", s.opts.Delays.LogoutClear)
		s.after(s.opts.Delays.LogoutClear, s.clearSession)
	})
	return nil
}

func (s *Session) clearSession() {
	if err := s.creds.Clear(s.ctx); err != nil {
		log.Warn().Err(err).Msg("[session] failed to clear credential")
	}
	user := s.user
	wasAuthenticated := s.authenticated

	s.authenticated = false
	s.user = ""
	s.pendingUser = ""
	s.registering = nil
	s.searching = ""
	s.displayName = ""
	s.list.Reset()
	s.history.Clear()
	s.presence.Reset("")
	s.tracker.Reset()

	if wasAuthenticated {
		s.notifier.AuthChanged(user, false)
	}
	s.notifier.DisplayNameChanged("")
	s.notifier.ListChanged(nil)
	s.navigate(ScreenLogin, "")
}

// OpenConversation makes target the open conversation and loads its
// history, plus the peer's presence for direct conversations.
func (s *Session) OpenConversation(target chat.Entry) error {
	if !s.authenticated {
		return ErrNotAuthenticated
	}
	if target.IsRoom() {
		if err := chat.ValidateRoomName(target.Name); err != nil {
			return err
		}
	} else if err := chat.ValidateUsername(target.Name); err != nil {
		return err
	}
	return s.openConversation(target)
}

func (s *Session) openConversation(target chat.Entry) error {
	s.promote(target)
	if s.history.IsTarget(target) {
		s.navigate(ScreenChat, target.Name)
		return nil
	}

	s.history.Reset(target)
	if target.IsRoom() {
		s.presence.Reset("")
	} else {
		s.presence.Reset(target.Name)
	}
	_, state := s.presence.State()
	s.notifier.HistoryLoaded(target, nil)
	s.notifier.PresenceChanged(target.Name, state)
	s.navigate(ScreenChat, target.Name)
	return s.loadConversation(target)
}

func (s *Session) loadConversation(target chat.Entry) error {
	if target.IsRoom() {
		return s.request(protocol.EventRoomHistory, protocol.HistoryQuery{Name: target.Name, Page: 1}, target.Name, target.Type)
	}
	if err := s.request(protocol.EventPeopleHistory, protocol.HistoryQuery{Name: target.Name, Page: 1}, target.Name, target.Type); err != nil {
		return err
	}
	return s.request(protocol.EventCheckUserOnline, protocol.UserQuery{User: target.Name}, target.Name, target.Type)
}

// CloseConversation returns to the home screen.
func (s *Session) CloseConversation() {
	s.history.Clear()
	s.presence.Reset("")
	s.navigate(ScreenHome, "")
}

// SendChat sends text to the open conversation.
func (s *Session) SendChat(text string) error {
	target, ok := s.history.Target()
	if !ok {
		return ErrNoTarget
	}
	return s.SendChatTo(target, text)
}

// SendChatTo sends text to target. The message is appended to the history
// right away when target is the open conversation.
func (s *Session) SendChatTo(target chat.Entry, text string) error {
	if !s.authenticated {
		return ErrNotAuthenticated
	}
	if target.Name == "" {
		return ErrNoTarget
	}
	if err := chat.ValidateMessage(text); err != nil {
		return err
	}

	out := protocol.SendChat{Type: target.Type.ChatType(), To: target.Name, Mes: text}
	if err := s.opts.Sender.Send(protocol.EventSendChat, out); err != nil {
		return fmt.Errorf("client: send chat: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues("sent").Inc()

	msg := protocol.ChatMessage{
		Name:     s.user,
		To:       target.Name,
		Mes:      text,
		CreateAt: time.Now().UTC().Format(chat.TimestampLayout),
		Type:     protocol.KindPerson,
	}
	if target.IsRoom() {
		msg.Type = protocol.KindRoom
	}
	if s.history.IsTarget(target) {
		if stamped, ok := s.history.Append(msg); ok {
			s.notifier.MessageAppended(target, stamped)
		}
	}
	s.notifier.MessageSent(msg)
	s.promote(target)
	return nil
}

// CheckUserExist looks a user up and opens a conversation if found.
func (s *Session) CheckUserExist(name string) error {
	if !s.authenticated {
		return ErrNotAuthenticated
	}
	if err := chat.ValidateUsername(name); err != nil {
		s.notice(LevelError, err.Error(), 0)
		return err
	}
	s.searching = name
	if err := s.request(protocol.EventCheckUserExist, protocol.UserQuery{User: name}, name, chat.KindPerson); err != nil {
		s.searching = ""
		return fmt.Errorf("client: check user: %w", err)
	}
	return nil
}

// CreateRoom creates a room and adds it to the chat list.
func (s *Session) CreateRoom(name string) error {
	return s.roomRequest(protocol.EventCreateRoom, name)
}

// JoinRoom joins a room and adds it to the chat list.
func (s *Session) JoinRoom(name string) error {
	return s.roomRequest(protocol.EventJoinRoom, name)
}

func (s *Session) roomRequest(event, name string) error {
	if !s.authenticated {
		return ErrNotAuthenticated
	}
	if err := chat.ValidateRoomName(name); err != nil {
		return err
	}
	if err := s.request(event, protocol.RoomQuery{Name: name}, name, chat.KindRoom); err != nil {
		return fmt.Errorf("client: %s: %w", event, err)
	}
	s.promote(chat.Room(name))
	return nil
}

// StartCall calls the peer of the open direct conversation.
func (s *Session) StartCall() error {
	target, ok := s.history.Target()
	if !ok {
		return ErrNoTarget
	}
	if target.IsRoom() {
		return ErrRoomCall
	}
	if err := s.calls.Start(s.ctx, target.Name); err != nil {
		s.notice(LevelError, "Call failed: "+err.Error(), s.opts.Delays.Display)
		return err
	}
	return nil
}

// EndCall hangs up.
func (s *Session) EndCall() {
	s.calls.End()
}
