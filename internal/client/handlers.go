package client

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/longapp/chat-client/internal/chat"
	"github.com/longapp/chat-client/internal/metrics"
	"github.com/longapp/chat-client/internal/protocol"
)

func (s *Session) registerHandlers() {
	s.dispatcher.Register(protocol.EventRegister, s.handleRegister)
	s.dispatcher.Register(protocol.EventLogin, s.handleLogin)
	s.dispatcher.Register(protocol.EventReLogin, s.handleReLogin)
	s.dispatcher.Register(protocol.EventPeopleHistory, func(in protocol.Inbound) { s.handleHistory(in, chat.KindPerson) })
	s.dispatcher.Register(protocol.EventRoomHistory, func(in protocol.Inbound) { s.handleHistory(in, chat.KindRoom) })
	s.dispatcher.Register(protocol.EventSendChat, s.handleSendChat)
	s.dispatcher.Register(protocol.EventCheckUserExist, s.handleCheckUserExist)
	s.dispatcher.Register(protocol.EventCreateRoom, s.handleRoom)
	s.dispatcher.Register(protocol.EventJoinRoom, s.handleRoom)
	s.dispatcher.Register(protocol.EventCheckUserOnline, s.handleUserOnline)
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

// registrationErrors maps server error texts to user-facing messages.
var registrationErrors = []struct {
	match string
	text  string
}{
	{"Username containt whitespace", "username must not contain whitespace"},
	{"User already exists", "username already exists, please choose another one"},
	{"Username contain special character", "username must not contain special characters"},
}

// RegistrationError translates a REGISTER failure text. Unknown texts pass
// through unchanged.
func RegistrationError(serverText string) string {
	if serverText == "" {
		return "unknown error"
	}
	for _, e := range registrationErrors {
		if strings.Contains(serverText, e.match) {
			return e.text
		}
	}
	return serverText
}

func (s *Session) handleRegister(in protocol.Inbound) {
	flow := s.registering
	s.registering = nil

	if !in.Succeeded() {
		s.pendingUser = ""
		s.notice(LevelError, "Registration failed: "+RegistrationError(in.ErrorText()), 0)
		return
	}

	if flow == nil {
		s.notice(LevelSuccess, "Registration succeeded", 0)
		s.navigate(ScreenLogin, "")
		return
	}

	s.notice(LevelSuccess, "Registration succeeded, signing in...", 0)
	s.pendingUser = flow.User
	if err := s.opts.Sender.Send(protocol.EventLogin, *flow); err != nil {
		s.pendingUser = ""
		s.notice(LevelError, fmt.Sprintf("Login failed: %v", err), 0)
	}
}

func (s *Session) handleLogin(in protocol.Inbound) {
	user := s.pendingUser
	s.pendingUser = ""

	if !in.Succeeded() {
		s.registering = nil
		s.notice(LevelError, "Login failed. Please check your username and password.", 0)
		return
	}
	if user == "" {
		log.Warn().Msg("[session] LOGIN success without a pending login")
		return
	}

	if code := in.ReLoginCode(); code != "" {
		if err := s.creds.Save(s.ctx, user, code); err != nil {
			log.Warn().Err(err).Msg("[session] failed to store credential")
		}
	}
	s.onAuthenticated(user)

	s.notice(LevelSuccess, "Login succeeded. Opening home...", s.opts.Delays.Display)
	s.after(s.opts.Delays.Display, func() {
		if s.authenticated {
			s.navigate(ScreenHome, "")
		}
	})
}

func (s *Session) handleReLogin(in protocol.Inbound) {
	s.checking = false
	if s.checkTimer != nil {
		s.checkTimer.Stop()
		s.checkTimer = nil
	}

	if !in.Succeeded() {
		log.Info().Msg("[session] stored session rejected")
		if s.authenticated {
			s.authenticated = false
			s.notifier.AuthChanged(s.user, false)
		}
		s.navigate(ScreenLogin, "")
		return
	}

	if code := in.ReLoginCode(); code != "" {
		if err := s.creds.UpdateToken(s.ctx, code); err != nil {
			log.Warn().Err(err).Msg("[session] failed to refresh credential")
		}
	}
	user, err := s.creds.Username(s.ctx)
	if err != nil || user == "" {
		log.Warn().Err(err).Msg("[session] resumed session without a stored username")
		user = s.user
	}
	if user == "" {
		return
	}
	log.Info().Msgf("[session] resumed session for %s", user)
	s.onAuthenticated(user)

	if s.screen == "" || s.screen == ScreenLogin || s.screen == ScreenRegister {
		s.navigate(ScreenHome, "")
	}
}

// onAuthenticated loads the user's state after LOGIN or RE_LOGIN.
func (s *Session) onAuthenticated(user string) {
	changed := !s.authenticated || s.user != user
	s.authenticated = true
	s.user = user
	s.registering = nil

	if err := s.list.Load(s.ctx, user); err != nil {
		log.Warn().Err(err).Msg("[session] failed to load chat list")
	}
	if changed {
		s.notifier.AuthChanged(user, true)
	}
	s.notifier.ListChanged(s.list.Entries())

	// The self conversation carries the display name.
	if err := s.request(protocol.EventPeopleHistory, protocol.HistoryQuery{Name: user, Page: 1}, user, chat.KindPerson); err != nil {
		log.Warn().Err(err).Msg("[session] failed to request own history")
	}

	// After a reconnect, resync the conversation that was open.
	if target, ok := s.history.Target(); ok && !(target.Name == user && !target.IsRoom()) {
		s.loadConversation(target)
	}
}

// ---------------------------------------------------------------------------
// History and presence
// ---------------------------------------------------------------------------

func (s *Session) handleHistory(in protocol.Inbound, kind chat.Kind) {
	req, ok := s.resolve(in.Event)
	page, isPage := in.ChatMessages()
	if !in.Succeeded() || !isPage {
		log.Debug().Msgf("[session] %s without a page: %s", in.Event, in.ErrorText())
		return
	}
	if !ok {
		metrics.StaleResponses.WithLabelValues(in.Event).Inc()
		log.Debug().Msgf("[session] dropping uncorrelated %s", in.Event)
		return
	}

	target := chat.Entry{Name: req.Subject, Type: kind}
	if s.history.Replace(target, page) {
		s.notifier.HistoryLoaded(target, s.history.Messages())
	} else {
		metrics.StaleResponses.WithLabelValues(in.Event).Inc()
	}

	if kind == chat.KindPerson && req.Subject == s.user {
		s.scanDisplayName(page)
	}
}

// scanDisplayName picks the display name from the oldest annotation the
// user left in their own conversation (page given newest first). Annotations
// have type 5 or the literal label "people"; numeric 0 is an ordinary message.
func (s *Session) scanDisplayName(page []protocol.ChatMessage) {
	for i := len(page) - 1; i >= 0; i-- {
		m := page[i]
		if m.Type != protocol.KindAnnotation && m.TypeLabel != string(protocol.ChatPeople) {
			continue
		}
		if m.Name != s.user || m.IsSignal() {
			continue
		}
		if m.Mes != s.displayName {
			s.displayName = m.Mes
			s.notifier.DisplayNameChanged(m.Mes)
		}
		return
	}
}

func (s *Session) handleUserOnline(in protocol.Inbound) {
	req, ok := s.resolve(in.Event)
	if !ok {
		metrics.StaleResponses.WithLabelValues(in.Event).Inc()
		return
	}
	if !s.presence.Set(req.Subject, in.Succeeded()) {
		metrics.StaleResponses.WithLabelValues(in.Event).Inc()
		return
	}
	target, state := s.presence.State()
	s.notifier.PresenceChanged(target, state)
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

func (s *Session) handleSendChat(in protocol.Inbound) {
	if !in.Succeeded() {
		log.Warn().Msgf("[session] SEND_CHAT failed: %s", in.ErrorText())
		return
	}
	msg, err := in.ChatMessage()
	if err != nil {
		log.Warn().Err(err).Msg("[session] unreadable chat message")
		return
	}

	if msg.IsSignal() {
		metrics.MessagesTotal.WithLabelValues("signal").Inc()
		if msg.Name == s.user {
			return
		}
		sig, err := protocol.DecodeSignal(msg.Mes)
		if err != nil {
			log.Warn().Err(err).Msgf("[session] bad signal from %s", msg.Name)
			return
		}
		if err := s.calls.HandleSignal(s.ctx, msg.Name, sig); err != nil {
			log.Warn().Err(err).Msgf("[session] call signal from %s", msg.Name)
			s.notice(LevelError, "Call failed: "+err.Error(), s.opts.Delays.Display)
		}
		return
	}

	if msg.Name == "" || msg.Name == s.user {
		return
	}
	metrics.MessagesTotal.WithLabelValues("received").Inc()
	s.notifier.MessageReceived(msg)

	if target, ok := s.history.Target(); ok {
		inRoom := msg.IsRoom() && target.IsRoom() && msg.To == target.Name
		fromPeer := !msg.IsRoom() && !target.IsRoom() && msg.Name == target.Name
		if inRoom || fromPeer {
			if stamped, ok := s.history.Append(msg); ok {
				s.notifier.MessageAppended(target, stamped)
			} else {
				metrics.MessagesTotal.WithLabelValues("duplicate").Inc()
			}
		}
	}

	s.notifier.Sound()
	if msg.IsRoom() {
		s.promote(chat.Room(msg.To))
	} else {
		s.promote(chat.Person(msg.Name))
	}
}

// ---------------------------------------------------------------------------
// Search and rooms
// ---------------------------------------------------------------------------

func (s *Session) handleCheckUserExist(in protocol.Inbound) {
	name := s.searching
	if req, ok := s.resolve(in.Event); ok {
		name = req.Subject
	}
	s.searching = ""

	if !in.Succeeded() || !in.HasData() || in.DataStatusFalse() || name == "" {
		s.notice(LevelError, "User not found", s.opts.Delays.Display)
		return
	}

	s.notice(LevelSuccess, fmt.Sprintf("Connected to chat with %s", name), s.opts.Delays.Display)
	s.after(s.opts.Delays.Display, func() {
		if !s.authenticated {
			return
		}
		s.openConversation(chat.Person(name))
	})
}

func (s *Session) handleRoom(in protocol.Inbound) {
	s.resolve(in.Event)
	name := in.DataName()
	if !in.Succeeded() || name == "" {
		if text := in.ErrorText(); text != "" {
			s.notice(LevelError, text, s.opts.Delays.Display)
		}
		return
	}
	s.openConversation(chat.Room(name))
}
