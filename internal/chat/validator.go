package chat

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/longapp/chat-client/internal/protocol"
)

const (
	MaxMessageBytes = 4096 // 4KB max frame size
	MaxTextChars    = 2000 // max character count
	MaxNameChars    = 64
)

// ErrValidation marks input rejected before any request is sent.
var ErrValidation = errors.New("validation failed")

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ValidateUsername accepts non-empty alphanumeric names without whitespace.
func ValidateUsername(name string) error {
	if name == "" {
		return invalid("username is empty")
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return invalid("username must not contain whitespace")
	}
	if !usernamePattern.MatchString(name) {
		return invalid("username must contain only letters and digits")
	}
	if utf8.RuneCountInString(name) > MaxNameChars {
		return invalid("username exceeds %d characters", MaxNameChars)
	}
	return nil
}

// ValidatePassword checks that a password was entered.
func ValidatePassword(pass string) error {
	if pass == "" {
		return invalid("password is empty")
	}
	return nil
}

// ValidateLogin only requires both fields; name rules apply at registration.
func ValidateLogin(user, pass string) error {
	if user == "" {
		return invalid("username is empty")
	}
	return ValidatePassword(pass)
}

// ValidateRegistration checks a registration form.
func ValidateRegistration(user, pass, confirm string) error {
	if err := ValidateUsername(user); err != nil {
		return err
	}
	if err := ValidatePassword(pass); err != nil {
		return err
	}
	if pass != confirm {
		return invalid("passwords do not match")
	}
	return nil
}

// ValidateRoomName checks a room name for create and join.
func ValidateRoomName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return invalid("room name is empty")
	}
	if utf8.RuneCountInString(trimmed) > MaxNameChars {
		return invalid("room name exceeds %d characters", MaxNameChars)
	}
	return nil
}

// ValidateMessage checks that a chat message meets content requirements.
func ValidateMessage(text string) error {
	if len(strings.TrimSpace(text)) == 0 {
		return invalid("message text is empty")
	}
	if len(text) > MaxMessageBytes {
		return invalid("message exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return invalid("message exceeds %d character limit", MaxTextChars)
	}
	if !utf8.ValidString(text) {
		return invalid("message contains invalid UTF-8")
	}
	if protocol.IsSignal(text) {
		return invalid("message must not start with %q", protocol.SignalMarker)
	}
	return nil
}
