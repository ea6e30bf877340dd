// Package config assembles the chat client's settings: built-in defaults,
// then environment overrides. Command-line flags are applied on top by the
// caller.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/longapp/chat-client/internal/store"
	"github.com/longapp/chat-client/internal/ws"
)

// Config is the full client configuration.
type Config struct {
	WS    ws.Config
	Store store.Options

	NATSURL         string // empty disables the event bridge
	DatabaseURL     string // empty disables the archive
	HTTPAddr        string // empty disables the local HTTP surface
	LogLevel        string
	AutoAcceptCalls bool
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		WS: ws.DefaultConfig(),
		Store: store.Options{
			Kind:      store.KindPebble,
			Dir:       "chatclient-data",
			RedisAddr: "localhost:6379",
			Prefix:    "chatclient:",
		},
		LogLevel: "info",
	}
}

// FromEnv returns Default overlaid with the process environment.
func FromEnv() Config {
	return Overlay(Default(), os.Getenv)
}

// Overlay applies the variables visible through getenv to c. Unparseable
// values are logged and ignored.
func Overlay(c Config, getenv func(string) string) Config {
	if v := getenv("CHAT_URL"); v != "" {
		c.WS.URL = v
	}
	if v := getenv("STATE_BACKEND"); v != "" {
		c.Store.Kind = store.Kind(strings.ToLower(v))
	}
	if v := getenv("STATE_DIR"); v != "" {
		c.Store.Dir = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Store.RedisAddr = v
	}
	if v := getenv("NATS_URL"); v != "" {
		c.NATSURL = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	duration(getenv, "RECONNECT_DELAY", &c.WS.InitialDelay)
	duration(getenv, "RECONNECT_MAX_DELAY", &c.WS.MaxDelay)
	duration(getenv, "PING_INTERVAL", &c.WS.PingInterval)
	if v := getenv("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.WS.MaxRetries = n
		} else {
			log.Warn().Msgf("[config] ignoring MAX_RETRIES=%q", v)
		}
	}
	if v := getenv("AUTO_ACCEPT_CALLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.AutoAcceptCalls = b
		} else {
			log.Warn().Msgf("[config] ignoring AUTO_ACCEPT_CALLS=%q", v)
		}
	}
	return c
}

func duration(getenv func(string) string, key string, dst *time.Duration) {
	v := getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		log.Warn().Msgf("[config] ignoring %s=%q", key, v)
		return
	}
	*dst = d
}

// Level parses LogLevel, defaulting to info.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
