package ws

import "time"

// DefaultURL is the production chat endpoint.
const DefaultURL = "wss://chat.longapp.site/chat/chat"

// Config holds tunable parameters for the chat connection.
type Config struct {
	URL          string        // WebSocket endpoint
	DialTimeout  time.Duration // timeout for the opening handshake
	InitialDelay time.Duration // delay before the first reconnect
	MaxDelay     time.Duration // reconnect delay cap
	Multiplier   float64       // backoff growth per consecutive failure
	MaxRetries   int           // consecutive failures before giving up, 0 = unlimited
	StableAfter  time.Duration // uptime after which a dropped connection no longer counts as a failure
	PingInterval time.Duration // how often to ping the server, 0 = never
	PongTimeout  time.Duration // extra read grace after a ping
	WriteTimeout time.Duration // timeout for frame writes
	QueueSize    int           // inbound event buffer
}

// DefaultConfig returns the defaults used by the browser client, with the
// fixed 500ms reconnect delay turned into the base of an exponential backoff.
func DefaultConfig() Config {
	return Config{
		URL:          DefaultURL,
		DialTimeout:  10 * time.Second,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		MaxRetries:   0,
		StableAfter:  10 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		QueueSize:    256,
	}
}

// Backoff returns the delay before reconnect attempt n, where n counts the
// consecutive failures so far (0 after a clean disconnect).
func (c Config) Backoff(n int) time.Duration {
	d := c.InitialDelay
	if d <= 0 {
		return 0
	}
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 0; i < n; i++ {
		d = time.Duration(float64(d) * mult)
		if c.MaxDelay > 0 && d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}
