package ws

import (
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog/log"
)

// heartbeat sends a WebSocket ping frame every PingInterval until stop is
// closed. A failed ping closes the connection, which ends the read loop and
// triggers a reconnect. Pongs only need to extend the read deadline, which
// the read loop does for every frame.
func (c *Client) heartbeat(conn net.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.write(conn, ws.OpPing, nil); err != nil {
				log.Warn().Err(err).Msg("[ws] heartbeat ping failed")
				conn.Close()
				return
			}
		}
	}
}
