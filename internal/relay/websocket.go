package relay

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// serveWebSocket upgrades the request and writes one text frame per relayed
// payload. The relay is push-only: the read side is drained just to notice
// the peer closing.
func (r *Relay) serveWebSocket(w http.ResponseWriter, req *http.Request) {
	c := r.hub.NewClient(TransportWebSocket)

	conn, err := websocket.Accept(w, req, &websocket.AcceptOptions{
		// dashboards are served from other origins
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		// Accept has already written the error response
		r.logger.Debug("websocket handshake failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if err := r.hub.Register(c); err != nil {
		_ = conn.Close(websocket.StatusGoingAway, "relay shutting down")
		return
	}
	defer r.hub.Unregister(c)

	ctx := conn.CloseRead(req.Context())
	for {
		select {
		case <-ctx.Done():
			// peer closed or server shutting down
			return

		case <-c.Done():
			if c.Evicted() {
				_ = conn.Close(websocket.StatusPolicyViolation, "client too slow")
			} else {
				_ = conn.Close(websocket.StatusGoingAway, "relay shutting down")
			}
			return

		case msg := <-c.Send():
			if err := writeFrame(ctx, conn, msg); err != nil {
				r.logger.Debug("websocket write failed", zap.String("client", c.ID()), zap.Error(err))
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}
