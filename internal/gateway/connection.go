package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// readPump pumps inbound envelopes off the websocket and into dispatch,
// one connection per goroutine, matching the teacher's pump pair idiom.
// It blocks until the connection closes and then runs cleanup itself
// (deferred).
func (g *Gateway) readPump(conn *connection) {
	defer g.cleanup(conn)

	conn.ws.SetReadLimit(4096)
	conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			g.log.Warn("malformed inbound envelope", "sid", conn.sid, "error", err)
			continue
		}
		g.dispatch(conn, env)
	}
}

// writePump drains the connection's send queue onto the websocket and
// keeps it alive with periodic pings; it exits when send is closed by
// Hub.unregister, or on any write error.
func (g *Gateway) writePump(conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.send:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// cleanup runs once per connection on readPump exit: it tears down the
// session binding and, if the session's user was mid-game, reports the
// disconnect to the Engine as a low-priority job (spec §5).
func (g *Gateway) cleanup(conn *connection) {
	g.hub.unregister(conn.sid)
	g.router.UnbindSession(conn.sid)

	userID := conn.userID
	g.submitLow(func(ctx context.Context) error {
		user, err := g.store.GetUser(ctx, userID)
		if err != nil || user.CurrentGameID == nil {
			return nil
		}
		return g.engine.OnDisconnect(ctx, userID, *user.CurrentGameID)
	})
}
