// ABOUTME: Websocket endpoint for worker connections and the transport it produces.
// ABOUTME: Read/write pumps with ping/pong deadlines; writer owns all socket writes.

package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/bot-relay/internal/botconn"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 20 // 1MB
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Workers are not browsers; origin checks do not apply.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWorkerSocket upgrades a worker connection and walks it through the
// handshake. v2 credentials are validated before the upgrade, so an
// unauthorized v2 worker never holds a socket.
func (g *Gateway) handleWorkerSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	hs := botconn.Handshake{
		Version: q.Get("version"),
		BotID:   q.Get("botId"),
		Secret:  q.Get("botSecret"),
	}

	if err := g.connMgr.Authorize(hs); err != nil {
		g.logger.Debug("worker handshake rejected before upgrade", "error", err)
		switch {
		case errors.Is(err, botconn.ErrUnsupportedProtocol):
			http.Error(w, "unsupported protocol", http.StatusBadRequest)
		default:
			http.Error(w, "not authorized", http.StatusUnauthorized)
		}
		return
	}

	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	t := newWSTransport(sock, g.logger)
	go t.writePump()
	go t.readPump()

	// The v1 registration wait is bounded by the manager's grace period,
	// not by the request context; the socket is hijacked at this point.
	conn, err := g.connMgr.Establish(r.Context(), t, hs)
	if err != nil {
		g.logger.Info("worker connection rejected", "error", err)
		return
	}

	g.service.OnConnected(conn.BotID)
}

// wsTransport adapts a websocket connection to the botconn.Transport
// contract: JSON envelopes in both directions, a buffered outbound queue
// drained by a single writer goroutine, and an inbound channel closed when
// the socket dies.
type wsTransport struct {
	sock    *websocket.Conn
	send    chan []byte
	inbound chan botconn.Envelope
	done    chan struct{}
	logger  *slog.Logger

	closeOnce sync.Once
}

func newWSTransport(sock *websocket.Conn, logger *slog.Logger) *wsTransport {
	return &wsTransport{
		sock:    sock,
		send:    make(chan []byte, 256),
		inbound: make(chan botconn.Envelope, 16),
		done:    make(chan struct{}),
		logger:  logger.With("component", "ws-transport"),
	}
}

func (t *wsTransport) Send(event string, data any) error {
	env := botconn.Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		env.Data = raw
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}

	select {
	case t.send <- frame:
		return nil
	case <-t.done:
		return errors.New("transport closed")
	}
}

func (t *wsTransport) Inbound() <-chan botconn.Envelope {
	return t.inbound
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.sock.Close()
	})
	return nil
}

func (t *wsTransport) readPump() {
	defer func() {
		_ = t.Close()
		close(t.inbound)
	}()

	t.sock.SetReadLimit(maxMsgSize)
	_ = t.sock.SetReadDeadline(time.Now().Add(pongWait))
	t.sock.SetPongHandler(func(string) error {
		return t.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := t.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Debug("worker socket closed", "error", err)
			}
			return
		}

		var env botconn.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.logger.Warn("dropping malformed frame from worker", "error", err)
			continue
		}

		select {
		case t.inbound <- env:
		case <-t.done:
			return
		}
	}
}

func (t *wsTransport) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = t.Close()
	}()

	for {
		select {
		case frame := <-t.send:
			_ = t.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.sock.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			_ = t.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-t.done:
			_ = t.sock.SetWriteDeadline(time.Now().Add(writeWait))
			_ = t.sock.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
