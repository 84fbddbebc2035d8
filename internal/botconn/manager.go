// ABOUTME: Manages the table of live worker connections keyed by bot id.
// ABOUTME: Negotiates v1/v2 handshakes and enforces last-handshake-wins eviction.

package botconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/bot-relay/internal/bot"
)

// ErrBotNotConnected indicates no live connection exists for the bot id.
var ErrBotNotConnected = errors.New("bot not connected")

// ErrNotAuthorized indicates the transport failed credential validation.
// The manager disconnects the transport before raising this.
var ErrNotAuthorized = errors.New("connection not authorized")

// ErrUnsupportedProtocol indicates the handshake carried an unknown
// protocol version.
var ErrUnsupportedProtocol = errors.New("unsupported protocol")

// BotLookup resolves bot credentials during authorization.
type BotLookup interface {
	FindByID(id string) (*bot.Bot, error)
}

// Manager owns the table of live connections. Eviction-then-install for a
// bot id is atomic with respect to other registrations for the same id.
type Manager struct {
	lookup       BotLookup
	replyTimeout time.Duration
	grace        time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	conns map[string]*Connection
}

// NewManager creates a connection manager. replyTimeout bounds reply
// correlation; grace bounds the v1 registration wait.
func NewManager(lookup BotLookup, replyTimeout, grace time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		lookup:       lookup,
		replyTimeout: replyTimeout,
		grace:        grace,
		logger:       logger.With("component", "conn-manager"),
		conns:        make(map[string]*Connection),
	}
}

// Authorize validates handshake metadata without accepting a transport.
// v1 handshakes always pass here; their credentials arrive later in the
// registration event. Returns ErrUnsupportedProtocol for unknown versions
// and ErrNotAuthorized for bad v2 credentials.
func (m *Manager) Authorize(hs Handshake) error {
	switch hs.Version {
	case "", string(ProtocolV1):
		return nil
	case string(ProtocolV2):
		if _, err := m.checkCredentials(hs.BotID, hs.Secret); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedProtocol, hs.Version)
	}
}

// Establish walks a transport through authorization and, on success,
// installs the registered connection, evicting any prior connection for
// the same bot id. Failed transports are actively disconnected before the
// error is returned; no half-open connection lingers.
func (m *Manager) Establish(ctx context.Context, t Transport, hs Handshake) (*Connection, error) {
	m.logger.Debug("transport connecting", "state", StateConnecting.String(), "version", hs.Version)

	var (
		botID string
		proto Protocol
		err   error
	)
	switch hs.Version {
	case "", string(ProtocolV1):
		proto = ProtocolV1
		botID, err = m.awaitRegistration(ctx, t)
	case string(ProtocolV2):
		proto = ProtocolV2
		var b *bot.Bot
		if b, err = m.checkCredentials(hs.BotID, hs.Secret); err == nil {
			botID = b.ID
		} else {
			_ = t.Close()
		}
	default:
		_ = t.Close()
		err = fmt.Errorf("%w: %q", ErrUnsupportedProtocol, hs.Version)
	}
	if err != nil {
		m.logger.Debug("transport rejected", "state", StateRejected.String(), "error", err)
		return nil, err
	}

	conn := newConnection(botID, proto, t, m.replyTimeout, m.logger)
	conn.onClose = m.remove

	m.mu.Lock()
	old := m.conns[botID]
	if old != nil {
		// Detach under the lock so exactly one live connection exists for
		// the id at every instant; the old transport is closed outside it.
		old.onCloseDetach()
	}
	m.conns[botID] = conn
	m.mu.Unlock()

	if old != nil {
		m.logger.Info("evicting stale connection", "bot_id", botID)
		old.Close()
	}

	go conn.run()

	m.logger.Info("bot registered",
		"state", StateRegistered.String(),
		"bot_id", botID,
		"protocol", proto,
	)
	return conn, nil
}

// awaitRegistration implements the v1 handshake: the worker must send a
// valid "register" event within the grace period. The deadline is enforced
// here, not by the transport; a late registration finds the transport gone.
func (m *Manager) awaitRegistration(ctx context.Context, t Transport) (string, error) {
	m.logger.Debug("awaiting v1 registration", "state", StateAuthorizing.String(), "grace", m.grace)

	deadline := time.NewTimer(m.grace)
	defer deadline.Stop()

	for {
		select {
		case env, ok := <-t.Inbound():
			if !ok {
				return "", fmt.Errorf("%w: transport closed before registration", ErrNotAuthorized)
			}
			if env.Event != EventRegister {
				m.logger.Debug("ignoring pre-registration event", "event", env.Event)
				continue
			}
			var reg registration
			if err := json.Unmarshal(env.Data, &reg); err != nil || reg.ID == "" || reg.Secret == "" {
				return "", m.rejectV1(t, "registration payload missing id or secret")
			}
			b, err := m.checkCredentials(reg.ID, reg.Secret)
			if err != nil {
				return "", m.rejectV1(t, "registration credentials rejected")
			}
			return b.ID, nil

		case <-deadline.C:
			return "", m.rejectV1(t, "registration grace period elapsed")

		case <-ctx.Done():
			_ = t.Close()
			return "", fmt.Errorf("%w: %s", ErrNotAuthorized, ctx.Err())
		}
	}
}

func (m *Manager) rejectV1(t Transport, reason string) error {
	m.logger.Debug("rejecting v1 transport", "reason", reason)
	_ = t.Send(EventNoRegistration, nil)
	_ = t.Close()
	return fmt.Errorf("%w: %s", ErrNotAuthorized, reason)
}

func (m *Manager) checkCredentials(botID, secret string) (*bot.Bot, error) {
	if botID == "" || secret == "" {
		return nil, fmt.Errorf("%w: missing credentials", ErrNotAuthorized)
	}
	b, err := m.lookup.FindByID(botID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown bot id", ErrNotAuthorized)
	}
	if b.Secret != secret {
		return nil, fmt.Errorf("%w: secret mismatch", ErrNotAuthorized)
	}
	return b, nil
}

// remove drops a connection from the table if it is still the installed
// one. A connection evicted by a newer handshake is already detached.
func (m *Manager) remove(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conns[c.BotID] == c {
		delete(m.conns, c.BotID)
	}
}

// SendMessage forwards a message to the bot's live connection.
// Fails with ErrBotNotConnected when no connection exists.
func (m *Manager) SendMessage(botID string, msg *bot.Message, handler bot.ReplyHandler) error {
	conn := m.get(botID)
	if conn == nil {
		return fmt.Errorf("%w: %s", ErrBotNotConnected, botID)
	}
	return conn.SendMessage(msg, handler)
}

// Rename instructs the bot's live transport of its new display name.
// Fails with ErrBotNotConnected when no connection exists.
func (m *Manager) Rename(botID, name string) error {
	conn := m.get(botID)
	if conn == nil {
		return fmt.Errorf("%w: %s", ErrBotNotConnected, botID)
	}
	return conn.Rename(name)
}

// Disconnect tears down the bot's live connection. No-op if none exists.
func (m *Manager) Disconnect(botID string) {
	if conn := m.get(botID); conn != nil {
		conn.Close()
	}
}

// IsConnected reports whether the bot currently has a live connection.
func (m *Manager) IsConnected(botID string) bool {
	return m.get(botID) != nil
}

// ConnectedCount reports the number of live connections.
func (m *Manager) ConnectedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *Manager) get(botID string) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[botID]
}
