// ABOUTME: Represents a single registered worker connection and its reply routing.
// ABOUTME: Pending replies are one-shot and released unconditionally on timeout.

package botconn

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/bot-relay/internal/bot"
)

// State is a connection's position in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAuthorizing
	StateRegistered
	StateRejected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthorizing:
		return "authorizing"
	case StateRegistered:
		return "registered"
	case StateRejected:
		return "rejected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Connection is one live, registered worker connection. At most one exists
// per bot id at any instant; the Manager enforces that.
type Connection struct {
	BotID    string
	Protocol Protocol

	transport    Transport
	replyTimeout time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	state   State
	pending map[string]*pendingReply
	onClose func(*Connection)
}

type pendingReply struct {
	handler bot.ReplyHandler
	timer   *time.Timer
}

func newConnection(botID string, proto Protocol, t Transport, replyTimeout time.Duration, logger *slog.Logger) *Connection {
	return &Connection{
		BotID:        botID,
		Protocol:     proto,
		transport:    t,
		replyTimeout: replyTimeout,
		logger:       logger,
		state:        StateRegistered,
		pending:      make(map[string]*pendingReply),
	}
}

// run consumes inbound frames until the transport closes, routing replies
// to their pending handlers. It owns the transition to Disconnected.
func (c *Connection) run() {
	for env := range c.transport.Inbound() {
		if msgID, ok := strings.CutPrefix(env.Event, replyEventPrefix); ok {
			c.handleReply(msgID, env.Data)
			continue
		}
		c.logger.Debug("ignoring unexpected event from worker",
			"bot_id", c.BotID,
			"event", env.Event,
		)
	}
	c.markDisconnected()
}

// SendMessage forwards a message over the transport and arms a one-shot
// reply subscription. The subscription is armed before the send so a reply
// racing the send cannot be missed.
func (c *Connection) SendMessage(msg *bot.Message, handler bot.ReplyHandler) error {
	c.subscribe(msg.ID, handler)
	if err := c.transport.Send(EventPostMessage, msg); err != nil {
		c.release(msg.ID)
		return fmt.Errorf("sending message to bot %s: %w", c.BotID, err)
	}
	return nil
}

func (c *Connection) subscribe(msgID string, handler bot.ReplyHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[msgID] = &pendingReply{
		handler: handler,
		timer: time.AfterFunc(c.replyTimeout, func() {
			if c.release(msgID) {
				c.logger.Debug("reply subscription timed out",
					"bot_id", c.BotID,
					"message_id", msgID,
				)
			}
		}),
	}
}

// release drops the subscription for a message id, reporting whether it was
// still armed. The timer is stopped so resources never outlive the timeout.
func (c *Connection) release(msgID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[msgID]
	if !ok {
		return false
	}
	delete(c.pending, msgID)
	p.timer.Stop()
	return true
}

func (c *Connection) handleReply(msgID string, data json.RawMessage) {
	c.mu.Lock()
	p, ok := c.pending[msgID]
	if ok {
		delete(c.pending, msgID)
		p.timer.Stop()
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("reply for unknown or expired message",
			"bot_id", c.BotID,
			"message_id", msgID,
		)
		return
	}

	var reply bot.Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		c.logger.Warn("malformed reply from worker",
			"bot_id", c.BotID,
			"message_id", msgID,
			"error", err,
		)
		return
	}

	// Handlers run outside the read loop so a slow caller cannot stall
	// other replies on the same connection.
	go p.handler(&reply)
}

// Rename notifies the worker of its new display name using the
// protocol-appropriate notification shape.
func (c *Connection) Rename(name string) error {
	var err error
	switch c.Protocol {
	case ProtocolV1:
		err = c.transport.Send(EventRegistrationData, registrationData{ID: c.BotID, Name: name})
	case ProtocolV2:
		err = c.transport.Send(EventRename, name)
	default:
		err = fmt.Errorf("no rename notification for protocol %q", c.Protocol)
	}
	if err != nil {
		return fmt.Errorf("renaming bot %s: %w", c.BotID, err)
	}
	c.logger.Debug("worker notified of rename", "bot_id", c.BotID, "name", name)
	return nil
}

// Close tears down the transport. Idempotent; the read loop observes the
// closed transport and completes the transition to Disconnected.
func (c *Connection) Close() {
	_ = c.transport.Close()
	c.markDisconnected()
}

func (c *Connection) markDisconnected() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	for id, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, id)
	}
	onClose := c.onClose
	c.mu.Unlock()

	c.logger.Info("bot disconnected", "bot_id", c.BotID, "protocol", c.Protocol)
	if onClose != nil {
		onClose(c)
	}
}

// onCloseDetach clears the close callback so a superseded connection does
// not touch the manager table when it finishes disconnecting.
func (c *Connection) onCloseDetach() {
	c.mu.Lock()
	c.onClose = nil
	c.mu.Unlock()
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PendingReplies reports the number of armed reply subscriptions.
func (c *Connection) PendingReplies() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
