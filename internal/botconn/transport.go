// ABOUTME: Wire envelope and the duplex transport contract the manager consumes.
// ABOUTME: The websocket layer produces Transports; tests substitute fakes.

package botconn

import "encoding/json"

// Wire event names exchanged with workers.
const (
	EventRegister         = "register"
	EventNoRegistration   = "no_registration"
	EventPostMessage      = "post_message"
	EventRegistrationData = "registration_data"
	EventRename           = "rename"

	// replyEventPrefix tags worker replies: "message-<message id>".
	replyEventPrefix = "message-"
)

// Envelope is one frame on the wire in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Transport is one live duplex channel to a worker process. Inbound yields
// frames until the underlying channel closes, at which point it is closed.
// Close is idempotent.
type Transport interface {
	Send(event string, data any) error
	Inbound() <-chan Envelope
	Close() error
}

// Protocol tags the negotiated wire protocol version.
type Protocol string

const (
	ProtocolV1 Protocol = "1.0"
	ProtocolV2 Protocol = "2.0"
)

// Handshake carries the connection metadata supplied at connect time.
// An absent version means v1. BotID and Secret are v2-only.
type Handshake struct {
	Version string
	BotID   string
	Secret  string
}

// registration is the payload of a v1 "register" event.
type registration struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

// registrationData is the payload of a v1 "registration_data" notification.
type registrationData struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
