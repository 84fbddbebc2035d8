// ABOUTME: Wire types for messages dispatched to workers and their replies.
// ABOUTME: A reply is correlated to its message by the shared message id.

package bot

import (
	"fmt"

	"github.com/google/uuid"
)

// Sender identifies the human that originated a message.
type Sender struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Message is one outgoing unit of work for a worker. The id is unique per
// message and tags the eventual reply.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	TeamID    string `json:"teamId"`
	ThreadID  string `json:"threadId"`
	ChannelID string `json:"channelId"`
	Sender    Sender `json:"sender"`
}

// NewMessage creates a message with a fresh unique id.
func NewMessage(text, teamID, threadID, channelID string, sender Sender) (*Message, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", ErrInvalidArgument)
	}
	if teamID == "" {
		return nil, fmt.Errorf("%w: teamId is required", ErrInvalidArgument)
	}
	return &Message{
		ID:        uuid.New().String(),
		Text:      text,
		TeamID:    teamID,
		ThreadID:  threadID,
		ChannelID: channelID,
		Sender:    sender,
	}, nil
}

// Reply is a worker's response to a message.
type Reply struct {
	Type     string   `json:"type"`
	Messages []string `json:"messages"`
}

// ReplyHandler receives the reply correlated to an outgoing message.
// It is called at most once per message id.
type ReplyHandler func(*Reply)
