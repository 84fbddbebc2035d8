// ABOUTME: Bot record type, name validation, and status reporting.
// ABOUTME: Bots are value-copied on every read to prevent shared mutation.

package bot

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxNameLength is the longest allowed bot name.
const MaxNameLength = 10

// Bot is a registered worker identity.
type Bot struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Secret   string   `json:"secret"`
	TeamIDs  []string `json:"teamIds"`
	Disabled bool     `json:"disabled"`
	IconRef  string   `json:"iconRef"`
}

// New creates a bot with a fresh id, visible in a single team.
// The icon reference is derived deterministically from the id.
func New(teamID, name, secret string) *Bot {
	id := uuid.New().String()
	return &Bot{
		ID:      id,
		Name:    name,
		Secret:  secret,
		TeamIDs: []string{teamID},
		IconRef: IconRef(id),
	}
}

// IconRef derives the avatar reference for a bot id.
func IconRef(id string) string {
	return fmt.Sprintf("https://robohash.org/%s?size=56x56", id)
}

// Clone returns a deep copy of the bot.
func (b *Bot) Clone() *Bot {
	if b == nil {
		return nil
	}
	c := *b
	c.TeamIDs = append([]string(nil), b.TeamIDs...)
	return &c
}

// InTeam reports whether the bot is visible in the given team.
func (b *Bot) InTeam(teamID string) bool {
	for _, t := range b.TeamIDs {
		if t == teamID {
			return true
		}
	}
	return false
}

// AddTeam makes the bot visible in the given team. Idempotent.
func (b *Bot) AddTeam(teamID string) {
	if !b.InTeam(teamID) {
		b.TeamIDs = append(b.TeamIDs, teamID)
	}
}

// RemoveTeam removes the bot from the given team. Idempotent.
func (b *Bot) RemoveTeam(teamID string) {
	for i, t := range b.TeamIDs {
		if t == teamID {
			b.TeamIDs = append(b.TeamIDs[:i], b.TeamIDs[i+1:]...)
			return
		}
	}
}

// ValidateName checks that a bot name is 1-10 alphanumeric characters.
func ValidateName(name string) error {
	if name == "" || len(name) > MaxNameLength {
		return fmt.Errorf("%w: bot name must be 1-%d characters", ErrInvalidArgument, MaxNameLength)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return fmt.Errorf("%w: bot name must be alphanumeric", ErrInvalidArgument)
		}
	}
	return nil
}

// NameKey folds a name for case-insensitive comparison.
func NameKey(name string) string {
	return strings.ToLower(name)
}

// Status describes a bot's reachability as seen by the front-end.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusDisabled     Status = "disabled"
)

// BotStatus pairs a bot with its computed status.
type BotStatus struct {
	Bot    *Bot   `json:"bot"`
	Status Status `json:"status"`
}
