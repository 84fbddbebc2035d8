// ABOUTME: Registry of bot identities with id and (team, name) indices.
// ABOUTME: Serializes index updates and persists the whole table on every mutation.

package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/bot-relay/internal/storage"
)

// Registry is the authoritative in-memory table of bots. It is safe for
// concurrent use; mutations for a given bot id never interleave.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Bot
	byName map[nameKey]string // (team, folded name) -> bot id
	store  storage.Storage
	logger *slog.Logger
}

type nameKey struct {
	teamID string
	name   string
}

func keyFor(teamID, name string) nameKey {
	return nameKey{teamID: teamID, name: NameKey(name)}
}

// NewRegistry loads the backing store and builds both indices. A stored
// record missing a required field is fatal: partial state is worse than
// failing loudly.
func NewRegistry(ctx context.Context, store storage.Storage, logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		byID:   make(map[string]*Bot),
		byName: make(map[nameKey]string),
		store:  store,
		logger: logger.With("component", "registry"),
	}

	blob, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading bot table: %w", err)
	}
	if len(blob) > 0 {
		var table map[string]*Bot
		if err := json.Unmarshal(blob, &table); err != nil {
			return nil, fmt.Errorf("parsing bot table: %w", err)
		}
		for id, b := range table {
			if b == nil || b.ID == "" || b.Name == "" || b.Secret == "" || len(b.TeamIDs) == 0 {
				return nil, fmt.Errorf("stored bot table is corrupt: record %q is missing required fields", id)
			}
			if b.IconRef == "" {
				b.IconRef = IconRef(b.ID)
			}
			r.byID[b.ID] = b
			for _, team := range b.TeamIDs {
				r.byName[keyFor(team, b.Name)] = b.ID
			}
		}
	}

	r.logger.Info("loaded bots", "count", len(r.byID))
	return r, nil
}

// Save commits a bot record, updating both indices atomically. If the bot's
// name or team membership changed since its last save, stale index entries
// are removed before the new ones are added.
func (r *Registry) Save(ctx context.Context, b *Bot) (*Bot, error) {
	if b == nil || b.ID == "" {
		return nil, fmt.Errorf("%w: bot is required", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byID[b.ID]; ok {
		for _, team := range prev.TeamIDs {
			delete(r.byName, keyFor(team, prev.Name))
		}
	}

	stored := b.Clone()
	r.byID[stored.ID] = stored
	for _, team := range stored.TeamIDs {
		r.byName[keyFor(team, stored.Name)] = stored.ID
	}

	if err := r.persistLocked(ctx); err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

// DeleteByID removes a bot and its index entries, then persists.
func (r *Registry) DeleteByID(ctx context.Context, id string) (*Bot, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: bot id is required", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %q", ErrNotFound, id)
	}
	delete(r.byID, id)
	for _, team := range b.TeamIDs {
		delete(r.byName, keyFor(team, b.Name))
	}

	if err := r.persistLocked(ctx); err != nil {
		return nil, err
	}
	return b.Clone(), nil
}

// FindByID returns a copy of the bot with the given id.
func (r *Registry) FindByID(id string) (*Bot, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: bot id is required", ErrInvalidArgument)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %q", ErrNotFound, id)
	}
	return b.Clone(), nil
}

// FindByTeamAndName returns a copy of the bot with the given name in the
// given team. Names compare case-insensitively.
func (r *Registry) FindByTeamAndName(teamID, name string) (*Bot, error) {
	if teamID == "" || name == "" {
		return nil, fmt.Errorf("%w: teamId and name are required", ErrInvalidArgument)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[keyFor(teamID, name)]
	if !ok {
		return nil, fmt.Errorf("%w: name %q in team %q", ErrNotFound, name, teamID)
	}
	return r.byID[id].Clone(), nil
}

// Exists reports whether a bot with the given name is live in the team.
// Unlike the Find operations it never fails.
func (r *Registry) Exists(teamID, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[keyFor(teamID, name)]
	return ok
}

// GetAllByTeam returns copies of every bot visible in the team.
func (r *Registry) GetAllByTeam(teamID string) []*Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var bots []*Bot
	for _, b := range r.byID {
		if b.InTeam(teamID) {
			bots = append(bots, b.Clone())
		}
	}
	return bots
}

func (r *Registry) persistLocked(ctx context.Context) error {
	blob, err := json.Marshal(r.byID)
	if err != nil {
		return fmt.Errorf("encoding bot table: %w", err)
	}
	if err := r.store.Save(ctx, blob); err != nil {
		return fmt.Errorf("persisting bot table: %w", err)
	}
	return nil
}
