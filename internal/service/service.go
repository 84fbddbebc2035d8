// ABOUTME: Domain orchestration over the registry and the connection manager.
// ABOUTME: Enforces the invariants the lower layers do not know about.

// Package service implements the bot domain operations the front-end calls:
// register, deregister, enable/disable, rename, status, copy/paste sharing,
// and send-and-await-reply.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/2389/bot-relay/internal/bot"
	"github.com/2389/bot-relay/internal/botconn"
)

// ErrCopyKeyNotFound indicates a copy key that does not exist or was
// already consumed.
var ErrCopyKeyNotFound = errors.New("copy key not found")

const (
	secretLength  = 32
	copyKeyLength = 6
)

// Registry is the subset of the bot registry the service depends on.
type Registry interface {
	Save(ctx context.Context, b *bot.Bot) (*bot.Bot, error)
	DeleteByID(ctx context.Context, id string) (*bot.Bot, error)
	FindByID(id string) (*bot.Bot, error)
	FindByTeamAndName(teamID, name string) (*bot.Bot, error)
	Exists(teamID, name string) bool
	GetAllByTeam(teamID string) []*bot.Bot
}

// Connections is the subset of the connection manager the service depends on.
type Connections interface {
	SendMessage(botID string, msg *bot.Message, handler bot.ReplyHandler) error
	Rename(botID, name string) error
	Disconnect(botID string)
	IsConnected(botID string) bool
}

// Service orchestrates the registry and the connection manager.
type Service struct {
	registry     Registry
	conns        Connections
	keepDuration time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	copyKeys map[string]string    // copy key -> bot id, single use
	expiry   map[string]uuid.UUID // bot id -> scheduled expiry job

	scheduler gocron.Scheduler
}

// New creates the bot service. If keepDuration is non-zero, every newly
// registered bot is deleted automatically after that duration, independent
// of any other lifecycle action.
func New(registry Registry, conns Connections, keepDuration time.Duration, logger *slog.Logger) (*Service, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	scheduler.Start()

	return &Service{
		registry:     registry,
		conns:        conns,
		keepDuration: keepDuration,
		logger:       logger.With("component", "bot-service"),
		copyKeys:     make(map[string]string),
		expiry:       make(map[string]uuid.UUID),
		scheduler:    scheduler,
	}, nil
}

// Close stops the expiry scheduler. Pending expiry jobs are dropped.
func (s *Service) Close() error {
	return s.scheduler.Shutdown()
}

// RegisterBotWithName creates a bot named name in the given team. The
// returned record carries the generated secret; it is shown to the caller
// exactly once.
func (s *Service) RegisterBotWithName(ctx context.Context, teamID, name string) (*bot.Bot, error) {
	if teamID == "" {
		return nil, fmt.Errorf("%w: teamId is required", bot.ErrInvalidArgument)
	}
	if err := bot.ValidateName(name); err != nil {
		return nil, err
	}
	if s.registry.Exists(teamID, name) {
		return nil, fmt.Errorf("%w: name %q in team %q", bot.ErrAlreadyExists, name, teamID)
	}

	secret, err := randomKey(secretLength)
	if err != nil {
		return nil, fmt.Errorf("generating bot secret: %w", err)
	}

	b, err := s.registry.Save(ctx, bot.New(teamID, name, secret))
	if err != nil {
		return nil, err
	}

	if s.keepDuration > 0 {
		s.scheduleExpiry(b.ID)
	}

	s.logger.Info("bot registered", "bot_id", b.ID, "name", b.Name, "team_id", teamID)
	return b, nil
}

// scheduleExpiry arms a one-shot job that deletes the bot and tears down
// its connection after the keep duration. The job is cancelled if the bot
// is deleted manually first, so no timer outlives its bot.
func (s *Service) scheduleExpiry(botID string) {
	job, err := s.scheduler.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(s.keepDuration))),
		gocron.NewTask(func() {
			s.expireBot(botID)
		}),
		gocron.WithName("expire-"+botID),
	)
	if err != nil {
		s.logger.Error("scheduling bot expiry", "bot_id", botID, "error", err)
		return
	}

	s.mu.Lock()
	s.expiry[botID] = job.ID()
	s.mu.Unlock()
}

func (s *Service) expireBot(botID string) {
	s.mu.Lock()
	delete(s.expiry, botID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.registry.DeleteByID(ctx, botID); err != nil {
		if !errors.Is(err, bot.ErrNotFound) {
			s.logger.Error("expiring bot", "bot_id", botID, "error", err)
		}
		return
	}
	s.conns.Disconnect(botID)
	s.logger.Info("bot expired", "bot_id", botID, "keep_duration", s.keepDuration)
}

func (s *Service) cancelExpiry(botID string) {
	s.mu.Lock()
	jobID, ok := s.expiry[botID]
	if ok {
		delete(s.expiry, botID)
	}
	s.mu.Unlock()

	if ok {
		if err := s.scheduler.RemoveJob(jobID); err != nil {
			s.logger.Debug("removing expiry job", "bot_id", botID, "error", err)
		}
	}
}

// DeregisterBotWithName removes the team from the bot's membership. If that
// was its last team the bot record is deleted and its connection torn down;
// otherwise the bot persists under its remaining teams.
func (s *Service) DeregisterBotWithName(ctx context.Context, teamID, name string) (*bot.Bot, error) {
	b, err := s.registry.FindByTeamAndName(teamID, name)
	if err != nil {
		return nil, err
	}

	b.RemoveTeam(teamID)
	if len(b.TeamIDs) == 0 {
		if _, err := s.registry.DeleteByID(ctx, b.ID); err != nil {
			return nil, err
		}
		s.conns.Disconnect(b.ID)
		s.cancelExpiry(b.ID)
		s.logger.Info("bot deregistered", "bot_id", b.ID, "name", b.Name)
		return b, nil
	}

	return s.registry.Save(ctx, b)
}

// EnableBotWithName clears the bot's disabled flag. Idempotent.
func (s *Service) EnableBotWithName(ctx context.Context, teamID, name string) (*bot.Bot, error) {
	return s.setDisabled(ctx, teamID, name, false)
}

// DisableBotWithName sets the bot's disabled flag. Idempotent.
func (s *Service) DisableBotWithName(ctx context.Context, teamID, name string) (*bot.Bot, error) {
	return s.setDisabled(ctx, teamID, name, true)
}

func (s *Service) setDisabled(ctx context.Context, teamID, name string, disabled bool) (*bot.Bot, error) {
	b, err := s.registry.FindByTeamAndName(teamID, name)
	if err != nil {
		return nil, err
	}
	b.Disabled = disabled
	return s.registry.Save(ctx, b)
}

// RenameBot renames a bot. The new name must not collide with a different
// bot in any team the source bot belongs to; a case-only collision with
// itself is allowed. The live worker is notified best-effort: a
// disconnected worker learns its name on next reconnect.
func (s *Service) RenameBot(ctx context.Context, teamID, fromName, toName string) (*bot.Bot, error) {
	if fromName == toName {
		return s.registry.FindByTeamAndName(teamID, fromName)
	}
	if err := bot.ValidateName(toName); err != nil {
		return nil, err
	}

	b, err := s.registry.FindByTeamAndName(teamID, fromName)
	if err != nil {
		return nil, err
	}

	for _, team := range b.TeamIDs {
		if s.registry.Exists(team, toName) && bot.NameKey(fromName) != bot.NameKey(toName) {
			return nil, fmt.Errorf("%w: name %q in team %q", bot.ErrAlreadyExists, toName, team)
		}
	}

	b.Name = toName
	b, err = s.registry.Save(ctx, b)
	if err != nil {
		return nil, err
	}

	if err := s.conns.Rename(b.ID, b.Name); err != nil {
		if !errors.Is(err, botconn.ErrBotNotConnected) {
			return nil, err
		}
	}
	return b, nil
}

// GetBotStatuses reports every bot visible to the team with its status.
// A disabled bot reports disabled even while its worker is connected.
func (s *Service) GetBotStatuses(teamID string) ([]*bot.BotStatus, error) {
	if teamID == "" {
		return nil, fmt.Errorf("%w: teamId is required", bot.ErrInvalidArgument)
	}

	bots := s.registry.GetAllByTeam(teamID)
	sort.Slice(bots, func(i, j int) bool {
		return bot.NameKey(bots[i].Name) < bot.NameKey(bots[j].Name)
	})

	statuses := make([]*bot.BotStatus, 0, len(bots))
	for _, b := range bots {
		status := bot.StatusDisconnected
		switch {
		case b.Disabled:
			status = bot.StatusDisabled
		case s.conns.IsConnected(b.ID):
			status = bot.StatusConnected
		}
		statuses = append(statuses, &bot.BotStatus{Bot: b, Status: status})
	}
	return statuses, nil
}

// SendMessageToBot resolves the bot and relays the message to its live
// connection, arming the reply handler. Fails with bot.ErrDisabled before
// any connection-level check.
func (s *Service) SendMessageToBot(teamID, name string, msg *bot.Message, handler bot.ReplyHandler) (*bot.Bot, error) {
	b, err := s.registry.FindByTeamAndName(teamID, name)
	if err != nil {
		return nil, err
	}
	if b.Disabled {
		return nil, fmt.Errorf("%w: %s", bot.ErrDisabled, b.ID)
	}
	if err := s.conns.SendMessage(b.ID, msg, handler); err != nil {
		return nil, err
	}
	return b, nil
}

// CopyBot issues a fresh single-use key that lets another team paste the
// bot without re-registration. Keys live in memory only.
func (s *Service) CopyBot(teamID, name string) (string, error) {
	b, err := s.registry.FindByTeamAndName(teamID, name)
	if err != nil {
		return "", err
	}

	key, err := randomKey(copyKeyLength)
	if err != nil {
		return "", fmt.Errorf("generating copy key: %w", err)
	}

	s.mu.Lock()
	s.copyKeys[key] = b.ID
	s.mu.Unlock()

	return key, nil
}

// PasteBot consumes a copy key and adds the team to the bot's membership.
// The key is consumed even when the paste fails afterwards.
func (s *Service) PasteBot(ctx context.Context, teamID, copyKey string) (*bot.Bot, error) {
	s.mu.Lock()
	botID, ok := s.copyKeys[copyKey]
	delete(s.copyKeys, copyKey)
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCopyKeyNotFound, copyKey)
	}

	b, err := s.registry.FindByID(botID)
	if err != nil {
		return nil, err
	}
	if s.registry.Exists(teamID, b.Name) {
		return nil, fmt.Errorf("%w: name %q in team %q", bot.ErrAlreadyExists, b.Name, teamID)
	}

	b.AddTeam(teamID)
	return s.registry.Save(ctx, b)
}

// OnConnected pushes the bot's stored display name to its freshly
// registered connection, so a worker that renamed while offline catches up.
func (s *Service) OnConnected(botID string) {
	b, err := s.registry.FindByID(botID)
	if err != nil {
		s.logger.Warn("connected bot missing from registry", "bot_id", botID, "error", err)
		return
	}
	if err := s.conns.Rename(b.ID, b.Name); err != nil && !errors.Is(err, botconn.ErrBotNotConnected) {
		s.logger.Warn("pushing name to connected bot", "bot_id", botID, "error", err)
	}
}
