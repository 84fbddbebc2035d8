// ABOUTME: HTTP API handlers for the front-end contract.
// ABOUTME: Maps the domain error taxonomy onto status codes and error kinds.

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/2389/bot-relay/internal/bot"
	"github.com/2389/bot-relay/internal/botconn"
	"github.com/2389/bot-relay/internal/service"
)

// BotView is the JSON shape of a bot record. The secret is included only
// in the registration response; it is shown exactly once.
type BotView struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Secret   string   `json:"secret,omitempty"`
	TeamIDs  []string `json:"teamIds"`
	Disabled bool     `json:"disabled"`
	IconRef  string   `json:"iconRef"`
}

// BotStatusView pairs a bot with its computed status.
type BotStatusView struct {
	Bot    BotView    `json:"bot"`
	Status bot.Status `json:"status"`
}

// RegisterBotRequest is the JSON request body for bot registration.
type RegisterBotRequest struct {
	Name string `json:"name"`
}

// RenameBotRequest is the JSON request body for renaming a bot.
type RenameBotRequest struct {
	To string `json:"to"`
}

// SendMessageRequest is the JSON request body for dispatching a message.
type SendMessageRequest struct {
	Text      string     `json:"text"`
	ThreadID  string     `json:"threadId"`
	ChannelID string     `json:"channelId"`
	Sender    bot.Sender `json:"sender"`
}

// SendMessageResponse carries the first reply from the worker.
type SendMessageResponse struct {
	MessageID string     `json:"messageId"`
	Reply     *bot.Reply `json:"reply"`
}

// CopyBotResponse carries a freshly issued single-use copy key.
type CopyBotResponse struct {
	CopyKey string `json:"copyKey"`
}

// PasteBotRequest is the JSON request body for pasting a copied bot.
type PasteBotRequest struct {
	CopyKey string `json:"copyKey"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func botView(b *bot.Bot, withSecret bool) BotView {
	v := BotView{
		ID:       b.ID,
		Name:     b.Name,
		TeamIDs:  b.TeamIDs,
		Disabled: b.Disabled,
		IconRef:  b.IconRef,
	}
	if withSecret {
		v.Secret = b.Secret
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error onto a status code and a stable error
// kind the front-end can translate.
func writeError(w http.ResponseWriter, err error) {
	var status int
	var kind string
	switch {
	case errors.Is(err, bot.ErrInvalidArgument):
		status, kind = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, bot.ErrNotFound):
		status, kind = http.StatusNotFound, "bot_not_found"
	case errors.Is(err, service.ErrCopyKeyNotFound):
		status, kind = http.StatusNotFound, "copy_key_not_found"
	case errors.Is(err, bot.ErrAlreadyExists):
		status, kind = http.StatusConflict, "bot_already_exists"
	case errors.Is(err, bot.ErrDisabled):
		status, kind = http.StatusConflict, "bot_disabled"
	case errors.Is(err, botconn.ErrBotNotConnected):
		status, kind = http.StatusServiceUnavailable, "bot_not_connected"
	default:
		status, kind = http.StatusInternalServerError, "internal"
	}
	writeJSON(w, status, errorResponse{Error: kind, Message: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_argument", Message: "malformed request body"})
		return false
	}
	return true
}

// handleRegisterBot handles POST /api/teams/{team}/bots.
func (g *Gateway) handleRegisterBot(w http.ResponseWriter, r *http.Request) {
	var req RegisterBotRequest
	if !decodeBody(w, r, &req) {
		return
	}

	b, err := g.service.RegisterBotWithName(r.Context(), r.PathValue("team"), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, botView(b, true))
}

// handleDeregisterBot handles DELETE /api/teams/{team}/bots/{name}.
func (g *Gateway) handleDeregisterBot(w http.ResponseWriter, r *http.Request) {
	b, err := g.service.DeregisterBotWithName(r.Context(), r.PathValue("team"), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, botView(b, false))
}

// handleEnableBot handles POST /api/teams/{team}/bots/{name}/enable.
func (g *Gateway) handleEnableBot(w http.ResponseWriter, r *http.Request) {
	b, err := g.service.EnableBotWithName(r.Context(), r.PathValue("team"), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, botView(b, false))
}

// handleDisableBot handles POST /api/teams/{team}/bots/{name}/disable.
func (g *Gateway) handleDisableBot(w http.ResponseWriter, r *http.Request) {
	b, err := g.service.DisableBotWithName(r.Context(), r.PathValue("team"), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, botView(b, false))
}

// handleRenameBot handles POST /api/teams/{team}/bots/{name}/rename.
func (g *Gateway) handleRenameBot(w http.ResponseWriter, r *http.Request) {
	var req RenameBotRequest
	if !decodeBody(w, r, &req) {
		return
	}

	b, err := g.service.RenameBot(r.Context(), r.PathValue("team"), r.PathValue("name"), req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, botView(b, false))
}

// handleBotStatuses handles GET /api/teams/{team}/bots.
func (g *Gateway) handleBotStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := g.service.GetBotStatuses(r.PathValue("team"))
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]BotStatusView, 0, len(statuses))
	for _, s := range statuses {
		views = append(views, BotStatusView{Bot: botView(s.Bot, false), Status: s.Status})
	}
	writeJSON(w, http.StatusOK, views)
}

// handleSendMessage handles POST /api/teams/{team}/bots/{name}/messages.
// It blocks until the worker's first reply or the response timeout.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	team := r.PathValue("team")
	msg, err := bot.NewMessage(req.Text, team, req.ThreadID, req.ChannelID, req.Sender)
	if err != nil {
		writeError(w, err)
		return
	}

	replyCh := make(chan *bot.Reply, 1)
	_, err = g.service.SendMessageToBot(team, r.PathValue("name"), msg, func(reply *bot.Reply) {
		select {
		case replyCh <- reply:
		default:
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}

	select {
	case reply := <-replyCh:
		writeJSON(w, http.StatusOK, SendMessageResponse{MessageID: msg.ID, Reply: reply})
	case <-time.After(g.config.Bots.ResponseTimeout):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "reply_timeout", Message: "bot did not reply in time"})
	case <-r.Context().Done():
	}
}

// handleCopyBot handles POST /api/teams/{team}/bots/{name}/copy.
func (g *Gateway) handleCopyBot(w http.ResponseWriter, r *http.Request) {
	key, err := g.service.CopyBot(r.PathValue("team"), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CopyBotResponse{CopyKey: key})
}

// handlePasteBot handles POST /api/teams/{team}/bots/paste.
func (g *Gateway) handlePasteBot(w http.ResponseWriter, r *http.Request) {
	var req PasteBotRequest
	if !decodeBody(w, r, &req) {
		return
	}

	b, err := g.service.PasteBot(r.Context(), r.PathValue("team"), req.CopyKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, botView(b, false))
}
