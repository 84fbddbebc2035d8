// ABOUTME: Domain error taxonomy shared by the registry and the bot service.
// ABOUTME: Callers discriminate with errors.Is for front-end mapping.

package bot

import "errors"

// ErrInvalidArgument indicates malformed caller input. It is never surfaced
// to the remote worker.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrNotFound indicates no bot matched the given id or (team, name).
var ErrNotFound = errors.New("bot not found")

// ErrAlreadyExists indicates a (team, name) collision with a live bot.
var ErrAlreadyExists = errors.New("bot already exists")

// ErrDisabled indicates the bot's disabled flag gates message delivery.
var ErrDisabled = errors.New("bot is disabled")
