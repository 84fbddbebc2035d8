// Package bot holds the bot domain model and the registry of bot identities.
//
// # Bot
//
// A Bot is a registered worker identity. It is addressed by a human-chosen
// name that is unique (case-insensitively) within each team the bot belongs
// to. A bot may be shared into additional teams via copy/paste without
// re-registration.
//
// # Registry
//
// The Registry is the single source of truth for bot records. It keeps two
// indices: by id, and by (team, lowercased name). All reads return copies;
// callers mutate the copy and commit it with Save. Every mutation persists
// the whole table to the configured storage backend before returning, so the
// registry and the store are never observably out of sync.
package bot
