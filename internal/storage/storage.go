// ABOUTME: Pluggable blob persistence used by the bot registry.
// ABOUTME: Backends: in-memory, whole-file JSON, and a sqlite single-row table.

// Package storage persists the registry's bot table as one opaque blob.
// A backend that has never been written to reports an empty blob on Load;
// any other load failure is surfaced to the caller, which treats it as
// fatal at startup.
package storage

import "context"

// Storage is the load/save pair the registry persists through. Save
// overwrites the previous blob; Load returns nil when nothing has been
// saved yet.
type Storage interface {
	Save(ctx context.Context, blob []byte) error
	Load(ctx context.Context) ([]byte, error)
	Close() error
}
