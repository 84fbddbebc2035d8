// ABOUTME: Process-lifetime in-memory storage backend.
// ABOUTME: Used for tests and for deployments that accept losing state on restart.

package storage

import (
	"context"
	"sync"
)

// Memory holds the blob for the lifetime of the process.
type Memory struct {
	mu   sync.Mutex
	blob []byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Save(_ context.Context, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob = append([]byte(nil), blob...)
	return nil
}

func (m *Memory) Load(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blob == nil {
		return nil, nil
	}
	return append([]byte(nil), m.blob...), nil
}

func (m *Memory) Close() error { return nil }
