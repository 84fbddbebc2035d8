// ABOUTME: In-memory Transport fake shared by the connection and manager tests
// ABOUTME: Records outbound frames and lets tests inject inbound ones

package botconn

import (
	"encoding/json"
	"errors"
	"sync"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []Envelope
	sendErr error
	closed  bool

	inbound   chan Envelope
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan Envelope, 16),
	}
}

func (f *fakeTransport) Send(event string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.closed {
		return errors.New("transport closed")
	}

	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		env.Data = raw
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) Inbound() <-chan Envelope {
	return f.inbound
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.inbound)
	})
	return nil
}

// push injects an inbound frame as if the worker had sent it.
func (f *fakeTransport) push(event string, data any) {
	env := Envelope{Event: event}
	if data != nil {
		raw, _ := json.Marshal(data)
		env.Data = raw
	}
	f.inbound <- env
}

func (f *fakeTransport) sentEvents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := make([]string, len(f.sent))
	for i, env := range f.sent {
		events[i] = env.Event
	}
	return events
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
