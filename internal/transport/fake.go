package transport

import (
	"sync"
	"time"

	"github.com/skytrace/copilot/pkg/logger"
)

// Published is one recorded publish.
type Published struct {
	Topic   string
	Payload []byte
	Timeout time.Duration
}

// FakePublisher records publishes for tests and bench runs.
type FakePublisher struct {
	mu        sync.Mutex
	Published []Published
	// PublishError, if set, is returned by Publish.
	PublishError error
	Closed       bool
}

// NewFakePublisher creates a FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the payload.
func (f *FakePublisher) Publish(topic string, payload []byte, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Published = append(f.Published, Published{Topic: topic, Payload: payload, Timeout: timeout})
	return nil
}

// Close marks the publisher closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// All returns a copy of what was published.
func (f *FakePublisher) All() []Published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Published(nil), f.Published...)
}

// LogPublisher logs payloads instead of sending them, for bench runs
// without a broker.
type LogPublisher struct {
	L logger.Logger
}

// Publish logs the payload.
func (p LogPublisher) Publish(topic string, payload []byte, timeout time.Duration) error {
	p.L.Info("publish %s (within %s): %s", topic, timeout, payload)
	return nil
}

// Close is a no-op.
func (LogPublisher) Close() error { return nil }
