// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"io"
	"log/slog"
	"sync"

	"github.com/pledgeworks/pledge/internal/protocol"
)

// Monday is 2024-01-01T00:00:00Z, a convenient start for schedule tests.
const Monday protocol.Timestamp = 1704067200

// ManualTime is a settable time source. It satisfies engine.TimeSource.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualTime struct {
	mu  sync.Mutex
	now protocol.Timestamp
}

// NewManualTime creates a time source reading start.
func NewManualTime(start protocol.Timestamp) *ManualTime {
	return &ManualTime{now: start}
}

// Now returns the current manual time.
func (m *ManualTime) Now() protocol.Timestamp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set jumps to t. Going backwards is allowed; the engine clamps.
func (m *ManualTime) Set(t protocol.Timestamp) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves time forward by seconds and returns the new time.
func (m *ManualTime) Advance(seconds int64) protocol.Timestamp {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += seconds
	return m.now
}

// DiscardLogger returns a logger that writes nothing.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
