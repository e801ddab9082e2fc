// Package testutil holds the shared test doubles.
package testutil

import (
	"sync"

	"github.com/logward/logward"
)

// MockTransport records every entry it receives.
type MockTransport struct {
	mu      sync.Mutex
	Entries []logward.Entry
	// Panic makes Log panic, for testing the facade's isolation.
	Panic bool
}

func (m *MockTransport) Log(entry logward.Entry) {
	if m.Panic {
		panic("mock transport failure")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, entry)
}

// Received returns a snapshot of the recorded entries.
func (m *MockTransport) Received() []logward.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]logward.Entry, len(m.Entries))
	copy(out, m.Entries)
	return out
}

// Messages returns just the message strings, in arrival order.
func (m *MockTransport) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e.Message)
	}
	return out
}
