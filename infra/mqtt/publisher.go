package mqtt

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/planboard/core/events"
	coremqtt "github.com/kilianp07/planboard/core/mqtt"
)

// Publisher mirrors the core mqtt.Publisher interface.
type Publisher = coremqtt.Publisher

// MockPublisher records published messages in memory. It is used in tests
// and when no broker is configured.
type MockPublisher struct {
	Signals   []events.Signal
	Documents []events.DocumentEvent
	Fail      bool
	mu        sync.Mutex
	seq       int
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishSignal records the signal or fails when configured to.
func (m *MockPublisher) PublishSignal(_ context.Context, sig events.Signal) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return "", fmt.Errorf("publish failed")
	}
	m.Signals = append(m.Signals, sig)
	m.seq++
	return fmt.Sprintf("msg-%d", m.seq), nil
}

// PublishDocumentEvent records the event or fails when configured to.
func (m *MockPublisher) PublishDocumentEvent(_ context.Context, ev events.DocumentEvent) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return "", fmt.Errorf("publish failed")
	}
	m.Documents = append(m.Documents, ev)
	m.seq++
	return fmt.Sprintf("msg-%d", m.seq), nil
}

// SignalCount returns the number of recorded signals.
func (m *MockPublisher) SignalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Signals)
}

// DocumentCount returns the number of recorded document events.
func (m *MockPublisher) DocumentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Documents)
}
