package mqtt

import (
	"sync"

	"github.com/sweeney/dust-controller/internal/logic"
)

// FakePublisher records published events for test assertions.
// It is safe for concurrent use; read the recorded slices after the code
// under test has stopped, or through the accessor methods.
type FakePublisher struct {
	mu sync.Mutex

	// Transitions contains all tool transitions that were published.
	Transitions []logic.Transition

	// Actuations contains all actuations that were published.
	Actuations []logic.Actuation

	// Payloads contains the JSON payloads of transitions and actuations in order.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishTransition and PublishActuation.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishTransition records the transition.
func (f *FakePublisher) PublishTransition(tr logic.Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatTransition(tr)
	if err != nil {
		return err
	}
	f.Transitions = append(f.Transitions, tr)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishActuation records the actuation.
func (f *FakePublisher) PublishActuation(a logic.Actuation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatActuation(a)
	if err != nil {
		return err
	}
	f.Actuations = append(f.Actuations, a)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// TransitionsFor returns the recorded transitions of one tool.
func (f *FakePublisher) TransitionsFor(tool string) []logic.Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []logic.Transition
	for _, tr := range f.Transitions {
		if tr.Tool == tool {
			out = append(out, tr)
		}
	}
	return out
}

// ActuationsFor returns the recorded actuations of one actuator.
func (f *FakePublisher) ActuationsFor(kind logic.ActuationKind, id string) []logic.Actuation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []logic.Actuation
	for _, a := range f.Actuations {
		if a.Kind == kind && a.ID == id {
			out = append(out, a)
		}
	}
	return out
}

// SystemEventNames returns the Event field of every recorded system event.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		out[i] = e.Event
	}
	return out
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Transitions = nil
	f.Actuations = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
