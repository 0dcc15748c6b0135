package gpio

import (
	"errors"
	"sync"
)

// FakeInput is a test double that returns scripted input levels.
// It is safe for concurrent use.
type FakeInput struct {
	mu sync.Mutex

	// Samples contains scripted levels to return.
	// Each call to Read() consumes the next sample.
	Samples []bool

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeInput creates a FakeInput with the given samples.
func NewFakeInput(samples ...bool) *FakeInput {
	return &FakeInput{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeInput) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}

	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// Set replaces the script with a constant level.
func (f *FakeInput) Set(level bool) {
	f.mu.Lock()
	f.Samples = []bool{level}
	f.index = 0
	f.mu.Unlock()
}

// SetError sets or clears the error returned by Read.
func (f *FakeInput) SetError(err error) {
	f.mu.Lock()
	f.ReadError = err
	f.mu.Unlock()
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeOutput is a test double that records writes.
// It is safe for concurrent use.
type FakeOutput struct {
	mu sync.Mutex

	// Writes records every successful write in order.
	Writes []bool

	// Level is the last successfully written level.
	Level bool

	// Closed tracks if Close was called
	Closed bool

	// WriteError, if set, will be returned by Write() and nothing is recorded.
	WriteError error
}

// NewFakeOutput creates a FakeOutput at the inactive level.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Write records the level unless WriteError is set.
func (f *FakeOutput) Write(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, on)
	f.Level = on
	return nil
}

// SetError sets or clears the error returned by Write.
func (f *FakeOutput) SetError(err error) {
	f.mu.Lock()
	f.WriteError = err
	f.mu.Unlock()
}

// Get returns the current level.
func (f *FakeOutput) Get() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Level
}

// WriteCount returns how many writes succeeded.
func (f *FakeOutput) WriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Writes)
}

// Close drives the output inactive and marks it closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.Level = false
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsClosed reports whether Close was called.
func (f *FakeOutput) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Closed
}
