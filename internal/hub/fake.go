package hub

import (
	"errors"
	"sync"
)

// FakeChannel is a test double for an analog channel returning scripted volts.
// It is safe for concurrent use.
type FakeChannel struct {
	mu sync.Mutex

	// Values contains scripted readings. Each call to ReadVoltage() consumes
	// the next value; the last value repeats once exhausted.
	Values []float64
	index  int

	// ReadError, if set, will be returned by ReadVoltage().
	ReadError error

	// Reads counts calls to ReadVoltage.
	Reads int
}

// NewFakeChannel creates a FakeChannel with the given values.
func NewFakeChannel(values ...float64) *FakeChannel {
	return &FakeChannel{Values: values}
}

// ReadVoltage returns the next scripted value.
func (f *FakeChannel) ReadVoltage() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Values) == 0 {
		return 0, errors.New("no values configured")
	}
	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v, nil
}

// Set replaces the script with a constant reading.
func (f *FakeChannel) Set(v float64) {
	f.mu.Lock()
	f.Values = []float64{v}
	f.index = 0
	f.mu.Unlock()
}

// SetError sets or clears the error returned by ReadVoltage.
func (f *FakeChannel) SetError(err error) {
	f.mu.Lock()
	f.ReadError = err
	f.mu.Unlock()
}

// FakeServo is a test double that records clamped angles.
type FakeServo struct {
	mu sync.Mutex

	Min, Max float64

	// Angles records every successful move in order.
	Angles []float64

	// WriteError, if set, will be returned by SetAngle() and nothing is recorded.
	WriteError error
}

// NewFakeServo creates a FakeServo limited to [min, max].
func NewFakeServo(min, max float64) *FakeServo {
	return &FakeServo{Min: min, Max: max}
}

// SetAngle records deg clamped to [Min, Max].
func (f *FakeServo) SetAngle(deg float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Angles = append(f.Angles, Clamp(deg, f.Min, f.Max))
	return nil
}

// SetError sets or clears the error returned by SetAngle.
func (f *FakeServo) SetError(err error) {
	f.mu.Lock()
	f.WriteError = err
	f.mu.Unlock()
}

// Last returns the last recorded angle and whether any move happened.
func (f *FakeServo) Last() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Angles) == 0 {
		return 0, false
	}
	return f.Angles[len(f.Angles)-1], true
}

// Moves returns how many moves succeeded.
func (f *FakeServo) Moves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Angles)
}

// FakeRGB is a test double that records colours.
type FakeRGB struct {
	mu sync.Mutex

	// Colors records every successful SetColor in order.
	Colors []Color

	// WriteError, if set, will be returned by SetColor().
	WriteError error
}

// SetColor records c.
func (f *FakeRGB) SetColor(c Color) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Colors = append(f.Colors, c)
	return nil
}

// Last returns the last recorded colour.
func (f *FakeRGB) Last() Color {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Colors) == 0 {
		return Off
	}
	return f.Colors[len(f.Colors)-1]
}
