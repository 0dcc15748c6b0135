package logic

import "time"

// Debouncer turns a raw button level into press events.
//
// A press is confirmed once the pressed level has been held for at least the
// debounce window, and is reported exactly once until the button is released.
// Presses released before the window elapses produce nothing.
type Debouncer struct {
	window       time.Duration
	pressed      bool
	pressedSince time.Time
	fired        bool
}

// NewDebouncer creates a Debouncer with the given window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Sample takes a new raw level and returns true when a press is confirmed.
func (d *Debouncer) Sample(pressed bool, now time.Time) bool {
	if !pressed {
		d.pressed = false
		d.fired = false
		return false
	}

	if !d.pressed {
		// Start of a new candidate press
		d.pressed = true
		d.pressedSince = now
		d.fired = false
	}

	if d.fired {
		return false
	}
	if now.Sub(d.pressedSince) >= d.window {
		d.fired = true
		return true
	}
	return false
}

// Pressed reports whether the last sample was at the pressed level.
func (d *Debouncer) Pressed() bool {
	return d.pressed
}
