package logic

import "time"

// ToolState fuses the debounced button toggle and the current sensor reading
// of one tool into a canonical Status.
//
// The status is ON while either source says on. When both sources drop, a
// tool with a non-negative spin-down enters SPINDOWN and becomes OFF once the
// spin-down has fully elapsed without a re-trigger. A negative spin-down
// skips the grace period.
//
// A minimum run time keeps a tool ON for at least that long after it turned
// on. A sensor that stays unknown while the tool runs on sensed current holds
// the tool ON; with an unknown hold configured, the tool starts spinning down
// once the sensor has been unknown that long.
//
// ToolState is not safe for concurrent use; the caller holds the per-tool lock.
type ToolState struct {
	id         string
	spinDown   time.Duration
	gates      []string
	collectors []string

	status         Status
	button         bool
	sensor         SensorState
	lastUsed       time.Time
	lastTransition time.Time

	minRunTime  time.Duration
	unknownHold time.Duration

	onSince      time.Time
	unknownSince time.Time
	released     bool // button dropped while a hold kept the tool ON

	flagged bool
	pending []Transition
}

// ToolOption tunes a ToolState.
type ToolOption func(*ToolState)

// WithMinimumRunTime keeps the tool ON for at least d after it turns on.
func WithMinimumRunTime(d time.Duration) ToolOption {
	return func(t *ToolState) { t.minRunTime = d }
}

// WithUnknownHold bounds how long an unknown sensor reading holds a running
// tool ON. Zero holds it until the sensor reads again or the button is used.
func WithUnknownHold(d time.Duration) ToolOption {
	return func(t *ToolState) { t.unknownHold = d }
}

// NewToolState creates a tool in the OFF state.
func NewToolState(id string, spinDown time.Duration, gates, collectors []string, opts ...ToolOption) *ToolState {
	t := &ToolState{
		id:         id,
		spinDown:   spinDown,
		gates:      append([]string(nil), gates...),
		collectors: append([]string(nil), collectors...),
		status:     StatusOff,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the tool id.
func (t *ToolState) ID() string {
	return t.id
}

// Status returns the canonical status.
func (t *ToolState) Status() Status {
	return t.status
}

// Override reports whether the tool is being held on by its button.
func (t *ToolState) Override() bool {
	return t.button
}

// SetButton applies a confirmed button toggle. Turning the button on sets the
// manual override, which suppresses sensor-driven transitions to OFF until
// the button is toggled off again.
func (t *ToolState) SetButton(on bool, now time.Time) *Transition {
	if t.button == on {
		return nil
	}
	t.button = on
	return t.fuse(now, CauseButton)
}

// Update records the latest sensor state and advances the spin-down timer.
// An unknown sensor state never forces a running tool OFF.
func (t *ToolState) Update(sensor SensorState, now time.Time) *Transition {
	if sensor != SensorUnknown {
		t.unknownSince = time.Time{}
	} else if t.unknownSince.IsZero() {
		t.unknownSince = now
	}
	t.sensor = sensor
	return t.fuse(now, CauseSensor)
}

func (t *ToolState) fuse(now time.Time, cause Cause) *Transition {
	if t.button || t.sensor == SensorOn {
		t.released = false
		if t.status != StatusOn {
			t.lastUsed = now
			t.onSince = now
			return t.transition(StatusOn, cause, now)
		}
		return nil
	}

	switch t.status {
	case StatusOn:
		if cause == CauseButton {
			t.released = true
		}
		// A failed or missing sensor reading is not evidence the tool stopped,
		// unless the operator released the button or the unknown hold ran out.
		if t.sensor == SensorUnknown && !t.released {
			if t.unknownHold <= 0 || now.Sub(t.unknownSince) < t.unknownHold {
				return nil
			}
		}
		if now.Sub(t.onSince) < t.minRunTime {
			return nil
		}
		if t.released {
			cause = CauseButton
		}
		t.released = false
		t.lastUsed = now
		if t.spinDown < 0 {
			return t.transition(StatusOff, cause, now)
		}
		return t.transition(StatusSpinningDown, cause, now)

	case StatusSpinningDown:
		if now.Sub(t.lastUsed) > t.spinDown {
			return t.transition(StatusOff, CauseSpinDown, now)
		}
	}
	return nil
}

func (t *ToolState) transition(to Status, cause Cause, now time.Time) *Transition {
	tr := Transition{
		Tool:  t.id,
		From:  t.status,
		To:    to,
		Cause: cause,
		At:    now,
	}
	t.status = to
	t.lastTransition = now
	t.flagged = true
	t.pending = append(t.pending, tr)
	return &tr
}

// Consume returns the transitions recorded since the last call and whether
// any occurred, clearing the dirty flag. Each transition is returned exactly once.
func (t *ToolState) Consume() ([]Transition, bool) {
	if !t.flagged {
		return nil, false
	}
	out := t.pending
	t.pending = nil
	t.flagged = false
	return out, true
}

// Snapshot returns a copy of the tool's fused state.
func (t *ToolState) Snapshot() ToolSnapshot {
	return ToolSnapshot{
		ID:             t.id,
		Status:         t.status,
		Override:       t.button,
		Sensor:         t.sensor,
		Gates:          append([]string(nil), t.gates...),
		Collectors:     append([]string(nil), t.collectors...),
		SpinDown:       t.spinDown,
		LastUsed:       t.lastUsed,
		LastTransition: t.lastTransition,
	}
}
