package logic

import "time"

// CollectorController decides when a dust collector runs.
//
// It turns on as soon as any opted-in tool is active (ON or SPINDOWN). It
// turns off only when no opted-in tool is active, the collector has been up
// for at least minimumUpTime, and the hold time has passed since the last
// opted-in tool stopped being ON. That moment is taken from the tools' own
// LastUsed, so a re-trigger between two evaluations still restarts the hold.
// The hold time is the larger of the collector's own spin-down and the
// longest spin-down of the tools that used it during the current run.
//
// The logical state only changes through Commit, so a failed relay write
// leaves the controller in its last known state and the same decision is
// made again on the next evaluation.
type CollectorController struct {
	id            string
	minimumUpTime time.Duration
	spinDown      time.Duration

	state        CollectorState
	lastTurnedOn time.Time
	idleSince    time.Time
	hold         time.Duration
}

// NewCollectorController creates a controller in the OFF state.
func NewCollectorController(id string, minimumUpTime, spinDown time.Duration) *CollectorController {
	return &CollectorController{
		id:            id,
		minimumUpTime: minimumUpTime,
		spinDown:      spinDown,
		state:         CollectorOff,
		hold:          spinDown,
	}
}

// ID returns the collector id.
func (c *CollectorController) ID() string {
	return c.id
}

// State returns the last committed state.
func (c *CollectorController) State() CollectorState {
	return c.state
}

// LastTurnedOn returns the time the collector was last committed ON.
func (c *CollectorController) LastTurnedOn() time.Time {
	return c.lastTurnedOn
}

// Decide evaluates the opted-in tools at now and returns the wanted state.
// The second return value is true when the wanted state differs from the
// committed one.
func (c *CollectorController) Decide(tools []ToolSnapshot, now time.Time) (CollectorState, bool) {
	anyOn, anyActive := false, false
	var lastUsed time.Time
	for _, t := range tools {
		if !t.UsesCollector(c.id) {
			continue
		}
		if t.LastUsed.After(lastUsed) {
			lastUsed = t.LastUsed
		}
		switch t.Status {
		case StatusOn:
			anyOn = true
			anyActive = true
		case StatusSpinningDown:
			anyActive = true
		}
		if t.Status.Active() && t.SpinDown > c.hold {
			c.hold = t.SpinDown
		}
	}

	if anyOn {
		c.idleSince = time.Time{}
	} else {
		if c.idleSince.IsZero() {
			c.idleSince = now
		}
		if lastUsed.After(c.idleSince) {
			c.idleSince = lastUsed
		}
	}

	if anyActive {
		return CollectorOn, c.state != CollectorOn
	}
	if c.state == CollectorOff {
		return CollectorOff, false
	}

	if now.Sub(c.lastTurnedOn) < c.minimumUpTime {
		return CollectorOn, false
	}
	if now.Sub(c.idleSince) < c.hold {
		return CollectorOn, false
	}
	return CollectorOff, true
}

// Commit records that the relay now physically matches state.
func (c *CollectorController) Commit(state CollectorState, now time.Time) {
	if state == c.state {
		return
	}
	c.state = state
	if state == CollectorOn {
		c.lastTurnedOn = now
		return
	}
	c.hold = c.spinDown
}

// Pending reports whether the collector is running with no active tools and
// is waiting for its minimum up time or hold time to expire. The control loop
// keeps evaluating a pending collector on every tick.
func (c *CollectorController) Pending(tools []ToolSnapshot) bool {
	if c.state != CollectorOn {
		return false
	}
	for _, t := range tools {
		if t.UsesCollector(c.id) && t.Status.Active() {
			return false
		}
	}
	return true
}
