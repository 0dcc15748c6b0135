package control

import (
	"sync"
	"time"

	"github.com/sweeney/dust-controller/internal/button"
	"github.com/sweeney/dust-controller/internal/logic"
	"github.com/sweeney/dust-controller/internal/sensor"
	"github.com/sweeney/dust-controller/internal/status"
)

// Tool is the runtime handle of one machine. Its status is fused under the
// tool's own lock so button workers, commissioning requests and the control
// loop never observe a half-updated status.
type Tool struct {
	mu    sync.Mutex
	state *logic.ToolState

	label    string
	button   *button.Button
	sensor   *sensor.Sensor
	worker   *sensor.Worker
	required bool

	// Owned by the control loop.
	onCount int
}

// ID returns the tool id.
func (t *Tool) ID() string {
	return t.state.ID()
}

// Label returns the display name.
func (t *Tool) Label() string {
	return t.label
}

// Sensor returns the tool's current sensor, or nil.
func (t *Tool) Sensor() *sensor.Sensor {
	return t.sensor
}

// Toggle flips the tool's button as if it had been pressed and applies the
// new override. The button and the tool change under the tool lock, so a
// remote toggle and a physical press cannot reach the status out of order.
func (t *Tool) Toggle(now time.Time) button.ToggleEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	ev := t.button.Toggle(now)
	t.state.SetButton(ev.On, ev.At)
	return ev
}

// Poll reads the physical button once and applies a confirmed press.
func (t *Tool) Poll(now time.Time) (*button.ToggleEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ev, err := t.button.Poll(now)
	if err != nil || ev == nil {
		return ev, err
	}
	t.state.SetButton(ev.On, ev.At)
	return ev, nil
}

// Update folds the latest sensor reading into the status and advances the
// spin-down timer.
func (t *Tool) Update(now time.Time) *logic.Transition {
	reading := logic.SensorUnknown
	if t.sensor != nil {
		reading = t.sensor.State()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Update(reading, now)
}

// Consume returns the transitions recorded since the last call.
func (t *Tool) Consume() ([]logic.Transition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Consume()
}

// Snapshot returns a consistent copy of the tool's fused state.
func (t *Tool) Snapshot() logic.ToolSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Snapshot()
}

func (t *Tool) status(snap logic.ToolSnapshot) status.ToolStatus {
	ts := status.ToolStatus{
		ID:             snap.ID,
		Label:          t.label,
		Status:         snap.Status,
		Override:       snap.Override,
		Sensor:         snap.Sensor,
		Gates:          snap.Gates,
		Collectors:     snap.Collectors,
		LastTransition: snap.LastTransition,
		OnCount:        t.onCount,
	}
	if t.sensor != nil {
		th := t.sensor.Thresholds()
		info := &status.SensorInfo{
			Strategy:    string(th.Strategy),
			Required:    t.required,
			Calibrated:  th.Calibrated,
			Unavailable: th.Unavailable,
			Baseline:    th.Baseline,
			Low:         th.Low,
			High:        th.High,
		}
		if err := t.sensor.Failure(); err != nil {
			info.Failure = err.Error()
		}
		ts.SensorInfo = info
	}
	return ts
}
