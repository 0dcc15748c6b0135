package control

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sweeney/dust-controller/internal/status"
)

// ToggleTool flips the tool's button as if it had been pressed and returns
// the new toggle state. The status change is picked up on the next tick.
func (c *Controller) ToggleTool(id string) (bool, error) {
	t, ok := c.toolByID[id]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownTool, id)
	}
	ev := t.Toggle(c.now())
	c.logger.Info("tool toggled remotely", zap.String("tool", id), zap.Bool("on", ev.On))
	return ev.On, nil
}

// RecalibrateTool discards the calibration of the tool's current sensor. Its
// sampling worker calibrates again on the next cycle, so the tool should be
// idle. Until then the sensor contributes nothing to the tool's status.
func (c *Controller) RecalibrateTool(id string) error {
	t, ok := c.toolByID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTool, id)
	}
	if t.sensor == nil {
		return fmt.Errorf("%w: %q", ErrNoSensor, id)
	}
	t.sensor.Rearm()
	c.logger.Info("sensor re-armed", zap.String("tool", id))
	return nil
}

// IdentifyGate wiggles the gate so an operator can find it. It blocks until
// the wiggle finishes or ctx is cancelled; routing writes for the gate are
// deferred meanwhile and retried on the next tick.
func (c *Controller) IdentifyGate(ctx context.Context, id string) error {
	g, ok := c.gateByID[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGate, id)
	}
	c.logger.Info("identifying gate", zap.String("gate", id))
	if err := g.Identify(ctx, c.sleep); err != nil {
		return fmt.Errorf("identify gate %q: %w", id, err)
	}
	return nil
}

// Status returns the latest tracked snapshot. It is the zero Snapshot when
// the controller was built without a tracker.
func (c *Controller) Status() status.Snapshot {
	if c.tracker == nil {
		return status.Snapshot{}
	}
	return c.tracker.Snapshot()
}
