package control

import (
	"time"

	"github.com/sweeney/dust-controller/internal/gpio"
	"github.com/sweeney/dust-controller/internal/logic"
	"github.com/sweeney/dust-controller/internal/status"
)

// Collector is the runtime handle of one dust collector relay. It is only
// touched by the control loop.
type Collector struct {
	ctrl  *logic.CollectorController
	label string
	relay gpio.Output

	// retry is set when the last relay write failed.
	retry bool
}

// ID returns the collector id.
func (c *Collector) ID() string {
	return c.ctrl.ID()
}

// State returns the last committed state.
func (c *Collector) State() logic.CollectorState {
	return c.ctrl.State()
}

// evaluate decides the wanted state and drives the relay when it changes.
// It returns the actuation on a successful write. A failed write keeps the
// committed state so the next evaluation tries again.
func (c *Collector) evaluate(tools []logic.ToolSnapshot, now time.Time) (*logic.Actuation, error) {
	want, change := c.ctrl.Decide(tools, now)
	if !change {
		c.retry = false
		return nil, nil
	}
	if err := c.relay.Write(want == logic.CollectorOn); err != nil {
		c.retry = true
		return nil, err
	}
	c.retry = false
	c.ctrl.Commit(want, now)
	return &logic.Actuation{
		Timestamp: now,
		Kind:      logic.ActuationCollector,
		ID:        c.ID(),
		State:     string(want),
	}, nil
}

// needsEvaluation reports whether the loop must evaluate the collector even
// though no tool changed.
func (c *Collector) needsEvaluation(tools []logic.ToolSnapshot) bool {
	return c.retry || c.ctrl.Pending(tools)
}

func (c *Collector) status(tools []logic.ToolSnapshot) status.CollectorStatus {
	return status.CollectorStatus{
		ID:           c.ID(),
		Label:        c.label,
		State:        c.ctrl.State(),
		LastTurnedOn: c.ctrl.LastTurnedOn(),
		Pending:      c.ctrl.Pending(tools),
	}
}
