package control

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sweeney/dust-controller/internal/hub"
	"github.com/sweeney/dust-controller/internal/logic"
	"github.com/sweeney/dust-controller/internal/status"
)

var (
	// ErrGateBusy is returned by a routing write while the gate is identifying.
	ErrGateBusy = errors.New("gate busy")
	// ErrGateHalted is returned by Identify once shutdown has begun.
	ErrGateHalted = errors.New("gate halted for shutdown")
)

// forcePoll is how often force retries the move lock while waiting for an
// interrupted identify to restore the gate.
const forcePoll = 5 * time.Millisecond

// Identify tunes the commissioning wiggle of a gate.
type Identify struct {
	LowAngle  float64
	HighAngle float64
	Cycles    int
	Interval  time.Duration
}

// Gate is the runtime handle of one servo blast gate. It is open at its
// maximum angle and closed at its minimum angle.
type Gate struct {
	id, label string
	servo     hub.Servo
	min, max  float64
	identify  Identify

	// move serialises servo motion: routing writes and identify.
	move        sync.Mutex
	identifying atomic.Bool

	mu           sync.Mutex
	position     logic.GatePosition
	known        bool
	pending      bool
	halted       bool
	stopIdentify context.CancelFunc
}

// ID returns the gate id.
func (g *Gate) ID() string {
	return g.id
}

// Position returns the last successfully written position and whether any
// write has succeeded yet.
func (g *Gate) Position() (logic.GatePosition, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.position, g.known
}

func (g *Gate) angle(p logic.GatePosition) float64 {
	if p == logic.GateOpen {
		return g.max
	}
	return g.min
}

// Apply moves the gate to want unless it is already known to be there. It
// reports whether the servo was written. A failed or deferred write leaves
// the last known position unchanged and marks the gate pending; a pending
// gate is always written on the next Apply.
func (g *Gate) Apply(want logic.GatePosition) (bool, error) {
	if !g.move.TryLock() {
		g.setPending(true)
		return false, ErrGateBusy
	}
	defer g.move.Unlock()
	return g.write(want, false)
}

// force writes want even if the gate is believed to be there already. It
// waits for a running identify to release the servo, but no longer than ctx
// allows; a gate it could not reach is left pending.
func (g *Gate) force(ctx context.Context, want logic.GatePosition) error {
	for !g.move.TryLock() {
		t := time.NewTimer(forcePoll)
		select {
		case <-ctx.Done():
			t.Stop()
			g.setPending(true)
			return ctx.Err()
		case <-t.C:
		}
	}
	defer g.move.Unlock()
	_, err := g.write(want, true)
	return err
}

// halt cancels a running identify and refuses new ones.
func (g *Gate) halt() {
	g.mu.Lock()
	g.halted = true
	stop := g.stopIdentify
	g.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (g *Gate) write(want logic.GatePosition, always bool) (bool, error) {
	g.mu.Lock()
	same := g.known && g.position == want && !g.pending
	g.mu.Unlock()
	if same && !always {
		g.setPending(false)
		return false, nil
	}

	if err := g.servo.SetAngle(g.angle(want)); err != nil {
		g.setPending(true)
		return false, err
	}

	g.mu.Lock()
	g.position = want
	g.known = true
	g.pending = false
	g.mu.Unlock()
	return true, nil
}

// Pending reports whether the last write failed or was deferred.
func (g *Gate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

func (g *Gate) setPending(p bool) {
	g.mu.Lock()
	g.pending = p
	g.mu.Unlock()
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Identify cycles the gate between its identify angles so an operator can
// find it, then restores the last known position (closed if none). Routing
// writes for this gate are deferred until it finishes. Halting the gate
// cancels the wiggle.
func (g *Gate) Identify(ctx context.Context, sleep Sleeper) error {
	g.move.Lock()
	defer g.move.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.mu.Lock()
	if g.halted {
		g.mu.Unlock()
		return ErrGateHalted
	}
	g.stopIdentify = cancel
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.stopIdentify = nil
		g.mu.Unlock()
	}()

	g.identifying.Store(true)
	defer g.identifying.Store(false)

	low := hub.Clamp(g.identify.LowAngle, g.min, g.max)
	high := hub.Clamp(g.identify.HighAngle, g.min, g.max)

	var err error
cycle:
	for i := 0; i < g.identify.Cycles; i++ {
		for _, a := range []float64{low, high} {
			if err = g.servo.SetAngle(a); err != nil {
				break cycle
			}
			if err = sleep(ctx, g.identify.Interval); err != nil {
				break cycle
			}
		}
	}

	pos, _ := g.Position()
	if rerr := g.servo.SetAngle(g.angle(pos)); rerr != nil {
		g.setPending(true)
		return errors.Join(err, rerr)
	}
	return err
}

func (g *Gate) status() status.GateStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	pos := g.position
	if !g.known {
		pos = "UNKNOWN"
	}
	return status.GateStatus{
		ID:          g.id,
		Label:       g.label,
		Position:    pos,
		Pending:     g.pending,
		Identifying: g.identifying.Load(),
	}
}
