package button

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultPoll is used when the worker interval is zero.
const DefaultPoll = 5 * time.Millisecond

// Poller reads a button once and reports a confirmed press. *Button is a
// Poller; callers that must apply a press atomically with the read wrap it.
type Poller interface {
	Poll(now time.Time) (*ToggleEvent, error)
	Label() string
}

// Worker polls at a bounded rate and hands confirmed presses to an optional
// callback.
type Worker struct {
	poller   Poller
	limiter  *rate.Limiter
	now      func() time.Time
	onToggle func(ToggleEvent)
	logger   *zap.Logger
}

// NewWorker creates a polling worker. now supplies timestamps for debounce.
func NewWorker(p Poller, interval time.Duration, now func() time.Time, onToggle func(ToggleEvent), logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultPoll
	}
	return &Worker{
		poller:   p,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		now:      now,
		onToggle: onToggle,
		logger:   logger.With(zap.String("button", p.Label())),
	}
}

// Run polls until ctx is cancelled. Read errors are logged once per streak.
func (w *Worker) Run(ctx context.Context) error {
	failing := false
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil
		}

		ev, err := w.poller.Poll(w.now())
		if err != nil {
			if !failing {
				w.logger.Warn("button read failed", zap.Error(err))
				failing = true
			}
			continue
		}
		if failing {
			w.logger.Info("button read recovered")
			failing = false
		}
		if ev != nil {
			w.logger.Debug("button toggled", zap.Bool("on", ev.On))
			if w.onToggle != nil {
				w.onToggle(*ev)
			}
		}
	}
}
