package config

import (
	"errors"
	"fmt"

	"github.com/sweeney/dust-controller/internal/hub"
	"github.com/sweeney/dust-controller/internal/sensor"
)

// Validate checks every wiring reference and range. All problems are
// reported together; each one wraps ErrInvalid.
func (c *Config) Validate() error {
	v := &validator{}

	if c.Control.Tick <= 0 {
		v.add("control.tick must be positive, got %v", c.Control.Tick)
	}
	if c.Control.ShutdownTimeout < 0 {
		v.add("control.shutdown_timeout must not be negative, got %v", c.Control.ShutdownTimeout)
	}
	if len(c.Tools) == 0 {
		v.add("no tools configured")
	}

	boards := make(map[string]hub.Kind)
	for i, b := range c.Boards {
		if !unique(v, "board", i, b.ID, boards) {
			continue
		}
		if b.Type.Channels() == 0 {
			v.add("board %q: unknown type %q (want %s or %s)", b.ID, b.Type, hub.KindADS1115, hub.KindPCA9685)
		}
		boards[b.ID] = b.Type
	}

	// Shared hardware may only be claimed once.
	pins := make(map[int]string)
	claimPin := func(pin int, owner string) {
		if pin < 0 {
			v.add("%s: gpio pin %d must not be negative", owner, pin)
			return
		}
		if prev, ok := pins[pin]; ok {
			v.add("%s: gpio pin %d already used by %s", owner, pin, prev)
			return
		}
		pins[pin] = owner
	}
	channels := make(map[string]string)
	claimChannel := func(board string, kind hub.Kind, ch int, owner string) {
		if !v.board(owner, board, kind, boards) {
			return
		}
		if err := kind.CheckChannel(ch); err != nil {
			v.add("%s: %v", owner, err)
			return
		}
		key := fmt.Sprintf("%s/%d", board, ch)
		if prev, ok := channels[key]; ok {
			v.add("%s: board %q channel %d already used by %s", owner, board, ch, prev)
			return
		}
		channels[key] = owner
	}

	gates := make(map[string]bool)
	for i, g := range c.Gates {
		if !unique(v, "gate", i, g.ID, gates) {
			continue
		}
		gates[g.ID] = true
		owner := fmt.Sprintf("gate %q", g.ID)
		claimChannel(g.Board, hub.KindPCA9685, g.Channel, owner)
		if g.MinAngle < 0 || g.MaxAngle > 180 || g.MinAngle >= g.MaxAngle {
			v.add("%s: angles must satisfy 0 <= min_angle < max_angle <= 180, got %.1f..%.1f", owner, g.MinAngle, g.MaxAngle)
		}
		if g.Identify.Cycles < 0 {
			v.add("%s: identify.cycles must not be negative", owner)
		}
		if g.Identify.Interval < 0 {
			v.add("%s: identify.interval must not be negative", owner)
		}
	}

	collectors := make(map[string]bool)
	for i, col := range c.Collectors {
		if !unique(v, "collector", i, col.ID, collectors) {
			continue
		}
		collectors[col.ID] = true
		owner := fmt.Sprintf("collector %q", col.ID)
		claimPin(col.RelayPin, owner)
		if col.MinimumUpTime < 0 {
			v.add("%s: minimum_up_time must not be negative", owner)
		}
		if col.SpinDown < 0 {
			v.add("%s: spin_down must not be negative", owner)
		}
	}

	tools := make(map[string]bool)
	for i, t := range c.Tools {
		if !unique(v, "tool", i, t.ID, tools) {
			continue
		}
		tools[t.ID] = true
		owner := fmt.Sprintf("tool %q", t.ID)

		for _, g := range t.Gates {
			if _, ok := gates[g]; !ok {
				v.add("%s: unknown gate %q", owner, g)
			}
		}
		for _, id := range t.UseCollector.IDs {
			if _, ok := collectors[id]; !ok {
				v.add("%s: unknown collector %q", owner, id)
			}
		}

		if t.MinimumRunTime < 0 {
			v.add("%s: minimum_run_time must not be negative", owner)
		}

		if b := t.Button; b != nil {
			bo := owner + " button"
			claimPin(b.Pin, bo)
			if b.Debounce < 0 {
				v.add("%s: debounce must not be negative", bo)
			}
			if b.Poll < 0 {
				v.add("%s: poll must not be negative", bo)
			}
			if b.LED != nil && b.LEDPin != nil {
				v.add("%s: set either led or led_pin, not both", bo)
			}
			if b.LED != nil {
				claimChannel(b.LED.Board, hub.KindPCA9685, b.LED.Red, bo+" led red")
				claimChannel(b.LED.Board, hub.KindPCA9685, b.LED.Green, bo+" led green")
				claimChannel(b.LED.Board, hub.KindPCA9685, b.LED.Blue, bo+" led blue")
			}
			if b.LEDPin != nil {
				claimPin(*b.LEDPin, bo+" led")
			}
			if _, _, err := b.Colors(); err != nil {
				v.add("%s: %v", bo, err)
			}
		}

		if s := t.Sensor; s != nil {
			so := owner + " sensor"
			claimChannel(s.Board, hub.KindADS1115, s.Channel, so)
			switch s.Strategy {
			case "", sensor.StrategyBand, sensor.StrategyPeak:
			default:
				v.add("%s: unknown strategy %q (want %s or %s)", so, s.Strategy, sensor.StrategyBand, sensor.StrategyPeak)
			}
			if s.Margin != 0 && s.Margin <= 1 {
				v.add("%s: margin must be greater than 1, got %v", so, s.Margin)
			}
			if s.Window < 0 {
				v.add("%s: window must be at least 1, got %d", so, s.Window)
			}
			if s.CalibrationSamples < 0 {
				v.add("%s: calibration_samples must be at least 1, got %d", so, s.CalibrationSamples)
			}
			if s.TriggerFraction < 0 || s.TriggerFraction > 1 {
				v.add("%s: trigger_fraction must be in (0, 1], got %v", so, s.TriggerFraction)
			}
			if s.Interval < 0 {
				v.add("%s: interval must not be negative", so)
			}
			if s.UnknownHold < 0 {
				v.add("%s: unknown_hold must not be negative", so)
			}
		}
	}

	return errors.Join(v.errs...)
}

type validator struct {
	errs []error
}

func (v *validator) add(format string, args ...any) {
	v.errs = append(v.errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
}

// unique checks that an entry has a non-empty id not yet in seen.
func unique[V any](v *validator, kind string, index int, id string, seen map[string]V) bool {
	if id == "" {
		v.add("%s #%d: missing id", kind, index+1)
		return false
	}
	if _, dup := seen[id]; dup {
		v.add("%s %q: duplicate id", kind, id)
		return false
	}
	return true
}

// board checks that owner refers to an existing board of the wanted kind.
func (v *validator) board(owner, id string, want hub.Kind, boards map[string]hub.Kind) bool {
	if id == "" {
		v.add("%s: missing board", owner)
		return false
	}
	kind, ok := boards[id]
	if !ok {
		v.add("%s: unknown board %q", owner, id)
		return false
	}
	if kind != want {
		v.add("%s: board %q is a %s, want %s", owner, id, kind, want)
		return false
	}
	return true
}
