package control

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sweeney/dust-controller/internal/button"
	"github.com/sweeney/dust-controller/internal/config"
	"github.com/sweeney/dust-controller/internal/sensor"
)

// FromConfig requests every device the configuration names from hw and
// returns the wiring for New. Publisher, tracker and clock are left for the
// caller.
func FromConfig(cfg *config.Config, hw Hardware, logger *zap.Logger) (Options, error) {
	opts := Options{
		Heartbeat:       cfg.Control.Heartbeat,
		ShutdownTimeout: cfg.Control.ShutdownTimeout,
		Logger:          logger,
	}

	for _, g := range cfg.Gates {
		servo, err := hw.Servo(g.Board, g.Channel, g.MinAngle, g.MaxAngle)
		if err != nil {
			return Options{}, fmt.Errorf("gate %s: %w", g.ID, err)
		}
		opts.Gates = append(opts.Gates, GateSpec{
			ID:       g.ID,
			Label:    g.Label,
			Servo:    servo,
			MinAngle: g.MinAngle,
			MaxAngle: g.MaxAngle,
			Identify: Identify{
				LowAngle:  g.Identify.LowAngle,
				HighAngle: g.Identify.HighAngle,
				Cycles:    g.Identify.Cycles,
				Interval:  g.Identify.Interval,
			},
		})
	}

	for _, col := range cfg.Collectors {
		relay, err := hw.Output(col.RelayPin, col.ActiveLow)
		if err != nil {
			return Options{}, fmt.Errorf("collector %s: %w", col.ID, err)
		}
		opts.Collectors = append(opts.Collectors, CollectorSpec{
			ID:            col.ID,
			Label:         col.Label,
			Relay:         relay,
			MinimumUpTime: col.MinimumUpTime,
			SpinDown:      col.SpinDown,
		})
	}

	collectorIDs := cfg.CollectorIDs()
	for _, tc := range cfg.Tools {
		spec := ToolSpec{
			ID:             tc.ID,
			Label:          tc.Label,
			SpinDown:       tc.SpinDown,
			Gates:          tc.Gates,
			Collectors:     tc.UseCollector.Resolve(collectorIDs),
			MinimumRunTime: tc.MinimumRunTime,
		}

		if bc := tc.Button; bc != nil {
			btn, err := buildButton(tc.Label, *bc, hw, logger)
			if err != nil {
				return Options{}, fmt.Errorf("tool %s: %w", tc.ID, err)
			}
			spec.Button = btn
			spec.ButtonPoll = bc.Poll
		}

		if sc := tc.Sensor; sc != nil {
			ch, err := hw.Analog(sc.Board, sc.Channel)
			if err != nil {
				return Options{}, fmt.Errorf("tool %s: sensor: %w", tc.ID, err)
			}
			spec.Sensor = sensor.New(sc.Sensor(tc.Label))
			spec.Channel = ch
			spec.SensorInterval = sc.Interval
			spec.Required = sc.Required
			spec.UnknownHold = sc.UnknownHold
		}

		opts.Tools = append(opts.Tools, spec)
	}

	return opts, nil
}

func buildButton(label string, bc config.ButtonConfig, hw Hardware, logger *zap.Logger) (*button.Button, error) {
	on, off, err := bc.Colors()
	if err != nil {
		return nil, fmt.Errorf("button colours: %w", err)
	}

	in, err := hw.Input(bc.Pin, bc.ActiveLow)
	if err != nil {
		return nil, fmt.Errorf("button: %w", err)
	}

	var indicator button.Indicator
	switch {
	case bc.LED != nil:
		rgb, err := hw.RGB(bc.LED.Board, bc.LED.Red, bc.LED.Green, bc.LED.Blue)
		if err != nil {
			return nil, fmt.Errorf("button led: %w", err)
		}
		indicator = rgb
	case bc.LEDPin != nil:
		out, err := hw.Output(*bc.LEDPin, false)
		if err != nil {
			return nil, fmt.Errorf("button led: %w", err)
		}
		indicator = button.NewLED(out)
	}

	return button.New(button.Config{
		Label:    label,
		Debounce: bc.Debounce,
		OnColor:  on,
		OffColor: off,
	}, in, indicator, logger.Named("button")), nil
}
