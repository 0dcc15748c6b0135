// Package sensor turns a stream of raw analog readings from a current sensor
// clamped to a tool's power line into an on/off decision.
//
// A sensor is calibrated once, while the tool is idle, to learn its noise
// floor. After that every reading is pushed into a fixed sliding window and
// the window is compared to thresholds derived from the calibration baseline.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sweeney/dust-controller/internal/logic"
)

// Strategy selects how the window is compared to the calibration baseline.
type Strategy string

const (
	// StrategyBand derives a band [mean/margin, mean*margin] from the idle
	// mean and reports on when at least TriggerFraction of the window falls
	// outside it.
	StrategyBand Strategy = "band"
	// StrategyPeak sets trigger = max(idle samples) * margin and reports on
	// when the window maximum exceeds it.
	StrategyPeak Strategy = "peak"
)

// Defaults for zero-valued Config fields.
const (
	DefaultWindow             = 30
	DefaultCalibrationSamples = 30
	DefaultBandMargin         = 1.03
	DefaultPeakMargin         = 1.003
	DefaultTriggerFraction    = 0.5
)

var (
	// ErrCalibration is returned when idle samples cannot produce usable thresholds.
	ErrCalibration = errors.New("sensor calibration failed")
	// ErrAlreadyCalibrated is returned when Calibrate is called without Rearm.
	ErrAlreadyCalibrated = errors.New("sensor already calibrated")
)

// Config describes one current sensor.
type Config struct {
	Label              string
	Strategy           Strategy
	Window             int
	CalibrationSamples int
	Margin             float64
	TriggerFraction    float64
}

func (c Config) withDefaults() Config {
	if c.Strategy == "" {
		c.Strategy = StrategyBand
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.CalibrationSamples <= 0 {
		c.CalibrationSamples = DefaultCalibrationSamples
	}
	if c.Margin == 0 {
		if c.Strategy == StrategyPeak {
			c.Margin = DefaultPeakMargin
		} else {
			c.Margin = DefaultBandMargin
		}
	}
	if c.TriggerFraction <= 0 {
		c.TriggerFraction = DefaultTriggerFraction
	}
	return c
}

// Thresholds describes the calibration result of a sensor.
type Thresholds struct {
	Strategy    Strategy
	Calibrated  bool
	Unavailable bool
	Baseline    float64
	Low         float64
	High        float64
}

// Sensor is a calibrating threshold detector. It is safe for concurrent use:
// the sampling worker writes readings while the control loop reads State.
type Sensor struct {
	mu  sync.Mutex
	cfg Config

	window      *window
	calibrated  bool
	unavailable bool
	failure     error
	readErr     error

	baseline float64
	low      float64
	high     float64
}

// New creates an uncalibrated sensor. Zero-valued config fields take the
// package defaults.
func New(cfg Config) *Sensor {
	cfg = cfg.withDefaults()
	return &Sensor{
		cfg:    cfg,
		window: newWindow(cfg.Window),
	}
}

// Config returns the effective configuration.
func (s *Sensor) Config() Config {
	return s.cfg
}

// Calibrate derives thresholds from readings taken while the tool is idle.
// It succeeds at most once per lifetime unless the sensor is re-armed.
func (s *Sensor) Calibrate(samples []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.calibrated {
		return ErrAlreadyCalibrated
	}
	if len(samples) < s.cfg.CalibrationSamples {
		return fmt.Errorf("%w: got %d samples, need %d", ErrCalibration, len(samples), s.cfg.CalibrationSamples)
	}
	if s.cfg.Margin <= 1 {
		return fmt.Errorf("%w: margin %.4f must be greater than 1", ErrCalibration, s.cfg.Margin)
	}

	sum, peak := 0.0, 0.0
	for i, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: sample %d is not a number", ErrCalibration, i)
		}
		sum += v
		if i == 0 || v > peak {
			peak = v
		}
	}
	mean := sum / float64(len(samples))

	switch s.cfg.Strategy {
	case StrategyPeak:
		if peak <= 0 {
			return fmt.Errorf("%w: idle peak %.4fV is not positive", ErrCalibration, peak)
		}
		s.baseline = peak
		s.low = 0
		s.high = peak * s.cfg.Margin
	case StrategyBand:
		if mean <= 0 {
			return fmt.Errorf("%w: idle mean %.4fV is not positive", ErrCalibration, mean)
		}
		s.baseline = mean
		s.low = mean / s.cfg.Margin
		s.high = mean * s.cfg.Margin
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrCalibration, s.cfg.Strategy)
	}

	s.calibrated = true
	s.unavailable = false
	s.failure = nil
	s.readErr = nil
	s.window.reset()
	return nil
}

// MarkUnavailable excludes the sensor from fusion until it is re-armed.
func (s *Sensor) MarkUnavailable(err error) {
	s.mu.Lock()
	s.unavailable = true
	s.failure = err
	s.mu.Unlock()
}

// Failure returns the error that made the sensor unavailable, if any.
func (s *Sensor) Failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Rearm discards the calibration so the sampling worker calibrates again.
// The tool should be idle while this happens.
func (s *Sensor) Rearm() {
	s.mu.Lock()
	s.calibrated = false
	s.unavailable = false
	s.failure = nil
	s.readErr = nil
	s.window.reset()
	s.mu.Unlock()
}

// NeedsCalibration reports whether the sensor is waiting for a calibration.
func (s *Sensor) NeedsCalibration() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.calibrated && !s.unavailable
}

// Unavailable reports whether calibration failed.
func (s *Sensor) Unavailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unavailable
}

// Observe pushes a new reading into the sliding window. Readings taken before
// calibration are dropped.
func (s *Sensor) Observe(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = nil
	if !s.calibrated || s.unavailable {
		return
	}
	s.window.push(v)
}

// ObserveError records a failed read. The sensor reports SensorUnknown until
// the next successful reading; the window keeps its previous contents.
func (s *Sensor) ObserveError(err error) {
	s.mu.Lock()
	s.readErr = err
	s.mu.Unlock()
}

// IsOn reports whether the tool is drawing current. It is false until the
// sensor is calibrated and the window has filled.
func (s *Sensor) IsOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOn()
}

func (s *Sensor) isOn() bool {
	if !s.calibrated || s.unavailable || !s.window.full() {
		return false
	}
	switch s.cfg.Strategy {
	case StrategyPeak:
		return s.window.max() > s.high
	default:
		n := s.window.outside(s.low, s.high)
		return float64(n) >= s.cfg.TriggerFraction*float64(s.window.len())
	}
}

// State returns the reading the sensor contributes to tool status fusion.
func (s *Sensor) State() logic.SensorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.calibrated || s.unavailable || s.readErr != nil {
		return logic.SensorUnknown
	}
	if s.isOn() {
		return logic.SensorOn
	}
	return logic.SensorOff
}

// Thresholds returns the current calibration result.
func (s *Sensor) Thresholds() Thresholds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Thresholds{
		Strategy:    s.cfg.Strategy,
		Calibrated:  s.calibrated,
		Unavailable: s.unavailable,
		Baseline:    s.baseline,
		Low:         s.low,
		High:        s.high,
	}
}
