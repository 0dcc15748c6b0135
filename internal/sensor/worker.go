package sensor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Channel is one analog input reading a voltage.
type Channel interface {
	ReadVoltage() (float64, error)
}

// Worker samples a Channel at a bounded rate and feeds the Sensor.
type Worker struct {
	sensor  *Sensor
	ch      Channel
	limiter *rate.Limiter
	logger  *zap.Logger

	// maxCalibrationFailures bounds consecutive read errors during calibration.
	maxCalibrationFailures int
}

// NewWorker creates a worker that reads ch at most once per interval.
func NewWorker(s *Sensor, ch Channel, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &Worker{
		sensor:                 s,
		ch:                     ch,
		limiter:                rate.NewLimiter(rate.Every(interval), 1),
		logger:                 logger.With(zap.String("sensor", s.cfg.Label)),
		maxCalibrationFailures: s.cfg.CalibrationSamples,
	}
}

// Sensor returns the sensor fed by this worker.
func (w *Worker) Sensor() *Sensor {
	return w.sensor
}

// Calibrate collects the configured number of idle samples and calibrates the
// sensor. On failure the sensor is marked unavailable and the error returned.
func (w *Worker) Calibrate(ctx context.Context) error {
	need := w.sensor.cfg.CalibrationSamples
	samples := make([]float64, 0, need)
	failures := 0

	for len(samples) < need {
		if err := w.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("calibrate %s: %w", w.sensor.cfg.Label, err)
		}
		v, err := w.ch.ReadVoltage()
		if err != nil {
			failures++
			if failures > w.maxCalibrationFailures {
				err = fmt.Errorf("%w: %d read errors, last: %v", ErrCalibration, failures, err)
				w.sensor.MarkUnavailable(err)
				return err
			}
			continue
		}
		samples = append(samples, v)
	}

	if err := w.sensor.Calibrate(samples); err != nil {
		w.sensor.MarkUnavailable(err)
		return err
	}

	th := w.sensor.Thresholds()
	w.logger.Info("sensor calibrated",
		zap.String("strategy", string(th.Strategy)),
		zap.Float64("baseline", th.Baseline),
		zap.Float64("low", th.Low),
		zap.Float64("high", th.High),
		zap.Int("samples", len(samples)),
		zap.Int("read_errors", failures))
	return nil
}

// Run samples until ctx is cancelled. Read errors are recorded on the sensor
// and logged once per error streak. A re-armed sensor is calibrated again
// before sampling resumes.
func (w *Worker) Run(ctx context.Context) error {
	failing := false
	lastOn := false

	for {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil
		}

		if w.sensor.Unavailable() {
			continue
		}
		if w.sensor.NeedsCalibration() {
			if err := w.Calibrate(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Warn("recalibration failed, sensor unavailable", zap.Error(err))
			}
			continue
		}

		v, err := w.ch.ReadVoltage()
		if err != nil {
			w.sensor.ObserveError(err)
			if !failing {
				w.logger.Warn("sensor read failed", zap.Error(err))
				failing = true
			}
			continue
		}
		if failing {
			w.logger.Info("sensor read recovered")
			failing = false
		}

		w.sensor.Observe(v)
		if on := w.sensor.IsOn(); on != lastOn {
			w.logger.Debug("sensor changed", zap.Bool("on", on), zap.Float64("volts", v))
			lastOn = on
		}
	}
}
