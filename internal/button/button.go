// Package button turns a push button on a GPIO line into debounced toggle
// events and keeps the button's indicator LED in step with the toggle.
package button

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/dust-controller/internal/gpio"
	"github.com/sweeney/dust-controller/internal/hub"
	"github.com/sweeney/dust-controller/internal/logic"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 50 * time.Millisecond

// Indicator shows the toggle state of a button.
type Indicator interface {
	SetColor(c hub.Color) error
}

// ToggleEvent is a confirmed press.
type ToggleEvent struct {
	// On is the toggle state after the press.
	On bool
	At time.Time
}

// Config describes one button.
type Config struct {
	Label    string
	Debounce time.Duration
	OnColor  hub.Color
	OffColor hub.Color
}

// Button is a debounced toggle. It is safe for concurrent use: the polling
// worker and commissioning requests can both toggle it.
type Button struct {
	mu        sync.Mutex
	cfg       Config
	in        gpio.Input
	debouncer *logic.Debouncer
	indicator Indicator
	logger    *zap.Logger

	on bool
}

// New creates a button in the off state and paints its indicator. in may be
// nil for a tool that is only toggled remotely; indicator may be nil.
func New(cfg Config, in gpio.Input, indicator Indicator, logger *zap.Logger) *Button {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	b := &Button{
		cfg:       cfg,
		in:        in,
		debouncer: logic.NewDebouncer(cfg.Debounce),
		indicator: indicator,
		logger:    logger.With(zap.String("button", cfg.Label)),
	}
	b.paint(false)
	return b
}

// Poll reads the input once and returns a ToggleEvent when a press is
// confirmed. A read error leaves the toggle state unchanged.
func (b *Button) Poll(now time.Time) (*ToggleEvent, error) {
	if b.in == nil {
		return nil, nil
	}
	pressed, err := b.in.Read()
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.debouncer.Sample(pressed, now) {
		return nil, nil
	}
	return b.toggleLocked(now), nil
}

// Toggle flips the state as if the button had been pressed.
func (b *Button) Toggle(now time.Time) ToggleEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.toggleLocked(now)
}

func (b *Button) toggleLocked(now time.Time) *ToggleEvent {
	b.on = !b.on
	b.paint(b.on)
	return &ToggleEvent{On: b.on, At: now}
}

// On returns the current toggle state.
func (b *Button) On() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.on
}

// HasInput reports whether the button is wired to a GPIO line.
func (b *Button) HasInput() bool {
	return b.in != nil
}

// Label returns the configured label.
func (b *Button) Label() string {
	return b.cfg.Label
}

// paint updates the indicator. Failures are logged only; the toggle state
// never depends on the LED.
func (b *Button) paint(on bool) {
	if b.indicator == nil {
		return
	}
	c := b.cfg.OffColor
	if on {
		c = b.cfg.OnColor
	}
	if err := b.indicator.SetColor(c); err != nil {
		b.logger.Warn("indicator update failed", zap.Stringer("color", c), zap.Error(err))
	}
}

// Close releases the input and turns the indicator off.
func (b *Button) Close() error {
	if b.indicator != nil {
		if err := b.indicator.SetColor(hub.Off); err != nil {
			b.logger.Warn("indicator reset failed", zap.Error(err))
		}
	}
	if b.in == nil {
		return nil
	}
	return b.in.Close()
}

// LED shows a button state on a single GPIO LED: lit for any colour but off.
type LED struct {
	out gpio.Output
}

// NewLED wraps out as an Indicator.
func NewLED(out gpio.Output) *LED {
	return &LED{out: out}
}

// SetColor lights the LED unless c is off.
func (l *LED) SetColor(c hub.Color) error {
	return l.out.Write(!c.IsOff())
}

// Close releases the LED output.
func (l *LED) Close() error {
	return l.out.Close()
}
