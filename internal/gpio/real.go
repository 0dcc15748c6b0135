//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// Chip is a GPIO chip opened once per process and shared by every line
// requested from it.
type Chip struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

// OpenChip opens the named GPIO character device, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &Chip{chip: chip}, nil
}

// Input requests pin as an input. Active-low inputs get a pull-up so an
// unconnected button reads released; active-high inputs get a pull-down.
func (c *Chip) Input(pin int, activeLow bool) (*LineInput, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullDown}
	if activeLow {
		opts = []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.AsActiveLow, gpiocdev.WithPullUp}
	}
	line, err := c.request(pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", pin, err)
	}
	return &LineInput{pin: pin, line: line}, nil
}

// Output requests pin as an output, initially inactive.
func (c *Chip) Output(pin int, activeLow bool) (*LineOutput, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := c.request(pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &LineOutput{pin: pin, line: line}, nil
}

func (c *Chip) request(pin int, opts ...gpiocdev.LineReqOption) (*gpiocdev.Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chip == nil {
		return nil, errors.New("gpio chip closed")
	}
	line, err := c.chip.RequestLine(pin, opts...)
	if err != nil {
		return nil, err
	}
	c.lines = append(c.lines, line)
	return line, nil
}

// Close closes the chip. Lines still held are released as the kernel drops
// the chip file descriptor.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chip == nil {
		return nil
	}
	err := c.chip.Close()
	c.chip = nil
	c.lines = nil
	if err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}

// LineInput is an input line on a Chip.
type LineInput struct {
	pin  int
	line *gpiocdev.Line
}

// Read returns the logical level of the line.
func (in *LineInput) Read() (bool, error) {
	v, err := in.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", in.pin, err)
	}
	return v == 1, nil
}

// Close releases the line.
// Reconfigures the pin to input with pull-down (matching Pi boot defaults)
// before closing so external hardware sees a known level during reboot.
func (in *LineInput) Close() error {
	var errs []error
	if err := in.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", in.pin, err))
	}
	if err := in.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", in.pin, err))
	}
	return errors.Join(errs...)
}

// LineOutput is an output line on a Chip.
type LineOutput struct {
	pin  int
	line *gpiocdev.Line
}

// Write sets the logical level of the line.
func (out *LineOutput) Write(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := out.line.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", out.pin, err)
	}
	return nil
}

// Close drives the line inactive and releases it.
func (out *LineOutput) Close() error {
	var errs []error
	if err := out.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("reset pin %d: %w", out.pin, err))
	}
	if err := out.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", out.pin, err))
	}
	return errors.Join(errs...)
}
