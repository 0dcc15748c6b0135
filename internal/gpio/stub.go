//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errUnsupported
}

// Input is not implemented on non-Linux platforms.
func (c *Chip) Input(pin int, activeLow bool) (*LineInput, error) {
	return nil, errUnsupported
}

// Output is not implemented on non-Linux platforms.
func (c *Chip) Output(pin int, activeLow bool) (*LineOutput, error) {
	return nil, errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (c *Chip) Close() error {
	return nil
}

// LineInput is not available on non-Linux platforms.
type LineInput struct{}

// Read is not implemented on non-Linux platforms.
func (in *LineInput) Read() (bool, error) {
	return false, errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (in *LineInput) Close() error {
	return nil
}

// LineOutput is not available on non-Linux platforms.
type LineOutput struct{}

// Write is not implemented on non-Linux platforms.
func (out *LineOutput) Write(on bool) error {
	return errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (out *LineOutput) Close() error {
	return nil
}
