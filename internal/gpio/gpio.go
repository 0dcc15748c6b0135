// Package gpio provides digital inputs and outputs with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
//
// All values are logical: active-low wiring is handled when a line is
// requested, so true always means pressed, energised or lit.
package gpio

// Input reads one digital input, such as a push button.
type Input interface {
	// Read returns the logical level of the line.
	Read() (bool, error)

	// Close releases the line.
	Close() error
}

// Output drives one digital output, such as a collector relay or an LED.
type Output interface {
	// Write sets the logical level of the line.
	Write(on bool) error

	// Close drives the line inactive and releases it.
	Close() error
}

// DefaultChip is the GPIO chip exposing the Raspberry Pi header pins.
const DefaultChip = "gpiochip0"
