// Package hub owns the I2C boards of the controller: ADS1115 analog
// converters reading the current sensors and PCA9685 PWM drivers moving gate
// servos and lighting RGB button LEDs.
//
// The bus is opened once per process. Every board wrapper serialises its own
// transactions so sensor workers and the control loop can share a board.
package hub

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the type of an I2C board.
type Kind string

const (
	KindADS1115 Kind = "ads1115"
	KindPCA9685 Kind = "pca9685"
)

// Channel counts per board kind.
const (
	ADS1115Channels = 4
	PCA9685Channels = 16
)

// Default I2C addresses.
const (
	DefaultADS1115Address uint16 = 0x48
	DefaultPCA9685Address uint16 = 0x40
)

// Defaults for zero-valued Board fields.
const (
	DefaultMaxVoltage    = 5.0
	DefaultSampleRate    = 860
	DefaultPWMFrequency  = 50
	DefaultServoMinPulse = 500 * time.Microsecond
	DefaultServoMaxPulse = 2500 * time.Microsecond
)

const pcaResolution = 4096

var (
	// ErrUnknownBoard is returned when a channel refers to a board that was not opened.
	ErrUnknownBoard = errors.New("unknown board")
	// ErrWrongKind is returned when a channel is requested from the wrong kind of board.
	ErrWrongKind = errors.New("wrong board kind")
	// ErrChannelRange is returned for a channel number the board does not have.
	ErrChannelRange = errors.New("channel out of range")
)

// Board describes one I2C board on the bus.
type Board struct {
	ID      string
	Kind    Kind
	Address uint16

	// ADS1115 only.
	MaxVoltage float64
	SampleRate int

	// PCA9685 only.
	Frequency     int
	ServoMinPulse time.Duration
	ServoMaxPulse time.Duration
	CommonAnode   bool
}

// WithDefaults returns b with zero-valued fields filled in.
func (b Board) WithDefaults() Board {
	switch b.Kind {
	case KindADS1115:
		if b.Address == 0 {
			b.Address = DefaultADS1115Address
		}
		if b.MaxVoltage == 0 {
			b.MaxVoltage = DefaultMaxVoltage
		}
		if b.SampleRate == 0 {
			b.SampleRate = DefaultSampleRate
		}
	case KindPCA9685:
		if b.Address == 0 {
			b.Address = DefaultPCA9685Address
		}
		if b.Frequency == 0 {
			b.Frequency = DefaultPWMFrequency
		}
		if b.ServoMinPulse == 0 {
			b.ServoMinPulse = DefaultServoMinPulse
		}
		if b.ServoMaxPulse == 0 {
			b.ServoMaxPulse = DefaultServoMaxPulse
		}
	}
	return b
}

// Channels returns how many channels the board kind has, or 0 for an unknown kind.
func (k Kind) Channels() int {
	switch k {
	case KindADS1115:
		return ADS1115Channels
	case KindPCA9685:
		return PCA9685Channels
	}
	return 0
}

// CheckChannel validates a channel number for the board kind.
func (k Kind) CheckChannel(ch int) error {
	if n := k.Channels(); ch < 0 || ch >= n {
		return fmt.Errorf("%w: %s channel %d (have %d)", ErrChannelRange, k, ch, n)
	}
	return nil
}

// AnalogChannel reads a voltage from one analog input.
type AnalogChannel interface {
	ReadVoltage() (float64, error)
}

// Servo moves one gate servo.
type Servo interface {
	// SetAngle moves the servo to deg, clamped to the servo's configured range.
	SetAngle(deg float64) error
}

// RGB lights one RGB LED.
type RGB interface {
	SetColor(c Color) error
}

// Clamp limits deg to [min, max].
func Clamp(deg, min, max float64) float64 {
	if deg < min {
		return min
	}
	if deg > max {
		return max
	}
	return deg
}

// pulseCounts converts a servo pulse width into PCA9685 12-bit counts at freq Hz.
func pulseCounts(pulse time.Duration, freq int) int {
	period := time.Second / time.Duration(freq)
	return int(int64(pulse) * pcaResolution / int64(period))
}

// colorCounts converts an 8-bit colour component into a PCA9685 off count.
// Common-anode LEDs light when the output is low, so the count is inverted.
func colorCounts(v uint8, commonAnode bool) int {
	n := int(v) * (pcaResolution - 1) / 255
	if commonAnode {
		n = pcaResolution - 1 - n
	}
	return n
}
