package control

import (
	"errors"

	"github.com/sweeney/dust-controller/internal/gpio"
	"github.com/sweeney/dust-controller/internal/hub"
	"github.com/sweeney/dust-controller/internal/sensor"
)

// Hardware hands out the devices the configuration refers to.
type Hardware interface {
	Analog(board string, channel int) (sensor.Channel, error)
	Servo(board string, channel int, minDeg, maxDeg float64) (hub.Servo, error)
	RGB(board string, red, green, blue int) (hub.RGB, error)
	Input(pin int, activeLow bool) (gpio.Input, error)
	Output(pin int, activeLow bool) (gpio.Output, error)
}

var errNoBoards = errors.New("no i2c boards configured")

// Devices is the Hardware of a real controller: I2C boards on a hub and
// lines on a GPIO chip.
type Devices struct {
	Hub  *hub.Hub
	Chip *gpio.Chip
}

// Analog returns an ADS1115 channel.
func (d Devices) Analog(board string, channel int) (sensor.Channel, error) {
	if d.Hub == nil {
		return nil, errNoBoards
	}
	dev, err := d.Hub.Analog(board, channel)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Servo returns a PCA9685 servo channel.
func (d Devices) Servo(board string, channel int, minDeg, maxDeg float64) (hub.Servo, error) {
	if d.Hub == nil {
		return nil, errNoBoards
	}
	dev, err := d.Hub.Servo(board, channel, minDeg, maxDeg)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// RGB returns three PCA9685 channels driving an RGB LED.
func (d Devices) RGB(board string, red, green, blue int) (hub.RGB, error) {
	if d.Hub == nil {
		return nil, errNoBoards
	}
	dev, err := d.Hub.RGB(board, red, green, blue)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Input requests a GPIO input line.
func (d Devices) Input(pin int, activeLow bool) (gpio.Input, error) {
	dev, err := d.Chip.Input(pin, activeLow)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Output requests a GPIO output line.
func (d Devices) Output(pin int, activeLow bool) (gpio.Output, error) {
	dev, err := d.Chip.Output(pin, activeLow)
	if err != nil {
		return nil, err
	}
	return dev, nil
}
