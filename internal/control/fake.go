package control

import (
	"fmt"
	"sync"

	"github.com/sweeney/dust-controller/internal/gpio"
	"github.com/sweeney/dust-controller/internal/hub"
	"github.com/sweeney/dust-controller/internal/sensor"
)

// FakeHardware is a Hardware that hands out fakes and remembers them so a
// test can drive inputs and inspect outputs by pin or board channel.
type FakeHardware struct {
	mu sync.Mutex

	Channels map[string]*hub.FakeChannel
	Servos   map[string]*hub.FakeServo
	RGBs     map[string]*hub.FakeRGB
	Inputs   map[int]*gpio.FakeInput
	Outputs  map[int]*gpio.FakeOutput

	// Fail, if set, makes every request for the named key fail.
	Fail map[string]error
}

// NewFakeHardware creates an empty FakeHardware.
func NewFakeHardware() *FakeHardware {
	return &FakeHardware{
		Channels: make(map[string]*hub.FakeChannel),
		Servos:   make(map[string]*hub.FakeServo),
		RGBs:     make(map[string]*hub.FakeRGB),
		Inputs:   make(map[int]*gpio.FakeInput),
		Outputs:  make(map[int]*gpio.FakeOutput),
		Fail:     make(map[string]error),
	}
}

// BoardKey names a board channel, e.g. "adc0/2".
func BoardKey(board string, channel int) string {
	return fmt.Sprintf("%s/%d", board, channel)
}

// PinKey names a GPIO pin, e.g. "gpio17".
func PinKey(pin int) string {
	return fmt.Sprintf("gpio%d", pin)
}

// Analog returns the fake channel for board/channel, creating it idle at 1V.
func (f *FakeHardware) Analog(board string, channel int) (sensor.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := BoardKey(board, channel)
	if err := f.Fail[key]; err != nil {
		return nil, err
	}
	ch, ok := f.Channels[key]
	if !ok {
		ch = hub.NewFakeChannel(1.0)
		f.Channels[key] = ch
	}
	return ch, nil
}

// Servo returns the fake servo for board/channel.
func (f *FakeHardware) Servo(board string, channel int, minDeg, maxDeg float64) (hub.Servo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := BoardKey(board, channel)
	if err := f.Fail[key]; err != nil {
		return nil, err
	}
	s, ok := f.Servos[key]
	if !ok {
		s = hub.NewFakeServo(minDeg, maxDeg)
		f.Servos[key] = s
	}
	return s, nil
}

// RGB returns the fake LED keyed by its red channel.
func (f *FakeHardware) RGB(board string, red, green, blue int) (hub.RGB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := BoardKey(board, red)
	if err := f.Fail[key]; err != nil {
		return nil, err
	}
	l, ok := f.RGBs[key]
	if !ok {
		l = &hub.FakeRGB{}
		f.RGBs[key] = l
	}
	return l, nil
}

// Input returns the fake input for pin, initially released.
func (f *FakeHardware) Input(pin int, activeLow bool) (gpio.Input, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[PinKey(pin)]; err != nil {
		return nil, err
	}
	in, ok := f.Inputs[pin]
	if !ok {
		in = gpio.NewFakeInput(false)
		f.Inputs[pin] = in
	}
	return in, nil
}

// Output returns the fake output for pin.
func (f *FakeHardware) Output(pin int, activeLow bool) (gpio.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.Fail[PinKey(pin)]; err != nil {
		return nil, err
	}
	out, ok := f.Outputs[pin]
	if !ok {
		out = gpio.NewFakeOutput()
		f.Outputs[pin] = out
	}
	return out, nil
}
