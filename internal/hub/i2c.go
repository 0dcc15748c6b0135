package hub

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"
)

// Hub is the set of boards on one I2C bus.
type Hub struct {
	logger *zap.Logger
	bus    i2c.BusCloser

	adcs map[string]*adcBoard
	pwms map[string]*pwmBoard
}

type adcBoard struct {
	mu   sync.Mutex
	cfg  Board
	dev  *ads1x15.Dev
	pins map[int]ads1x15.PinADC
}

type pwmBoard struct {
	mu     sync.Mutex
	cfg    Board
	dev    *pca9685.Dev
	servos *pca9685.ServoGroup
}

// Open initialises the host drivers, opens the I2C bus (empty name selects
// the first bus) and probes every board.
func Open(busName string, boards []Board, logger *zap.Logger) (*Hub, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}

	h := &Hub{
		logger: logger,
		bus:    bus,
		adcs:   make(map[string]*adcBoard),
		pwms:   make(map[string]*pwmBoard),
	}
	for _, b := range boards {
		if err := h.add(b.WithDefaults()); err != nil {
			h.Close()
			return nil, err
		}
	}
	return h, nil
}

func (h *Hub) add(b Board) error {
	switch b.Kind {
	case KindADS1115:
		opts := ads1x15.DefaultOpts
		opts.I2cAddress = b.Address
		dev, err := ads1x15.NewADS1115(h.bus, &opts)
		if err != nil {
			return fmt.Errorf("open ads1115 %s at %#x: %w", b.ID, b.Address, err)
		}
		h.adcs[b.ID] = &adcBoard{cfg: b, dev: dev, pins: make(map[int]ads1x15.PinADC)}

	case KindPCA9685:
		dev, err := pca9685.NewI2C(h.bus, b.Address)
		if err != nil {
			return fmt.Errorf("open pca9685 %s at %#x: %w", b.ID, b.Address, err)
		}
		if err := dev.SetPwmFreq(physic.Frequency(b.Frequency) * physic.Hertz); err != nil {
			return fmt.Errorf("set pca9685 %s frequency: %w", b.ID, err)
		}
		minPwm := gpio.Duty(pulseCounts(b.ServoMinPulse, b.Frequency))
		maxPwm := gpio.Duty(pulseCounts(b.ServoMaxPulse, b.Frequency))
		servos := pca9685.NewServoGroup(dev, minPwm, maxPwm, 0, 180*physic.Degree)
		h.pwms[b.ID] = &pwmBoard{cfg: b, dev: dev, servos: servos}

	default:
		return fmt.Errorf("board %s: %w %q", b.ID, ErrWrongKind, b.Kind)
	}
	h.logger.Info("board ready",
		zap.String("board", b.ID),
		zap.String("kind", string(b.Kind)),
		zap.String("address", fmt.Sprintf("%#x", b.Address)))
	return nil
}

// Analog returns an analog input on an ADS1115 board.
func (h *Hub) Analog(board string, channel int) (*AnalogInput, error) {
	b, err := h.adc(board)
	if err != nil {
		return nil, err
	}
	if err := KindADS1115.CheckChannel(channel); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	pin, ok := b.pins[channel]
	if !ok {
		pin, err = b.dev.PinForChannel(
			ads1x15.Channel(channel),
			physic.ElectricPotential(b.cfg.MaxVoltage*float64(physic.Volt)),
			physic.Frequency(b.cfg.SampleRate)*physic.Hertz,
			ads1x15.BestQuality)
		if err != nil {
			return nil, fmt.Errorf("ads1115 %s channel %d: %w", board, channel, err)
		}
		b.pins[channel] = pin
	}
	return &AnalogInput{board: b, channel: channel, pin: pin}, nil
}

// Servo returns a servo output on a PCA9685 board limited to [minDeg, maxDeg].
func (h *Hub) Servo(board string, channel int, minDeg, maxDeg float64) (*ServoOutput, error) {
	b, err := h.pwm(board)
	if err != nil {
		return nil, err
	}
	if err := KindPCA9685.CheckChannel(channel); err != nil {
		return nil, err
	}
	return &ServoOutput{
		board: b,
		servo: b.servos.GetServo(channel),
		min:   minDeg,
		max:   maxDeg,
	}, nil
}

// RGB returns an RGB LED driven by three channels of a PCA9685 board.
func (h *Hub) RGB(board string, r, g, b int) (*RGBOutput, error) {
	pb, err := h.pwm(board)
	if err != nil {
		return nil, err
	}
	for _, ch := range []int{r, g, b} {
		if err := KindPCA9685.CheckChannel(ch); err != nil {
			return nil, err
		}
	}
	return &RGBOutput{board: pb, channels: [3]int{r, g, b}}, nil
}

func (h *Hub) adc(id string) (*adcBoard, error) {
	if b, ok := h.adcs[id]; ok {
		return b, nil
	}
	if _, ok := h.pwms[id]; ok {
		return nil, fmt.Errorf("%w: %s is not an ads1115", ErrWrongKind, id)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBoard, id)
}

func (h *Hub) pwm(id string) (*pwmBoard, error) {
	if b, ok := h.pwms[id]; ok {
		return b, nil
	}
	if _, ok := h.adcs[id]; ok {
		return nil, fmt.Errorf("%w: %s is not a pca9685", ErrWrongKind, id)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownBoard, id)
}

// Close halts the analog pins, turns every PWM output off and closes the bus.
func (h *Hub) Close() error {
	var errs []error
	for id, b := range h.adcs {
		b.mu.Lock()
		for ch, pin := range b.pins {
			if err := pin.Halt(); err != nil {
				errs = append(errs, fmt.Errorf("halt %s channel %d: %w", id, ch, err))
			}
		}
		b.pins = nil
		b.mu.Unlock()
	}
	for id, b := range h.pwms {
		b.mu.Lock()
		if err := b.dev.SetAllPwm(0, 0); err != nil {
			errs = append(errs, fmt.Errorf("reset %s: %w", id, err))
		}
		b.mu.Unlock()
	}
	if err := h.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close i2c bus: %w", err))
	}
	return errors.Join(errs...)
}

// AnalogInput is one ADS1115 channel.
type AnalogInput struct {
	board   *adcBoard
	channel int
	pin     ads1x15.PinADC
}

// ReadVoltage performs one conversion and returns volts.
func (a *AnalogInput) ReadVoltage() (float64, error) {
	a.board.mu.Lock()
	s, err := a.pin.Read()
	a.board.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("read %s channel %d: %w", a.board.cfg.ID, a.channel, err)
	}
	return float64(s.V) / float64(physic.Volt), nil
}

// ServoOutput is one PCA9685 servo channel.
type ServoOutput struct {
	board    *pwmBoard
	servo    *pca9685.Servo
	min, max float64
}

// SetAngle moves the servo, clamping deg to the configured range.
func (s *ServoOutput) SetAngle(deg float64) error {
	deg = Clamp(deg, s.min, s.max)
	s.board.mu.Lock()
	defer s.board.mu.Unlock()
	if err := s.servo.SetAngle(physic.Angle(deg * float64(physic.Degree))); err != nil {
		return fmt.Errorf("set %s servo to %.1f deg: %w", s.board.cfg.ID, deg, err)
	}
	return nil
}

// RGBOutput is an RGB LED on three PCA9685 channels.
type RGBOutput struct {
	board    *pwmBoard
	channels [3]int
}

// SetColor sets the duty cycle of each colour channel.
func (l *RGBOutput) SetColor(c Color) error {
	l.board.mu.Lock()
	defer l.board.mu.Unlock()
	for i, v := range []uint8{c.R, c.G, c.B} {
		off := gpio.Duty(colorCounts(v, l.board.cfg.CommonAnode))
		if err := l.board.dev.SetPwm(l.channels[i], 0, off); err != nil {
			return fmt.Errorf("set %s channel %d: %w", l.board.cfg.ID, l.channels[i], err)
		}
	}
	return nil
}
