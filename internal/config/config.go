// Package config loads the declarative description of the shop: I2C boards,
// blast gates, dust collectors and tools with their buttons and current
// sensors. The configuration is read once at startup and never changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/dust-controller/internal/hub"
	"github.com/sweeney/dust-controller/internal/sensor"
)

// ErrInvalid wraps every validation problem.
var ErrInvalid = errors.New("invalid config")

// Config is the root of the YAML file.
type Config struct {
	I2CBus     string            `yaml:"i2c_bus"`
	GPIOChip   string            `yaml:"gpio_chip"`
	Logging    LoggingConfig     `yaml:"logging"`
	MQTT       MQTTConfig        `yaml:"mqtt"`
	Control    ControlConfig     `yaml:"control"`
	Boards     []BoardConfig     `yaml:"boards"`
	Gates      []GateConfig      `yaml:"gates"`
	Collectors []CollectorConfig `yaml:"collectors"`
	Tools      []ToolConfig      `yaml:"tools"`
}

// LoggingConfig selects the zap level and encoding. Command-line flags win.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// MQTTConfig describes the event sink. Command-line flags win.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// ControlConfig tunes the control loop.
type ControlConfig struct {
	Tick            time.Duration `yaml:"tick"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
}

// BoardConfig describes one I2C board.
type BoardConfig struct {
	ID            string        `yaml:"id"`
	Type          hub.Kind      `yaml:"type"`
	Address       uint16        `yaml:"i2c_address"`
	MaxVoltage    float64       `yaml:"max_voltage"`
	SampleRate    int           `yaml:"sample_rate"`
	Frequency     int           `yaml:"frequency"`
	ServoMinPulse time.Duration `yaml:"servo_min_pulse"`
	ServoMaxPulse time.Duration `yaml:"servo_max_pulse"`
	CommonAnode   bool          `yaml:"common_anode"`
}

// Hub converts the board description for the hub package.
func (b BoardConfig) Hub() hub.Board {
	return hub.Board{
		ID:            b.ID,
		Kind:          b.Type,
		Address:       b.Address,
		MaxVoltage:    b.MaxVoltage,
		SampleRate:    b.SampleRate,
		Frequency:     b.Frequency,
		ServoMinPulse: b.ServoMinPulse,
		ServoMaxPulse: b.ServoMaxPulse,
		CommonAnode:   b.CommonAnode,
	}.WithDefaults()
}

// GateConfig describes one servo blast gate. The gate is open at MaxAngle
// and closed at MinAngle.
type GateConfig struct {
	ID       string         `yaml:"id"`
	Label    string         `yaml:"label"`
	Board    string         `yaml:"board"`
	Channel  int            `yaml:"channel"`
	MinAngle float64        `yaml:"min_angle"`
	MaxAngle float64        `yaml:"max_angle"`
	Identify IdentifyConfig `yaml:"identify"`
}

// IdentifyConfig tunes the commissioning wiggle of a gate.
type IdentifyConfig struct {
	LowAngle  float64       `yaml:"low_angle"`
	HighAngle float64       `yaml:"high_angle"`
	Cycles    int           `yaml:"cycles"`
	Interval  time.Duration `yaml:"interval"`
}

// CollectorConfig describes one dust collector relay.
type CollectorConfig struct {
	ID            string        `yaml:"id"`
	Label         string        `yaml:"label"`
	RelayPin      int           `yaml:"relay_pin"`
	ActiveLow     bool          `yaml:"active_low"`
	MinimumUpTime time.Duration `yaml:"minimum_up_time"`
	SpinDown      time.Duration `yaml:"spin_down"`
}

// ToolConfig describes one machine.
type ToolConfig struct {
	ID             string        `yaml:"id"`
	Label          string        `yaml:"label"`
	Gates          []string      `yaml:"gates"`
	SpinDown       time.Duration `yaml:"spin_down"`
	MinimumRunTime time.Duration `yaml:"minimum_run_time"`
	UseCollector   CollectorRefs `yaml:"use_collector"`
	Button         *ButtonConfig `yaml:"button"`
	Sensor         *SensorConfig `yaml:"sensor"`
}

// ButtonConfig describes a tool's push button and its indicator.
type ButtonConfig struct {
	Pin       int           `yaml:"pin"`
	ActiveLow bool          `yaml:"active_low"`
	Debounce  time.Duration `yaml:"debounce"`
	Poll      time.Duration `yaml:"poll"`
	LED       *RGBConfig    `yaml:"led"`
	LEDPin    *int          `yaml:"led_pin"`
	OnColor   string        `yaml:"on_color"`
	OffColor  string        `yaml:"off_color"`
}

// RGBConfig places an RGB LED on three channels of a PCA9685 board.
type RGBConfig struct {
	Board string `yaml:"board"`
	Red   int    `yaml:"red"`
	Green int    `yaml:"green"`
	Blue  int    `yaml:"blue"`
}

// SensorConfig describes a tool's current sensor.
type SensorConfig struct {
	Board              string          `yaml:"board"`
	Channel            int             `yaml:"channel"`
	Strategy           sensor.Strategy `yaml:"strategy"`
	Margin             float64         `yaml:"margin"`
	Window             int             `yaml:"window"`
	CalibrationSamples int             `yaml:"calibration_samples"`
	TriggerFraction    float64         `yaml:"trigger_fraction"`
	Interval           time.Duration   `yaml:"interval"`
	Required           bool            `yaml:"required"`
	UnknownHold        time.Duration   `yaml:"unknown_hold"` // zero holds a running tool ON until the sensor reads again
}

// Sensor converts the description for the sensor package.
func (s SensorConfig) Sensor(label string) sensor.Config {
	return sensor.Config{
		Label:              label,
		Strategy:           s.Strategy,
		Window:             s.Window,
		CalibrationSamples: s.CalibrationSamples,
		Margin:             s.Margin,
		TriggerFraction:    s.TriggerFraction,
	}
}

// CollectorRefs is the use_collector setting of a tool. It accepts a bool
// (true opts into every collector) or a list of collector ids. Omitted means
// every collector.
type CollectorRefs struct {
	set bool
	All bool
	IDs []string
}

// UnmarshalYAML accepts either a scalar bool or a sequence of ids.
func (c *CollectorRefs) UnmarshalYAML(n *yaml.Node) error {
	c.set = true
	switch n.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := n.Decode(&b); err != nil {
			return fmt.Errorf("line %d: use_collector must be a bool or a list of collector ids", n.Line)
		}
		c.All = b
		c.IDs = nil
		return nil
	case yaml.SequenceNode:
		c.All = false
		return n.Decode(&c.IDs)
	}
	return fmt.Errorf("line %d: use_collector must be a bool or a list of collector ids", n.Line)
}

// Resolve returns the collector ids a tool opts into.
func (c CollectorRefs) Resolve(all []string) []string {
	if !c.set || c.All {
		return append([]string(nil), all...)
	}
	return append([]string(nil), c.IDs...)
}

// Defaults.
const (
	DefaultPath            = "/etc/dust-controller/config.yaml"
	DefaultTopicPrefix     = "shop/dust"
	DefaultTick            = 100 * time.Millisecond
	DefaultShutdownTimeout = 5 * time.Second
	DefaultHeartbeat       = 15 * time.Minute
	DefaultIdentifyLow     = 80.0
	DefaultIdentifyHigh    = 100.0
	DefaultIdentifyCycles  = 20
	DefaultIdentifyPeriod  = 200 * time.Millisecond
	DefaultSensorInterval  = 10 * time.Millisecond
)

// Default indicator colours.
var (
	DefaultOnColor  = hub.Green
	DefaultOffColor = hub.Red
)

// Load reads, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates YAML from memory. Unknown keys are
// rejected so a typo cannot silently drop a wiring setting.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.GPIOChip == "" {
		c.GPIOChip = "gpiochip0"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if c.Control.Tick == 0 {
		c.Control.Tick = DefaultTick
	}
	if c.Control.ShutdownTimeout == 0 {
		c.Control.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Control.Heartbeat == 0 {
		c.Control.Heartbeat = DefaultHeartbeat
	}

	for i := range c.Gates {
		g := &c.Gates[i]
		if g.MinAngle == 0 && g.MaxAngle == 0 {
			g.MaxAngle = 180
		}
		if g.Identify.LowAngle == 0 && g.Identify.HighAngle == 0 {
			g.Identify.LowAngle = DefaultIdentifyLow
			g.Identify.HighAngle = DefaultIdentifyHigh
		}
		if g.Identify.Cycles == 0 {
			g.Identify.Cycles = DefaultIdentifyCycles
		}
		if g.Identify.Interval == 0 {
			g.Identify.Interval = DefaultIdentifyPeriod
		}
		if g.Label == "" {
			g.Label = g.ID
		}
	}

	for i := range c.Collectors {
		if c.Collectors[i].Label == "" {
			c.Collectors[i].Label = c.Collectors[i].ID
		}
	}

	for i := range c.Tools {
		t := &c.Tools[i]
		if t.Label == "" {
			t.Label = t.ID
		}
		if b := t.Button; b != nil {
			if b.OnColor == "" {
				b.OnColor = DefaultOnColor.String()
			}
			if b.OffColor == "" {
				b.OffColor = DefaultOffColor.String()
			}
		}
		if s := t.Sensor; s != nil && s.Interval == 0 {
			s.Interval = DefaultSensorInterval
		}
	}
}

// CollectorIDs returns every collector id in file order.
func (c *Config) CollectorIDs() []string {
	ids := make([]string, len(c.Collectors))
	for i, col := range c.Collectors {
		ids[i] = col.ID
	}
	return ids
}

// GateIDs returns every gate id in file order.
func (c *Config) GateIDs() []string {
	ids := make([]string, len(c.Gates))
	for i, g := range c.Gates {
		ids[i] = g.ID
	}
	return ids
}

// Board returns the board with the given id.
func (c *Config) Board(id string) (BoardConfig, bool) {
	for _, b := range c.Boards {
		if b.ID == id {
			return b, true
		}
	}
	return BoardConfig{}, false
}

// HubBoards returns the boards in the form the hub opens them.
func (c *Config) HubBoards() []hub.Board {
	out := make([]hub.Board, len(c.Boards))
	for i, b := range c.Boards {
		out[i] = b.Hub()
	}
	return out
}

// Colors returns the parsed indicator colours of a button.
func (b ButtonConfig) Colors() (on, off hub.Color, err error) {
	if on, err = hub.ParseColor(b.OnColor); err != nil {
		return
	}
	off, err = hub.ParseColor(b.OffColor)
	return
}
