// Package logic contains the pure decision logic of the dust controller:
// tool status fusion, button debounce, gate routing and collector hysteresis.
// This package has NO external dependencies (no GPIO, I2C, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Status is the canonical status of a tool.
type Status string

const (
	StatusOff          Status = "OFF"
	StatusOn           Status = "ON"
	StatusSpinningDown Status = "SPINDOWN"
)

// Active reports whether the tool should be treated as running for routing
// and collection purposes.
func (s Status) Active() bool {
	return s == StatusOn || s == StatusSpinningDown
}

// SensorState is the reading a current sensor contributes to fusion.
type SensorState int

const (
	// SensorUnknown means the sensor is absent, uncalibrated, unavailable or
	// its last read failed. It is excluded from fusion.
	SensorUnknown SensorState = iota
	SensorOff
	SensorOn
)

func (s SensorState) String() string {
	switch s {
	case SensorOff:
		return "OFF"
	case SensorOn:
		return "ON"
	default:
		return "UNKNOWN"
	}
}

// Cause names what triggered a status transition.
type Cause string

const (
	CauseButton   Cause = "button"
	CauseSensor   Cause = "sensor"
	CauseSpinDown Cause = "spindown"
)

// Transition is a change of a tool's canonical status.
type Transition struct {
	Tool  string
	From  Status
	To    Status
	Cause Cause
	At    time.Time
}

// GatePosition is the logical state of a blast gate.
type GatePosition string

const (
	GateClosed GatePosition = "CLOSED"
	GateOpen   GatePosition = "OPEN"
)

// CollectorState is the logical state of a dust collector relay.
type CollectorState string

const (
	CollectorOff CollectorState = "OFF"
	CollectorOn  CollectorState = "ON"
)

// ActuationKind names the kind of actuator an Actuation refers to.
type ActuationKind string

const (
	ActuationGate      ActuationKind = "gate"
	ActuationCollector ActuationKind = "collector"
)

// Actuation records a successful actuator write.
type Actuation struct {
	Timestamp time.Time
	Kind      ActuationKind
	ID        string
	State     string
}

// ToolSnapshot is a point-in-time copy of one tool's fused state.
type ToolSnapshot struct {
	ID             string
	Status         Status
	Override       bool
	Sensor         SensorState
	Gates          []string
	Collectors     []string
	SpinDown       time.Duration
	LastUsed       time.Time
	LastTransition time.Time
}

// UsesCollector reports whether the tool opted into the given collector.
func (t ToolSnapshot) UsesCollector(id string) bool {
	for _, c := range t.Collectors {
		if c == id {
			return true
		}
	}
	return false
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
}
