// Package status provides a thread-safe status tracker for the dust controller.
// It is written by the control loop and read by HTTP handlers and MQTT
// lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/dust-controller/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	ConfigPath  string
	TickMs      int64
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
	WSBroker    string // Websocket broker URL for browser MQTT (empty = disabled)
	TopicPrefix string
}

// SensorInfo is the calibration state of a tool's current sensor.
type SensorInfo struct {
	Strategy    string
	Required    bool
	Calibrated  bool
	Unavailable bool
	Failure     string
	Baseline    float64
	Low         float64
	High        float64
}

// ToolStatus is the state of one tool.
type ToolStatus struct {
	ID             string
	Label          string
	Status         logic.Status
	Override       bool
	Sensor         logic.SensorState
	SensorInfo     *SensorInfo
	Gates          []string
	Collectors     []string
	LastTransition time.Time
	OnCount        int
}

// GateStatus is the state of one blast gate.
type GateStatus struct {
	ID          string
	Label       string
	Position    logic.GatePosition
	Pending     bool // the last write failed and is being retried
	Identifying bool
}

// CollectorStatus is the state of one dust collector.
type CollectorStatus struct {
	ID           string
	Label        string
	State        logic.CollectorState
	LastTurnedOn time.Time
	Pending      bool // running with no active tools, waiting out hold times
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	InstanceID    string
	Tools         []ToolStatus
	Gates         []GateStatus
	Collectors    []CollectorStatus
	Ready         bool // every available sensor is calibrated
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// ActiveTools returns how many tools are ON or spinning down.
func (s Snapshot) ActiveTools() int {
	n := 0
	for _, t := range s.Tools {
		if t.Status.Active() {
			n++
		}
	}
	return n
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, instance id and config.
func NewTracker(startTime time.Time, instanceID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			InstanceID: instanceID,
			StartTime:  startTime,
			Config:     cfg,
		},
	}
}

// Update replaces the tool, gate and collector state.
// Called from the control loop on every tick.
func (t *Tracker) Update(tools []ToolStatus, gates []GateStatus, collectors []CollectorStatus, ready bool) {
	t.mu.Lock()
	t.snap.Tools = tools
	t.snap.Gates = gates
	t.snap.Collectors = collectors
	t.snap.Ready = ready
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Tools = copyTools(t.snap.Tools)
	s.Gates = append([]GateStatus(nil), t.snap.Gates...)
	s.Collectors = append([]CollectorStatus(nil), t.snap.Collectors...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

func copyTools(in []ToolStatus) []ToolStatus {
	if in == nil {
		return nil
	}
	out := make([]ToolStatus, len(in))
	for i, t := range in {
		t.Gates = append([]string(nil), t.Gates...)
		t.Collectors = append([]string(nil), t.Collectors...)
		if t.SensorInfo != nil {
			info := *t.SensorInfo
			t.SensorInfo = &info
		}
		out[i] = t
	}
	return out
}
