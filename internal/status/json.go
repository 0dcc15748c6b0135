package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Instance      string          `json:"instance"`
	Ready         bool            `json:"ready"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	Tools         []ToolJSON      `json:"tools"`
	Gates         []GateJSON      `json:"gates"`
	Collectors    []CollectorJSON `json:"collectors"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Network       *NetworkJSON    `json:"network,omitempty"`
	Config        ConfigJSON      `json:"config"`
}

// ToolJSON is the JSON representation of a tool.
type ToolJSON struct {
	ID             string      `json:"id"`
	Label          string      `json:"label"`
	Status         string      `json:"status"`
	Override       bool        `json:"override"`
	Sensor         string      `json:"sensor"`
	SensorInfo     *SensorJSON `json:"sensor_info,omitempty"`
	Gates          []string    `json:"gates"`
	Collectors     []string    `json:"collectors"`
	LastTransition string      `json:"last_transition,omitempty"`
	OnCount        int         `json:"on_count"`
}

// SensorJSON is the JSON representation of a sensor calibration.
type SensorJSON struct {
	Strategy    string  `json:"strategy"`
	Required    bool    `json:"required"`
	Calibrated  bool    `json:"calibrated"`
	Unavailable bool    `json:"unavailable"`
	Failure     string  `json:"failure,omitempty"`
	Baseline    float64 `json:"baseline"`
	Low         float64 `json:"low"`
	High        float64 `json:"high"`
}

// GateJSON is the JSON representation of a gate.
type GateJSON struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Position    string `json:"position"`
	Pending     bool   `json:"pending,omitempty"`
	Identifying bool   `json:"identifying,omitempty"`
}

// CollectorJSON is the JSON representation of a collector.
type CollectorJSON struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	State        string `json:"state"`
	LastTurnedOn string `json:"last_turned_on,omitempty"`
	Pending      bool   `json:"pending,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ConfigPath  string `json:"config_path,omitempty"`
	TickMs      int64  `json:"tick_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	WSBroker    string `json:"ws_broker,omitempty"`
	TopicPrefix string `json:"topic_prefix,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Instance:      snap.InstanceID,
		Ready:         snap.Ready,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Tools:         make([]ToolJSON, 0, len(snap.Tools)),
		Gates:         make([]GateJSON, 0, len(snap.Gates)),
		Collectors:    make([]CollectorJSON, 0, len(snap.Collectors)),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			ConfigPath:  snap.Config.ConfigPath,
			TickMs:      snap.Config.TickMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			WSBroker:    snap.Config.WSBroker,
			TopicPrefix: snap.Config.TopicPrefix,
		},
	}

	for _, t := range snap.Tools {
		status := string(t.Status)
		if status == "" {
			status = "UNKNOWN"
		}
		tj := ToolJSON{
			ID:             t.ID,
			Label:          t.Label,
			Status:         status,
			Override:       t.Override,
			Sensor:         t.Sensor.String(),
			Gates:          nonNil(t.Gates),
			Collectors:     nonNil(t.Collectors),
			LastTransition: formatTime(t.LastTransition),
			OnCount:        t.OnCount,
		}
		if si := t.SensorInfo; si != nil {
			tj.SensorInfo = &SensorJSON{
				Strategy:    si.Strategy,
				Required:    si.Required,
				Calibrated:  si.Calibrated,
				Unavailable: si.Unavailable,
				Failure:     si.Failure,
				Baseline:    si.Baseline,
				Low:         si.Low,
				High:        si.High,
			}
		}
		inner.Tools = append(inner.Tools, tj)
	}
	for _, g := range snap.Gates {
		inner.Gates = append(inner.Gates, GateJSON{
			ID:          g.ID,
			Label:       g.Label,
			Position:    string(g.Position),
			Pending:     g.Pending,
			Identifying: g.Identifying,
		})
	}
	for _, c := range snap.Collectors {
		inner.Collectors = append(inner.Collectors, CollectorJSON{
			ID:           c.ID,
			Label:        c.Label,
			State:        string(c.State),
			LastTurnedOn: formatTime(c.LastTurnedOn),
			Pending:      c.Pending,
		})
	}
	return inner
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
