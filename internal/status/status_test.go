package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/dust-controller/internal/logic"
)

func sampleTools() []ToolStatus {
	return []ToolStatus{
		{
			ID:       "table-saw",
			Label:    "Table Saw",
			Status:   logic.StatusOn,
			Override: true,
			Sensor:   logic.SensorOn,
			SensorInfo: &SensorInfo{
				Strategy:   "peak",
				Calibrated: true,
				Baseline:   1.2,
				High:       1.2036,
			},
			Gates:          []string{"main"},
			Collectors:     []string{"cyclone"},
			LastTransition: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
			OnCount:        3,
		},
		{ID: "sander", Label: "Sander", Status: logic.StatusOff},
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{TickMs: 100, Broker: "tcp://localhost:1883", HTTPPort: ":80"}
	tr := NewTracker(start, "abc123", cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.InstanceID != "abc123" {
		t.Errorf("InstanceID: got %q", snap.InstanceID)
	}
	if snap.Config.TickMs != 100 {
		t.Errorf("Config.TickMs: got %d, want 100", snap.Config.TickMs)
	}
	if snap.Ready {
		t.Error("expected Ready=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})

	tr.Update(sampleTools(),
		[]GateStatus{{ID: "main", Position: logic.GateOpen}},
		[]CollectorStatus{{ID: "cyclone", State: logic.CollectorOn}},
		true)

	snap := tr.Snapshot()
	if len(snap.Tools) != 2 || snap.Tools[0].Status != logic.StatusOn {
		t.Errorf("unexpected tools: %+v", snap.Tools)
	}
	if snap.Gates[0].Position != logic.GateOpen {
		t.Errorf("gate: got %q, want OPEN", snap.Gates[0].Position)
	}
	if snap.Collectors[0].State != logic.CollectorOn {
		t.Errorf("collector: got %q, want ON", snap.Collectors[0].State)
	}
	if !snap.Ready {
		t.Error("expected Ready=true")
	}
	if snap.ActiveTools() != 1 {
		t.Errorf("ActiveTools: got %d, want 1", snap.ActiveTools())
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Now().Add(-5 * time.Minute)
	tr := NewTracker(start, "", Config{})

	uptime := tr.Snapshot().Uptime()
	if uptime < 5*time.Minute || uptime > 6*time.Minute {
		t.Errorf("Uptime: got %v, want ~5m", uptime)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	tr.Update(sampleTools(), nil, nil, true)

	snap1 := tr.Snapshot()
	snap1.Tools[0].Status = logic.StatusOff
	snap1.Tools[0].Gates[0] = "mutated"
	snap1.Tools[0].SensorInfo.Baseline = 99

	snap2 := tr.Snapshot()
	if snap2.Tools[0].Status != logic.StatusOn {
		t.Error("snapshot tool mutation leaked into tracker")
	}
	if snap2.Tools[0].Gates[0] != "main" {
		t.Error("snapshot gate slice mutation leaked into tracker")
	}
	if snap2.Tools[0].SensorInfo.Baseline != 1.2 {
		t.Error("snapshot sensor info mutation leaked into tracker")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	snap := Snapshot{
		InstanceID: "abc123",
		Tools:      sampleTools(),
		Gates: []GateStatus{
			{ID: "main", Label: "Main", Position: logic.GateOpen},
			{ID: "lathe", Label: "Lathe", Position: logic.GateClosed, Pending: true},
		},
		Collectors: []CollectorStatus{
			{ID: "cyclone", Label: "Cyclone", State: logic.CollectorOn, LastTurnedOn: start},
		},
		Ready:         true,
		StartTime:     start,
		Now:           start.Add(90 * time.Second),
		MQTTConnected: true,
		Config:        Config{TickMs: 100, HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPPort: ":80"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status
	if s.Instance != "abc123" {
		t.Errorf("Instance: got %q", s.Instance)
	}
	if s.UptimeSeconds != 90 {
		t.Errorf("UptimeSeconds: got %d, want 90", s.UptimeSeconds)
	}
	if s.Event != "" || s.Reason != "" {
		t.Error("web JSON must not carry event or reason")
	}
	if len(s.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(s.Tools))
	}
	saw := s.Tools[0]
	if saw.Status != "ON" || !saw.Override || saw.Sensor != "ON" || saw.OnCount != 3 {
		t.Errorf("unexpected saw: %+v", saw)
	}
	if saw.SensorInfo == nil || saw.SensorInfo.High != 1.2036 {
		t.Errorf("unexpected sensor info: %+v", saw.SensorInfo)
	}
	if saw.LastTransition != "2026-01-15T10:00:00Z" {
		t.Errorf("LastTransition: got %q", saw.LastTransition)
	}
	sander := s.Tools[1]
	if sander.Sensor != "UNKNOWN" || sander.SensorInfo != nil {
		t.Errorf("sensorless tool: got %+v", sander)
	}
	if sander.Gates == nil || sander.LastTransition != "" {
		t.Errorf("sensorless tool: expected empty gates and no transition, got %+v", sander)
	}
	if !s.Gates[1].Pending || s.Gates[1].Position != "CLOSED" {
		t.Errorf("unexpected gate: %+v", s.Gates[1])
	}
	if s.Collectors[0].LastTurnedOn != "2026-01-15T10:00:00Z" {
		t.Errorf("LastTurnedOn: got %q", s.Collectors[0].LastTurnedOn)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("unexpected mqtt: %+v", s.MQTT)
	}
	if s.Network != nil {
		t.Error("network should be omitted when nil")
	}
}

func TestFormatJSONEmptyListsNotNull(t *testing.T) {
	data := FormatJSON(Snapshot{})

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"tools", "gates", "collectors"} {
		if _, ok := parsed["status"][key].([]interface{}); !ok {
			t.Errorf("%s: expected empty array, got %v", key, parsed["status"][key])
		}
	}
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{
		Tools:     sampleTools(),
		StartTime: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 15, 10, 0, 5, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q", parsed.Status.Reason)
	}
	if len(parsed.Status.Tools) != 2 {
		t.Errorf("expected tools in event payload, got %d", len(parsed.Status.Tools))
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	data := FormatStatusEvent(Snapshot{}, "STARTUP", "")

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, exists := parsed["status"]["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		Network: &NetworkInfo{Type: "wifi", IP: "192.168.1.50", Status: "up", SSID: "Shop"},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Network == nil {
		t.Fatal("expected network section")
	}
	if parsed.Status.Network.SSID != "Shop" {
		t.Errorf("Network.SSID: got %q, want Shop", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tools := sampleTools()
			tools[0].OnCount = i
			tr.Update(tools, nil, nil, i%2 == 0)
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
