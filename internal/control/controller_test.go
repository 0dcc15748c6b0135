package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sweeney/dust-controller/internal/button"
	"github.com/sweeney/dust-controller/internal/gpio"
	"github.com/sweeney/dust-controller/internal/hub"
	"github.com/sweeney/dust-controller/internal/logic"
	"github.com/sweeney/dust-controller/internal/mqtt"
	"github.com/sweeney/dust-controller/internal/sensor"
	"github.com/sweeney/dust-controller/internal/status"
)

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return base.Add(time.Duration(sec * float64(time.Second)))
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type rig struct {
	ctrl    *Controller
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	servos  map[string]*hub.FakeServo
	relay   *gpio.FakeOutput
	clock   *clock
}

func sawSpec() ToolSpec {
	return ToolSpec{ID: "saw", Label: "Table saw", SpinDown: 5 * time.Second, Gates: []string{"main", "saw"}, Collectors: []string{"dc"}}
}

func sanderSpec() ToolSpec {
	return ToolSpec{ID: "sander", SpinDown: -1, Gates: []string{"main", "sander"}, Collectors: []string{"dc"}}
}

func newRig(t *testing.T, mutate func(*Options), tools ...ToolSpec) *rig {
	t.Helper()
	r := &rig{
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(at(0), "test", status.Config{}),
		servos:  make(map[string]*hub.FakeServo),
		relay:   gpio.NewFakeOutput(),
		clock:   &clock{now: at(0)},
	}

	var gates []GateSpec
	for _, id := range []string{"main", "saw", "sander"} {
		r.servos[id] = hub.NewFakeServo(0, 180)
		gates = append(gates, GateSpec{
			ID:       id,
			Servo:    r.servos[id],
			MinAngle: 0,
			MaxAngle: 180,
			Identify: Identify{LowAngle: 80, HighAngle: 100, Cycles: 2, Interval: time.Minute},
		})
	}

	opts := Options{
		Tools:      tools,
		Gates:      gates,
		Collectors: []CollectorSpec{{ID: "dc", Relay: r.relay, MinimumUpTime: 10 * time.Second}},
		Publisher:  r.pub,
		Tracker:    r.tracker,
		Now:        r.clock.Now,
		Logger:     zaptest.NewLogger(t),
	}
	if mutate != nil {
		mutate(&opts)
	}

	ctrl, err := New(opts)
	require.NoError(t, err)
	ctrl.Init()
	r.ctrl = ctrl
	return r
}

func (r *rig) toggle(t *testing.T, id string, now time.Time) {
	t.Helper()
	r.clock.Set(now)
	_, err := r.ctrl.ToggleTool(id)
	require.NoError(t, err)
}

func (r *rig) angle(t *testing.T, gate string) float64 {
	t.Helper()
	a, ok := r.servos[gate].Last()
	require.True(t, ok, "gate %s never moved", gate)
	return a
}

func (r *rig) gate(id string) status.GateStatus {
	for _, g := range r.tracker.Snapshot().Gates {
		if g.ID == id {
			return g
		}
	}
	return status.GateStatus{}
}

func (r *rig) tool(id string) status.ToolStatus {
	for _, ts := range r.tracker.Snapshot().Tools {
		if ts.ID == id {
			return ts
		}
	}
	return status.ToolStatus{}
}

func collectorStates(as []logic.Actuation) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.State
	}
	return out
}

func TestInitDrivesSafeState(t *testing.T) {
	r := newRig(t, nil, sawSpec())

	for id, s := range r.servos {
		assert.Equal(t, []float64{0}, s.Angles, "gate %s", id)
		assert.Equal(t, logic.GateClosed, r.gate(id).Position)
	}
	assert.Equal(t, []bool{false}, r.relay.Writes)
	assert.Equal(t, logic.StatusOff, r.tool("saw").Status)
}

func TestInitGateFailureIsRetried(t *testing.T) {
	servo := hub.NewFakeServo(0, 180)
	servo.SetError(errors.New("i2c nack"))
	ctrl, err := New(Options{
		Gates:  []GateSpec{{ID: "main", Servo: servo, MaxAngle: 180}},
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	ctrl.Init()
	assert.True(t, ctrl.gateByID["main"].Pending())

	servo.SetError(nil)
	ctrl.Tick(at(0.1))
	assert.False(t, ctrl.gateByID["main"].Pending())
	assert.Equal(t, []float64{0}, servo.Angles)
}

func TestScenarioTableSawWithSpinDown(t *testing.T) {
	r := newRig(t, nil, sawSpec(), sanderSpec())

	r.toggle(t, "saw", at(0))
	r.ctrl.Tick(at(0))
	assert.Equal(t, 180.0, r.angle(t, "main"))
	assert.Equal(t, 180.0, r.angle(t, "saw"))
	assert.Equal(t, 1, r.servos["sander"].Moves(), "unrouted gate must not be rewritten")
	assert.True(t, r.relay.Get())

	r.toggle(t, "saw", at(2))
	r.ctrl.Tick(at(2))
	assert.Equal(t, logic.StatusSpinningDown, r.tool("saw").Status)
	assert.Equal(t, 2, r.servos["main"].Moves(), "gates stay open during spin-down")

	r.ctrl.Tick(at(7))
	assert.Equal(t, logic.StatusSpinningDown, r.tool("saw").Status)

	r.ctrl.Tick(at(7.1))
	assert.Equal(t, logic.StatusOff, r.tool("saw").Status)
	assert.Equal(t, 0.0, r.angle(t, "main"))
	assert.Equal(t, 0.0, r.angle(t, "saw"))
	assert.True(t, r.relay.Get(), "collector held by minimum up time")

	snap := r.tracker.Snapshot()
	require.Len(t, snap.Collectors, 1)
	assert.True(t, snap.Collectors[0].Pending)

	r.ctrl.Tick(at(9.9))
	assert.True(t, r.relay.Get())

	r.ctrl.Tick(at(10))
	assert.False(t, r.relay.Get())
	assert.Equal(t, []bool{false, true, false}, r.relay.Writes)

	trs := r.pub.TransitionsFor("saw")
	require.Len(t, trs, 3)
	assert.Equal(t, logic.Transition{Tool: "saw", From: logic.StatusOff, To: logic.StatusOn, Cause: logic.CauseButton, At: at(0)}, trs[0])
	assert.Equal(t, logic.CauseButton, trs[1].Cause)
	assert.Equal(t, logic.StatusSpinningDown, trs[1].To)
	assert.Equal(t, logic.CauseSpinDown, trs[2].Cause)
	assert.Equal(t, at(7.1), trs[2].At)

	assert.Equal(t, []string{"ON", "OFF"}, collectorStates(r.pub.ActuationsFor(logic.ActuationCollector, "dc")))
	assert.Equal(t, []string{"OPEN", "CLOSED"}, collectorStates(r.pub.ActuationsFor(logic.ActuationGate, "main")))
	assert.Equal(t, 1, r.tool("saw").OnCount)
}

func TestScenarioSharedGateStaysOpen(t *testing.T) {
	r := newRig(t, nil, sawSpec(), sanderSpec())

	r.toggle(t, "saw", at(0))
	r.toggle(t, "sander", at(0))
	r.ctrl.Tick(at(0))
	for _, id := range []string{"main", "saw", "sander"} {
		assert.Equal(t, 180.0, r.angle(t, id), "gate %s", id)
	}

	r.toggle(t, "sander", at(1))
	r.ctrl.Tick(at(1))
	assert.Equal(t, logic.StatusOff, r.tool("sander").Status, "negative spin-down skips the grace period")
	assert.Equal(t, 0.0, r.angle(t, "sander"))
	assert.Equal(t, 180.0, r.angle(t, "main"))
	assert.Equal(t, 2, r.servos["main"].Moves(), "shared gate is not rewritten")

	r.toggle(t, "saw", at(2))
	r.ctrl.Tick(at(2))
	assert.Equal(t, 180.0, r.angle(t, "main"))

	r.ctrl.Tick(at(7.5))
	assert.Equal(t, 0.0, r.angle(t, "main"))
	assert.Equal(t, 0.0, r.angle(t, "saw"))
}

func TestSensorDrivesTool(t *testing.T) {
	s := sensor.New(sensor.Config{Label: "planer", Strategy: sensor.StrategyPeak, Window: 3, CalibrationSamples: 5})
	ch := hub.NewFakeChannel(1.0)
	planer := ToolSpec{
		ID:             "planer",
		SpinDown:       time.Second,
		Gates:          []string{"main"},
		Collectors:     []string{"dc"},
		Sensor:         s,
		Channel:        ch,
		SensorInterval: time.Millisecond,
	}
	r := newRig(t, nil, planer)

	assert.False(t, r.tracker.Snapshot().Ready)
	require.NoError(t, r.ctrl.Calibrate(context.Background()))
	assert.True(t, r.tracker.Snapshot().Ready)
	assert.InDelta(t, 1.003, s.Thresholds().High, 1e-9)

	for i := 0; i < 3; i++ {
		s.Observe(2.0)
	}
	r.ctrl.Tick(at(1))
	assert.Equal(t, logic.StatusOn, r.tool("planer").Status)
	assert.Equal(t, logic.SensorOn, r.tool("planer").Sensor)
	assert.Equal(t, 180.0, r.angle(t, "main"))

	s.ObserveError(errors.New("i2c timeout"))
	r.ctrl.Tick(at(2))
	assert.Equal(t, logic.StatusOn, r.tool("planer").Status, "a failed read never stops the tool")

	for i := 0; i < 3; i++ {
		s.Observe(1.0)
	}
	r.ctrl.Tick(at(3))
	assert.Equal(t, logic.StatusSpinningDown, r.tool("planer").Status)
	r.ctrl.Tick(at(4.5))
	assert.Equal(t, logic.StatusOff, r.tool("planer").Status)
	assert.Equal(t, 0.0, r.angle(t, "main"))

	trs := r.pub.TransitionsFor("planer")
	require.Len(t, trs, 3)
	assert.Equal(t, logic.CauseSensor, trs[0].Cause)
}

func TestCalibrateFailure(t *testing.T) {
	tests := []struct {
		name     string
		required bool
		wantErr  bool
	}{
		{"optional sensor falls back to button", false, false},
		{"required sensor is fatal", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sensor.New(sensor.Config{Label: "lathe", CalibrationSamples: 3})
			ch := hub.NewFakeChannel()
			ch.SetError(errors.New("no ack"))
			lathe := ToolSpec{ID: "lathe", Sensor: s, Channel: ch, SensorInterval: time.Millisecond, Required: tt.required}
			r := newRig(t, nil, lathe)

			err := r.ctrl.Calibrate(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, sensor.ErrCalibration)
			} else {
				require.NoError(t, err)
			}
			assert.True(t, s.Unavailable())

			info := r.tool("lathe").SensorInfo
			require.NotNil(t, info)
			assert.True(t, info.Unavailable)
			assert.NotEmpty(t, info.Failure)

			r.toggle(t, "lathe", at(1))
			r.ctrl.Tick(at(1))
			assert.Equal(t, logic.StatusOn, r.tool("lathe").Status)
		})
	}
}

func TestCollectorRelayFailureRetries(t *testing.T) {
	r := newRig(t, nil, sawSpec())
	r.relay.SetError(errors.New("relay stuck"))

	r.toggle(t, "saw", at(0))
	r.ctrl.Tick(at(0))
	assert.Equal(t, logic.CollectorOff, r.tracker.Snapshot().Collectors[0].State)
	assert.Empty(t, r.pub.ActuationsFor(logic.ActuationCollector, "dc"))

	r.relay.SetError(nil)
	r.ctrl.Tick(at(0.1))
	assert.True(t, r.relay.Get())
	assert.Equal(t, logic.CollectorOn, r.tracker.Snapshot().Collectors[0].State)
	assert.Equal(t, []string{"ON"}, collectorStates(r.pub.ActuationsFor(logic.ActuationCollector, "dc")))
}

func TestGateWriteFailureRetries(t *testing.T) {
	r := newRig(t, nil, sawSpec())
	r.servos["saw"].SetError(errors.New("i2c nack"))

	r.toggle(t, "saw", at(0))
	r.ctrl.Tick(at(0))
	assert.Equal(t, 180.0, r.angle(t, "main"))
	g := r.gate("saw")
	assert.True(t, g.Pending)
	assert.Equal(t, logic.GateClosed, g.Position)

	r.servos["saw"].SetError(nil)
	r.ctrl.Tick(at(0.1))
	assert.Equal(t, 180.0, r.angle(t, "saw"))
	assert.False(t, r.gate("saw").Pending)
	assert.Equal(t, 2, r.servos["main"].Moves(), "retry only touches the failed gate")
	assert.Equal(t, []string{"OPEN"}, collectorStates(r.pub.ActuationsFor(logic.ActuationGate, "saw")))
}

func TestIdentifyDefersRouting(t *testing.T) {
	release := make(chan struct{})
	r := newRig(t, func(o *Options) {
		o.Sleep = func(ctx context.Context, d time.Duration) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}, sawSpec())

	done := make(chan error, 1)
	go func() { done <- r.ctrl.IdentifyGate(context.Background(), "saw") }()

	g := r.ctrl.gateByID["saw"]
	require.Eventually(t, g.identifying.Load, time.Second, time.Millisecond)

	r.toggle(t, "saw", at(0))
	r.ctrl.Tick(at(0))
	assert.Equal(t, 180.0, r.angle(t, "main"))
	assert.True(t, r.gate("saw").Identifying)
	assert.True(t, g.Pending())

	close(release)
	require.NoError(t, <-done)

	r.ctrl.Tick(at(0.1))
	assert.Equal(t, []float64{0, 80, 100, 80, 100, 0, 180}, r.servos["saw"].Angles)
	assert.False(t, r.gate("saw").Pending)
}

func TestIdentifyCancelledRestoresPosition(t *testing.T) {
	r := newRig(t, nil, sawSpec())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.ctrl.IdentifyGate(ctx, "saw")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []float64{0, 80, 0}, r.servos["saw"].Angles)
}

func TestIdentifyClampsToGateRange(t *testing.T) {
	servo := hub.NewFakeServo(0, 180)
	ctrl, err := New(Options{
		Gates: []GateSpec{{
			ID:       "narrow",
			Servo:    servo,
			MinAngle: 90,
			MaxAngle: 95,
			Identify: Identify{LowAngle: 80, HighAngle: 100, Cycles: 1},
		}},
		Sleep:  func(context.Context, time.Duration) error { return nil },
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	require.NoError(t, ctrl.IdentifyGate(context.Background(), "narrow"))
	assert.Equal(t, []float64{90, 95, 90}, servo.Angles)
}

func TestCommandsRejectUnknownIDs(t *testing.T) {
	r := newRig(t, nil, sawSpec())

	_, err := r.ctrl.ToggleTool("jointer")
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.ErrorIs(t, r.ctrl.RecalibrateTool("jointer"), ErrUnknownTool)
	assert.ErrorIs(t, r.ctrl.RecalibrateTool("saw"), ErrNoSensor)
	assert.ErrorIs(t, r.ctrl.IdentifyGate(context.Background(), "attic"), ErrUnknownGate)
}

func TestToggleTool(t *testing.T) {
	r := newRig(t, nil, sawSpec())

	on, err := r.ctrl.ToggleTool("saw")
	require.NoError(t, err)
	assert.True(t, on)

	on, err = r.ctrl.ToggleTool("saw")
	require.NoError(t, err)
	assert.False(t, on)

	r.ctrl.Tick(at(0))
	trs := r.pub.TransitionsFor("saw")
	require.Len(t, trs, 2, "both transitions are reported once")
	assert.Equal(t, logic.StatusOn, trs[0].To)
	assert.Equal(t, logic.StatusSpinningDown, trs[1].To)
}

func TestRecalibrateTool(t *testing.T) {
	s := sensor.New(sensor.Config{Label: "planer", CalibrationSamples: 3})
	require.NoError(t, s.Calibrate([]float64{1, 1, 1}))
	r := newRig(t, nil, ToolSpec{ID: "planer", Sensor: s, Channel: hub.NewFakeChannel(1)})

	require.NoError(t, r.ctrl.RecalibrateTool("planer"))
	assert.True(t, s.NeedsCalibration())
}

func TestNewRejectsBadWiring(t *testing.T) {
	tests := []struct {
		name string
		tool ToolSpec
		want error
	}{
		{"unknown gate", ToolSpec{ID: "saw", Gates: []string{"attic"}}, ErrUnknownGate},
		{"unknown collector", ToolSpec{ID: "saw", Collectors: []string{"shopvac"}}, ErrUnknownCollector},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Options{Tools: []ToolSpec{tt.tool}})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := New(Options{Tools: []ToolSpec{{ID: "saw", Sensor: sensor.New(sensor.Config{})}}})
	assert.Error(t, err, "sensor without channel")
}

func TestHeartbeat(t *testing.T) {
	r := newRig(t, func(o *Options) { o.Heartbeat = time.Minute }, sawSpec())

	r.ctrl.Tick(at(59))
	assert.Empty(t, r.pub.SystemEventNames())

	r.ctrl.Tick(at(60))
	assert.Equal(t, []string{"HEARTBEAT"}, r.pub.SystemEventNames())
	assert.Contains(t, string(r.pub.SystemEvents[0].RawPayload), `"event":"HEARTBEAT"`)
}

func TestShutdownForcesSafeState(t *testing.T) {
	r := newRig(t, nil, sawSpec())
	r.toggle(t, "saw", at(0))
	r.ctrl.Tick(at(0))
	require.True(t, r.relay.Get())

	r.clock.Set(at(1))
	require.NoError(t, r.ctrl.Shutdown(context.Background()))

	for id := range r.servos {
		assert.Equal(t, 0.0, r.angle(t, id), "gate %s", id)
	}
	assert.False(t, r.relay.Get())
	assert.True(t, r.relay.IsClosed())
	assert.Equal(t, logic.CollectorOff, r.tracker.Snapshot().Collectors[0].State)
	assert.Equal(t, []string{"ON", "OFF"}, collectorStates(r.pub.ActuationsFor(logic.ActuationCollector, "dc")))
}

func TestShutdownKeepsGoingPastFailures(t *testing.T) {
	r := newRig(t, nil, sawSpec())
	r.servos["main"].SetError(errors.New("i2c nack"))

	err := r.ctrl.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close gate main")
	assert.Equal(t, 2, r.servos["saw"].Moves())
	assert.True(t, r.relay.IsClosed())
}

func TestRunPollsButtonsUntilCancelled(t *testing.T) {
	in := gpio.NewFakeInput(true)
	btn := button.New(button.Config{Label: "saw", Debounce: time.Millisecond}, in, nil, zaptest.NewLogger(t))
	spec := sawSpec()
	spec.Button = btn
	spec.ButtonPoll = time.Millisecond

	r := newRig(t, func(o *Options) { o.Now = time.Now }, spec)

	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- r.ctrl.Run(ctx, tick) }()

	require.Eventually(t, func() bool {
		tick <- time.Now()
		return r.tool("saw").Status == logic.StatusOn
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestShutdownCancelsRunningIdentify(t *testing.T) {
	r := newRig(t, nil, sawSpec())
	r.toggle(t, "saw", at(0))
	r.ctrl.Tick(at(0))

	identified := make(chan error, 1)
	go func() { identified <- r.ctrl.IdentifyGate(context.Background(), "saw") }()
	g := r.ctrl.gateByID["saw"]
	require.Eventually(t, g.identifying.Load, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, r.ctrl.Shutdown(ctx))
	assert.Less(t, time.Since(start), time.Second, "shutdown waited for the identify wiggle")

	assert.ErrorIs(t, <-identified, context.Canceled)
	assert.Equal(t, 0.0, r.angle(t, "saw"))
	assert.False(t, r.relay.Get())

	assert.ErrorIs(t, r.ctrl.IdentifyGate(context.Background(), "saw"), ErrGateHalted)
}

func TestShutdownBoundedByContextWhenGateBusy(t *testing.T) {
	r := newRig(t, nil, sawSpec())
	r.toggle(t, "saw", at(0))
	r.ctrl.Tick(at(0))
	require.True(t, r.relay.Get())

	g := r.ctrl.gateByID["saw"]
	g.move.Lock()
	defer g.move.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := r.ctrl.Shutdown(ctx)
	assert.Less(t, time.Since(start), time.Second)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "close gate saw")
	assert.True(t, g.Pending())
	assert.Equal(t, 0.0, r.angle(t, "main"))
	assert.False(t, r.relay.Get(), "collector still stopped")
	assert.True(t, r.relay.IsClosed())
}

// stuckChannel blocks every read until released, ignoring cancellation.
type stuckChannel struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *stuckChannel) ReadVoltage() (float64, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return 1, nil
}

func TestRunGivesUpOnStuckWorker(t *testing.T) {
	ch := &stuckChannel{entered: make(chan struct{}), release: make(chan struct{})}
	t.Cleanup(func() { close(ch.release) })

	core, logs := observer.New(zapcore.WarnLevel)
	lathe := ToolSpec{
		ID:             "lathe",
		Sensor:         sensor.New(sensor.Config{Label: "lathe", CalibrationSamples: 3}),
		Channel:        ch,
		SensorInterval: time.Millisecond,
	}
	r := newRig(t, func(o *Options) {
		o.ShutdownTimeout = 100 * time.Millisecond
		o.Logger = zap.New(core)
	}, sawSpec(), lathe)

	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- r.ctrl.Run(ctx, tick) }()

	r.toggle(t, "saw", at(0))
	tick <- at(0)
	<-ch.entered
	require.Eventually(t, r.relay.Get, time.Second, time.Millisecond)

	cancel()
	start := time.Now()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run waited for a stuck worker")
	}
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
	assert.Equal(t, 1, logs.FilterMessage("workers did not stop in time").Len())

	require.NoError(t, r.ctrl.Shutdown(context.Background()))
	for id := range r.servos {
		assert.Equal(t, 0.0, r.angle(t, id), "gate %s", id)
	}
	assert.False(t, r.relay.Get())
}

func TestToggleKeepsButtonAndOverrideInStep(t *testing.T) {
	r := newRig(t, nil, sawSpec())
	saw := r.ctrl.toolByID["saw"]

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, err := r.ctrl.ToggleTool("saw")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.False(t, saw.button.On(), "an even number of toggles")
	assert.Equal(t, saw.button.On(), saw.Snapshot().Override)

	r.toggle(t, "saw", at(1))
	assert.True(t, saw.button.On())
	assert.True(t, saw.Snapshot().Override)
}

func TestMinimumRunTimeHoldsGatesOpen(t *testing.T) {
	spec := sawSpec()
	spec.MinimumRunTime = 10 * time.Second
	r := newRig(t, nil, spec)

	r.toggle(t, "saw", at(0))
	r.ctrl.Tick(at(0))
	r.toggle(t, "saw", at(1))
	r.ctrl.Tick(at(1))
	assert.Equal(t, logic.StatusOn, r.tool("saw").Status)
	assert.Equal(t, 180.0, r.angle(t, "saw"))

	r.ctrl.Tick(at(10))
	assert.Equal(t, logic.StatusSpinningDown, r.tool("saw").Status)
	trs := r.pub.TransitionsFor("saw")
	require.Len(t, trs, 2)
	assert.Equal(t, logic.CauseButton, trs[1].Cause)
}
