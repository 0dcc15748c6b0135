// Package control runs the dust controller: it owns the tools, gates and
// collectors, fans out the sensor and button workers, and drives routing and
// collection from a fixed tick.
package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/dust-controller/internal/button"
	"github.com/sweeney/dust-controller/internal/gpio"
	"github.com/sweeney/dust-controller/internal/hub"
	"github.com/sweeney/dust-controller/internal/logic"
	"github.com/sweeney/dust-controller/internal/mqtt"
	"github.com/sweeney/dust-controller/internal/sensor"
	"github.com/sweeney/dust-controller/internal/status"
)

var (
	// ErrUnknownTool is returned by commands naming a tool that does not exist.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrUnknownGate is returned by commands naming a gate that does not exist.
	ErrUnknownGate = errors.New("unknown gate")
	// ErrUnknownCollector is returned when a tool opts into a collector that does not exist.
	ErrUnknownCollector = errors.New("unknown collector")
	// ErrNoSensor is returned when re-arming a tool that has no current sensor.
	ErrNoSensor = errors.New("tool has no current sensor")
)

// DefaultShutdownTimeout bounds the worker join on shutdown.
const DefaultShutdownTimeout = 5 * time.Second

// ToolSpec wires one tool.
type ToolSpec struct {
	ID         string
	Label      string
	SpinDown   time.Duration
	Gates      []string
	Collectors []string

	// MinimumRunTime keeps the tool ON at least this long once on.
	MinimumRunTime time.Duration
	// UnknownHold bounds how long an unreadable sensor holds the tool ON;
	// zero holds it indefinitely.
	UnknownHold time.Duration

	// Button is the physical button, or nil for a tool toggled only remotely.
	Button     *button.Button
	ButtonPoll time.Duration

	// Sensor and Channel are both set or both nil.
	Sensor         *sensor.Sensor
	Channel        sensor.Channel
	SensorInterval time.Duration
	Required       bool
}

// GateSpec wires one gate.
type GateSpec struct {
	ID       string
	Label    string
	Servo    hub.Servo
	MinAngle float64
	MaxAngle float64
	Identify Identify
}

// CollectorSpec wires one collector.
type CollectorSpec struct {
	ID            string
	Label         string
	Relay         gpio.Output
	MinimumUpTime time.Duration
	SpinDown      time.Duration
}

// Options configures a Controller.
type Options struct {
	Tools      []ToolSpec
	Gates      []GateSpec
	Collectors []CollectorSpec

	Publisher  mqtt.Publisher
	MQTTStatus mqtt.ConnectionStatus
	Tracker    *status.Tracker
	Network    func() *status.NetworkInfo

	Heartbeat       time.Duration
	ShutdownTimeout time.Duration

	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep Sleeper

	Logger *zap.Logger
}

// Controller is the control loop.
type Controller struct {
	logger     *zap.Logger
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	network    func() *status.NetworkInfo
	now        func() time.Time
	sleep      Sleeper

	tools      []*Tool
	toolByID   map[string]*Tool
	gates      []*Gate
	gateByID   map[string]*Gate
	gateIDs    []string
	collectors []*Collector

	buttonPoll map[string]time.Duration

	heartbeat       *logic.Heartbeat
	shutdownTimeout time.Duration
}

// New validates the wiring and builds a Controller. Every tool gets a button:
// a remote-only one when no physical button is wired.
func New(opts Options) (*Controller, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Publisher == nil {
		opts.Publisher = mqtt.NopPublisher{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	c := &Controller{
		logger:          opts.Logger.Named("control"),
		publisher:       opts.Publisher,
		mqttStatus:      opts.MQTTStatus,
		tracker:         opts.Tracker,
		network:         opts.Network,
		now:             opts.Now,
		sleep:           opts.Sleep,
		toolByID:        make(map[string]*Tool),
		gateByID:        make(map[string]*Gate),
		buttonPoll:      make(map[string]time.Duration),
		heartbeat:       logic.NewHeartbeat(opts.Heartbeat, opts.Now()),
		shutdownTimeout: opts.ShutdownTimeout,
	}

	for _, gs := range opts.Gates {
		if _, dup := c.gateByID[gs.ID]; dup {
			return nil, fmt.Errorf("gate %q: duplicate id", gs.ID)
		}
		g := &Gate{
			id:       gs.ID,
			label:    gs.Label,
			servo:    gs.Servo,
			min:      gs.MinAngle,
			max:      gs.MaxAngle,
			identify: gs.Identify,
		}
		c.gates = append(c.gates, g)
		c.gateByID[g.id] = g
		c.gateIDs = append(c.gateIDs, g.id)
	}

	collectorIDs := make(map[string]bool)
	for _, cs := range opts.Collectors {
		if collectorIDs[cs.ID] {
			return nil, fmt.Errorf("collector %q: duplicate id", cs.ID)
		}
		collectorIDs[cs.ID] = true
		c.collectors = append(c.collectors, &Collector{
			ctrl:  logic.NewCollectorController(cs.ID, cs.MinimumUpTime, cs.SpinDown),
			label: cs.Label,
			relay: cs.Relay,
		})
	}

	for _, ts := range opts.Tools {
		if _, dup := c.toolByID[ts.ID]; dup {
			return nil, fmt.Errorf("tool %q: duplicate id", ts.ID)
		}
		for _, g := range ts.Gates {
			if _, ok := c.gateByID[g]; !ok {
				return nil, fmt.Errorf("tool %q: %w %q", ts.ID, ErrUnknownGate, g)
			}
		}
		for _, id := range ts.Collectors {
			if !collectorIDs[id] {
				return nil, fmt.Errorf("tool %q: %w %q", ts.ID, ErrUnknownCollector, id)
			}
		}
		if (ts.Sensor == nil) != (ts.Channel == nil) {
			return nil, fmt.Errorf("tool %q: sensor and channel must be set together", ts.ID)
		}

		label := ts.Label
		if label == "" {
			label = ts.ID
		}
		btn := ts.Button
		if btn == nil {
			btn = button.New(button.Config{Label: label}, nil, nil, c.logger)
		}
		state := logic.NewToolState(ts.ID, ts.SpinDown, ts.Gates, ts.Collectors,
			logic.WithMinimumRunTime(ts.MinimumRunTime),
			logic.WithUnknownHold(ts.UnknownHold))
		t := &Tool{
			state:    state,
			label:    label,
			button:   btn,
			sensor:   ts.Sensor,
			required: ts.Required,
		}
		if ts.Sensor != nil {
			t.worker = sensor.NewWorker(ts.Sensor, ts.Channel, ts.SensorInterval, opts.Logger.Named("sensor"))
		}
		c.tools = append(c.tools, t)
		c.toolByID[ts.ID] = t
		c.buttonPoll[ts.ID] = ts.ButtonPoll
	}

	return c, nil
}

// Tools returns the tools in configuration order.
func (c *Controller) Tools() []*Tool {
	return c.tools
}

// Init drives every actuator to its safe state: gates closed and collectors
// off. Failures are logged and retried by the loop.
func (c *Controller) Init() {
	now := c.now()
	for _, g := range c.gates {
		if err := g.force(context.Background(), logic.GateClosed); err != nil {
			c.logger.Warn("gate init failed", zap.String("gate", g.id), zap.Error(err))
		}
	}
	for _, col := range c.collectors {
		if err := col.relay.Write(false); err != nil {
			col.retry = true
			c.logger.Warn("collector init failed", zap.String("collector", col.ID()), zap.Error(err))
		}
	}
	c.updateTracker(c.snapshots(), now)
}

// Calibrate calibrates every current sensor concurrently while the tools are
// idle. A failed sensor is marked unavailable and its tool falls back to its
// button. The error is non-nil only if a required sensor failed.
func (c *Controller) Calibrate(ctx context.Context) error {
	var g errgroup.Group
	for _, t := range c.tools {
		if t.worker == nil {
			continue
		}
		t := t
		g.Go(func() error {
			err := t.worker.Calibrate(ctx)
			if err == nil {
				return nil
			}
			if t.required {
				return fmt.Errorf("required sensor of tool %q: %w", t.ID(), err)
			}
			c.logger.Warn("sensor unavailable, tool falls back to its button",
				zap.String("tool", t.ID()), zap.Error(err))
			return nil
		})
	}
	err := g.Wait()
	c.updateTracker(c.snapshots(), c.now())
	return err
}

// Run starts the sensor and button workers and evaluates the tools on every
// tick until ctx is cancelled. It then stops the workers, waiting at most the
// shutdown timeout. Actuators are left for Shutdown.
func (c *Controller) Run(ctx context.Context, tick <-chan time.Time) error {
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	g, workerCtx := errgroup.WithContext(workerCtx)

	for _, t := range c.tools {
		t := t
		if t.worker != nil {
			g.Go(func() error { return t.worker.Run(workerCtx) })
		}
		if !t.button.HasInput() {
			continue
		}
		bw := button.NewWorker(t, c.buttonPoll[t.ID()], c.now, nil, c.logger)
		g.Go(func() error { return bw.Run(workerCtx) })
	}

	c.logger.Info("control loop started",
		zap.Int("tools", len(c.tools)),
		zap.Int("gates", len(c.gates)),
		zap.Int("collectors", len(c.collectors)))

	for {
		select {
		case <-ctx.Done():
			stopWorkers()
			c.join(g)
			return nil
		case <-tick:
			c.Tick(c.now())
		}
	}
}

func (c *Controller) join(g *errgroup.Group) {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	timer := time.NewTimer(c.shutdownTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			c.logger.Warn("worker stopped with error", zap.Error(err))
		}
	case <-timer.C:
		c.logger.Warn("workers did not stop in time", zap.Duration("timeout", c.shutdownTimeout))
	}
}

// Tick runs one control cycle at now: fuse every tool, publish transitions,
// re-route gates when a tool changed (or a gate write is pending retry),
// evaluate collectors, and refresh the status tracker.
func (c *Controller) Tick(now time.Time) {
	dirty := false
	for _, t := range c.tools {
		t.Update(now)
		trs, flagged := t.Consume()
		if !flagged {
			continue
		}
		dirty = true
		for _, tr := range trs {
			if tr.From == logic.StatusOff && tr.To == logic.StatusOn {
				t.onCount++
			}
			c.logger.Info("tool transition",
				zap.String("tool", tr.Tool),
				zap.String("from", string(tr.From)),
				zap.String("to", string(tr.To)),
				zap.String("cause", string(tr.Cause)),
				zap.Time("at", tr.At))
			if err := c.publisher.PublishTransition(tr); err != nil {
				c.logger.Warn("publish transition failed", zap.String("tool", tr.Tool), zap.Error(err))
			}
		}
	}

	snaps := c.snapshots()

	if dirty || c.gatesPending() {
		c.route(snaps, dirty, now)
	}

	for _, col := range c.collectors {
		if !dirty && !col.needsEvaluation(snaps) {
			continue
		}
		a, err := col.evaluate(snaps, now)
		if err != nil {
			c.logger.Warn("collector write failed, will retry",
				zap.String("collector", col.ID()), zap.Error(err))
			continue
		}
		if a != nil {
			c.actuated(*a)
		}
	}

	if hb := c.heartbeat.Check(now); hb != nil {
		c.beat(*hb, snaps)
	}

	c.updateTracker(snaps, now)
}

func (c *Controller) gatesPending() bool {
	for _, g := range c.gates {
		if g.Pending() {
			return true
		}
	}
	return false
}

// route applies the routing decision to every gate when all is set, and
// otherwise only to gates whose last write failed or was deferred.
func (c *Controller) route(snaps []logic.ToolSnapshot, all bool, now time.Time) {
	want := logic.Route(snaps, c.gateIDs)
	for _, g := range c.gates {
		if !all && !g.Pending() {
			continue
		}
		wrote, err := g.Apply(want[g.id])
		if err != nil {
			if errors.Is(err, ErrGateBusy) {
				c.logger.Debug("gate busy, deferring", zap.String("gate", g.id))
			} else {
				c.logger.Warn("gate write failed, will retry", zap.String("gate", g.id), zap.Error(err))
			}
			continue
		}
		if wrote {
			c.actuated(logic.Actuation{
				Timestamp: now,
				Kind:      logic.ActuationGate,
				ID:        g.id,
				State:     string(want[g.id]),
			})
		}
	}
}

func (c *Controller) actuated(a logic.Actuation) {
	c.logger.Info("actuation",
		zap.String(string(a.Kind), a.ID),
		zap.String("state", a.State))
	if err := c.publisher.PublishActuation(a); err != nil {
		c.logger.Warn("publish actuation failed", zap.String("id", a.ID), zap.Error(err))
	}
}

func (c *Controller) beat(hb logic.HeartbeatData, snaps []logic.ToolSnapshot) {
	active := 0
	for _, s := range snaps {
		if s.Status.Active() {
			active++
		}
	}
	c.logger.Info("heartbeat", zap.Duration("uptime", hb.Uptime), zap.Int("active_tools", active))

	event := mqtt.SystemEvent{Timestamp: hb.Timestamp, Event: "HEARTBEAT"}
	if c.tracker != nil {
		if c.network != nil {
			if net := c.network(); net != nil {
				c.tracker.SetNetwork(net)
			}
		}
		c.updateTracker(snaps, hb.Timestamp)
		event.RawPayload = status.FormatStatusEvent(c.tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := c.publisher.PublishSystem(event); err != nil {
		c.logger.Warn("heartbeat publish failed", zap.Error(err))
	}
}

func (c *Controller) snapshots() []logic.ToolSnapshot {
	out := make([]logic.ToolSnapshot, len(c.tools))
	for i, t := range c.tools {
		out[i] = t.Snapshot()
	}
	return out
}

// ready reports whether every sensor that is not unavailable is calibrated.
func (c *Controller) ready() bool {
	for _, t := range c.tools {
		if t.sensor != nil && t.sensor.NeedsCalibration() {
			return false
		}
	}
	return true
}

func (c *Controller) updateTracker(snaps []logic.ToolSnapshot, now time.Time) {
	if c.tracker == nil {
		return
	}
	tools := make([]status.ToolStatus, len(c.tools))
	for i, t := range c.tools {
		tools[i] = t.status(snaps[i])
	}
	gates := make([]status.GateStatus, len(c.gates))
	for i, g := range c.gates {
		gates[i] = g.status()
	}
	collectors := make([]status.CollectorStatus, len(c.collectors))
	for i, col := range c.collectors {
		collectors[i] = col.status(snaps)
	}
	c.tracker.Update(tools, gates, collectors, c.ready())
	if c.mqttStatus != nil {
		c.tracker.SetMQTTConnected(c.mqttStatus.IsConnected())
	}
}

// Shutdown forces every actuator to its safe state (gates closed, collectors
// off) and releases buttons and relays. A running gate identify is cancelled
// first, and a gate that cannot be reached before ctx expires is reported
// rather than waited for. It keeps going past failures and returns them joined.
func (c *Controller) Shutdown(ctx context.Context) error {
	now := c.now()
	var errs []error

	for _, g := range c.gates {
		g.halt()
	}
	for _, g := range c.gates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("gate %s: %w", g.id, err))
			continue
		}
		if err := g.force(ctx, logic.GateClosed); err != nil {
			errs = append(errs, fmt.Errorf("close gate %s: %w", g.id, err))
			continue
		}
		c.actuated(logic.Actuation{Timestamp: now, Kind: logic.ActuationGate, ID: g.id, State: string(logic.GateClosed)})
	}

	for _, col := range c.collectors {
		if err := col.relay.Write(false); err != nil {
			errs = append(errs, fmt.Errorf("stop collector %s: %w", col.ID(), err))
		} else {
			if col.State() == logic.CollectorOn {
				c.actuated(logic.Actuation{Timestamp: now, Kind: logic.ActuationCollector, ID: col.ID(), State: string(logic.CollectorOff)})
			}
			col.ctrl.Commit(logic.CollectorOff, now)
		}
		if err := col.relay.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release collector %s: %w", col.ID(), err))
		}
	}

	for _, t := range c.tools {
		if err := t.button.Close(); err != nil {
			errs = append(errs, fmt.Errorf("release button of %s: %w", t.ID(), err))
		}
	}

	c.updateTracker(c.snapshots(), now)

	err := errors.Join(errs...)
	if err != nil {
		c.logger.Warn("shutdown incomplete", zap.Error(err))
	} else {
		c.logger.Info("actuators safe")
	}
	return err
}
