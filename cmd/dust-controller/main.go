// Command dust-controller routes dust collection in a workshop: it watches
// tool buttons and current sensors, opens the blast gates of running tools
// and runs the dust collectors they use.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/dust-controller/internal/config"
	"github.com/sweeney/dust-controller/internal/control"
	"github.com/sweeney/dust-controller/internal/gpio"
	"github.com/sweeney/dust-controller/internal/hub"
	"github.com/sweeney/dust-controller/internal/logging"
	"github.com/sweeney/dust-controller/internal/mqtt"
	"github.com/sweeney/dust-controller/internal/status"
	"github.com/sweeney/dust-controller/internal/web"
)

const envConfig = "DUST_CONFIG"

type flags struct {
	configPath  string
	broker      string
	httpAddr    string
	logLevel    string
	logEncoding string
	checkConfig bool
	wsBroker    string
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", envOr(envConfig, config.DefaultPath), "Path to the YAML configuration")
	flag.StringVar(&f.broker, "broker", "", `MQTT broker address, overrides the config ("off" disables MQTT)`)
	flag.StringVar(&f.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides the config)")
	flag.StringVar(&f.logEncoding, "log-encoding", "", "Log encoding: console or json (overrides the config)")
	flag.BoolVar(&f.checkConfig, "check-config", false, "Validate the configuration, print a summary and exit")
	flag.StringVar(&f.wsBroker, "ws-broker", "=broker", `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)

	flag.Parse()

	if err := run(f); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(f flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.checkConfig {
		printSummary(os.Stdout, f.configPath, cfg)
		return nil
	}

	logger, err := logging.New(firstOf(f.logLevel, cfg.Logging.Level), firstOf(f.logEncoding, cfg.Logging.Encoding))
	if err != nil {
		return err
	}
	defer logger.Sync()

	broker := firstOf(f.broker, cfg.MQTT.Broker)
	if broker == "off" {
		broker = ""
	}
	wsBroker := ""
	if broker != "" {
		wsBroker = resolveWSBroker(f.wsBroker, broker, logger)
	}

	// Hardware
	chip, err := gpio.OpenChip(cfg.GPIOChip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	hw := control.Devices{Chip: chip}
	if len(cfg.Boards) > 0 {
		h, err := hub.Open(cfg.I2CBus, cfg.HubBoards(), logger.Named("hub"))
		if err != nil {
			return fmt.Errorf("init i2c: %w", err)
		}
		defer h.Close()
		hw.Hub = h
	}

	// MQTT
	var publisher interface {
		mqtt.Publisher
		mqtt.ConnectionStatus
	} = mqtt.NopPublisher{}
	if broker != "" {
		publisher = mqtt.NewRealPublisher(broker, mqtt.NewTopics(cfg.MQTT.TopicPrefix), logger.Named("mqtt"))
	} else {
		logger.Warn("mqtt disabled")
	}
	defer publisher.Close()

	// Status tracker (before STARTUP so snapshot is available)
	instanceID := uuid.NewString()
	tracker := status.NewTracker(time.Now(), instanceID, status.Config{
		ConfigPath:  f.configPath,
		TickMs:      cfg.Control.Tick.Milliseconds(),
		HeartbeatMs: cfg.Control.Heartbeat.Milliseconds(),
		Broker:      broker,
		HTTPPort:    f.httpAddr,
		WSBroker:    wsBroker,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	opts, err := control.FromConfig(cfg, hw, logger)
	if err != nil {
		return fmt.Errorf("wire hardware: %w", err)
	}
	opts.Publisher = publisher
	opts.MQTTStatus = publisher
	opts.Tracker = tracker
	opts.Network = readNetworkInfo

	ctrl, err := control.New(opts)
	if err != nil {
		return err
	}
	ctrl.Init()

	logger.Info("calibrating sensors, keep every tool idle")
	if err := ctrl.Calibrate(context.Background()); err != nil {
		if serr := ctrl.Shutdown(context.Background()); serr != nil {
			logger.Warn("shutdown after failed calibration", zap.Error(serr))
		}
		return fmt.Errorf("calibrate: %w", err)
	}

	// Publish startup event with full status snapshot
	tracker.SetMQTTConnected(publisher.IsConnected())
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		logger.Warn("failed to publish startup event", zap.Error(err))
	} else {
		logger.Info("published startup event")
	}

	// Start HTTP status server
	if f.httpAddr != "" {
		srv := web.New(f.httpAddr, tracker, ctrl, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", zap.String("addr", f.httpAddr))
	}

	logger.Info("started",
		zap.String("instance", instanceID),
		zap.Int("tools", len(cfg.Tools)),
		zap.Int("gates", len(cfg.Gates)),
		zap.Int("collectors", len(cfg.Collectors)),
		zap.Duration("tick", cfg.Control.Tick),
		zap.String("broker", broker))

	ticker := time.NewTicker(cfg.Control.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctrl, publisher, tracker, cfg.Control.ShutdownTimeout, time.Now, ticker.C, sigCh, logger)
}

// runLoop drives the controller until a signal arrives, then stops the
// workers, forces every actuator safe and publishes SHUTDOWN.
func runLoop(ctrl *control.Controller, publisher mqtt.Publisher, tracker *status.Tracker, shutdownTimeout time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx, tick) }()

	s := <-sig
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}
	logger.Info("shutting down", zap.String("signal", signalName))

	cancel()
	if err := <-done; err != nil {
		logger.Warn("control loop stopped with error", zap.Error(err))
	}

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	shutdownErr := ctrl.Shutdown(sctx)

	event := mqtt.SystemEvent{
		Timestamp: now(),
		Event:     "SHUTDOWN",
		Reason:    signalName,
		Retained:  true,
	}
	if tracker != nil {
		snap := tracker.Snapshot()
		event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
	}
	if err := publisher.PublishSystem(event); err != nil {
		logger.Warn("failed to publish shutdown event", zap.Error(err))
	} else {
		logger.Info("published shutdown event")
	}

	if shutdownErr != nil {
		return fmt.Errorf("shutdown: %w", shutdownErr)
	}
	return nil
}

// printSummary writes what --check-config found.
func printSummary(w io.Writer, path string, cfg *config.Config) {
	fmt.Fprintf(w, "%s: ok\n", path)
	fmt.Fprintf(w, "boards: %d, gates: %d, collectors: %d, tools: %d\n",
		len(cfg.Boards), len(cfg.Gates), len(cfg.Collectors), len(cfg.Tools))
	all := cfg.CollectorIDs()
	for _, t := range cfg.Tools {
		var inputs []string
		if t.Button != nil {
			inputs = append(inputs, fmt.Sprintf("button gpio%d", t.Button.Pin))
		}
		if t.Sensor != nil {
			inputs = append(inputs, fmt.Sprintf("sensor %s/%d", t.Sensor.Board, t.Sensor.Channel))
		}
		if len(inputs) == 0 {
			inputs = append(inputs, "remote only")
		}
		fmt.Fprintf(w, "  %s: %s; gates [%s]; collectors [%s]; spin-down %v\n",
			t.ID, strings.Join(inputs, ", "),
			strings.Join(t.Gates, " "), strings.Join(t.UseCollector.Resolve(all), " "), t.SpinDown)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; empty disables.
func resolveWSBroker(ws, broker string, logger *zap.Logger) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil {
		logger.Warn("ws-broker: cannot parse broker", zap.String("broker", broker), zap.Error(err))
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
