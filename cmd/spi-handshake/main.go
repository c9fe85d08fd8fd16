// Command spi-handshake exchanges fixed-size messages over an SPI bus, with the
// responder signalling readiness to the initiator on a GPIO ready line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/spi-handshake/internal/config"
	"github.com/sweeney/spi-handshake/internal/handshake"
	"github.com/sweeney/spi-handshake/internal/logging"
	"github.com/sweeney/spi-handshake/internal/metrics"
	"github.com/sweeney/spi-handshake/internal/mqtt"
	"github.com/sweeney/spi-handshake/internal/status"
	"github.com/sweeney/spi-handshake/internal/web"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "spi-handshake: %v\n", err)
		os.Exit(2)
	}

	logger, closer, err := logging.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spi-handshake: init logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		closer.Close()
		os.Exit(1)
	}
}

// parseConfig loads the config file named by -config and overlays every flag set
// explicitly on the command line.
func parseConfig(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("spi-handshake", flag.ContinueOnError)
	def := config.Default()

	path := fs.String("config", "", "YAML config file")
	role := fs.String("role", def.Role, "both (loopback bus, one host) or initiator (SPI0 + ready line)")
	pacing := fs.Duration("pacing", def.Pacing, "Delay after every transfer")
	debounce := fs.Duration("debounce", def.Debounce, "Minimum spacing of accepted ready edges")
	waitTimeout := fs.Duration("wait-timeout", def.WaitTimeout, "Initiator ready wait bound (0 waits forever)")
	armTimeout := fs.Duration("arm-timeout", def.ArmTimeout, "Responder armed transaction bound (0 waits forever)")
	spiSpeed := fs.Int("spi-speed", def.SPI.Speed, "SPI clock in Hz")
	chipSelect := fs.Uint("spi-cs", uint(def.SPI.ChipSelect), "SPI chip select")
	chip := fs.String("gpio-chip", def.GPIO.Chip, "GPIO character device")
	readyOut := fs.Int("pin-ready-out", def.GPIO.ReadyOut, "BCM pin driven by the responder")
	readyIn := fs.Int("pin-ready-in", def.GPIO.ReadyIn, "BCM pin watched by the initiator")
	hardware := fs.Bool("gpio-hardware", def.GPIO.Hardware, "Role both: use real jumpered pins instead of the simulated wire")
	ringing := fs.Int("ringing", def.Sim.Ringing, "Simulated spurious edges after each rise")
	broker := fs.String("broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	heartbeat := fs.Duration("heartbeat", def.MQTT.Heartbeat, "Heartbeat interval (0 to disable)")
	httpAddr := fs.String("http", def.HTTP.Addr, "HTTP status address (empty to disable)")
	logLevel := fs.String("log-level", def.Log.Level, "DEBUG, INFO, WARN or ERROR")
	logFormat := fs.String("log-format", def.Log.Format, "text or json")
	logFile := fs.String("log-file", def.Log.File, "Also append logs to this file")

	if err := fs.Parse(args); err != nil {
		return def, err
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "role":
			cfg.Role = *role
		case "pacing":
			cfg.Pacing = *pacing
		case "debounce":
			cfg.Debounce = *debounce
		case "wait-timeout":
			cfg.WaitTimeout = *waitTimeout
		case "arm-timeout":
			cfg.ArmTimeout = *armTimeout
		case "spi-speed":
			cfg.SPI.Speed = *spiSpeed
		case "spi-cs":
			cfg.SPI.ChipSelect = uint8(*chipSelect)
		case "gpio-chip":
			cfg.GPIO.Chip = *chip
		case "pin-ready-out":
			cfg.GPIO.ReadyOut = *readyOut
		case "pin-ready-in":
			cfg.GPIO.ReadyIn = *readyIn
		case "gpio-hardware":
			cfg.GPIO.Hardware = *hardware
		case "ringing":
			cfg.Sim.Ringing = *ringing
		case "broker":
			cfg.MQTT.Broker = *broker
		case "heartbeat":
			cfg.MQTT.Heartbeat = *heartbeat
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		case "log-file":
			cfg.Log.File = *logFile
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// shutdownSignal is the cancellation cause recorded when a signal arrives.
type shutdownSignal struct {
	sig os.Signal
}

func (s shutdownSignal) Error() string { return "received " + s.sig.String() }

// notifyContext is signal.NotifyContext that records which signal fired as the
// context's cause.
func notifyContext(parent context.Context, sigs ...os.Signal) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	go func() {
		select {
		case s := <-ch:
			cancel(shutdownSignal{sig: s})
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(ch)
		cancel(nil)
	}
}

// shutdownReason names the signal that cancelled ctx.
func shutdownReason(ctx context.Context) string {
	var s shutdownSignal
	if errors.As(context.Cause(ctx), &s) {
		switch s.sig {
		case syscall.SIGINT:
			return "SIGINT"
		case syscall.SIGTERM:
			return "SIGTERM"
		}
	}
	return "UNKNOWN"
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// Bring-up: any failure here aborts before a loop starts.
	r, err := newRig(cfg, logger)
	if err != nil {
		return err
	}
	defer r.Close()

	tracker := status.NewTracker(time.Now(), cfg.StatusConfig(), cfg.History)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	m := metrics.New()
	tracker.Attach(r.debouncer, r.gate, r.lineCounter())
	m.Attach(r.debouncer, r.gate, r.lineCounter())
	if b := r.busCounter(); b != nil {
		tracker.AttachBus(b)
		m.AttachBus(b)
	}

	observers := handshake.Observers{tracker, m}

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	var sink *mqtt.Sink
	if cfg.MQTT.Broker != "" {
		rp := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			BufferSize: cfg.MQTT.BufferSize,
			Logger:     logger,
			OnConnectionChange: func(up bool) {
				tracker.SetMQTTConnected(up)
				m.SetMQTTConnected(up)
			},
		})
		defer rp.Close()
		publisher, mqttStatus = rp, rp
		sink = mqtt.NewSink(rp, mqtt.DefaultSinkQueue, logger)
		observers = append(observers, sink)
	}

	r.buildLoops(cfg, observers, logger)
	publishLifecycle(publisher, mqttStatus, tracker, "STARTUP", "", logger)

	logger.Info("started",
		"role", cfg.Role,
		"pacing", cfg.Pacing,
		"debounce", r.debouncer.Threshold(),
		"broker", cfg.MQTT.Broker,
		"http", cfg.HTTP.Addr,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.initiator.Run(gctx) })
	if r.responder != nil {
		g.Go(func() error { return r.responder.Run(gctx) })
	}
	if sink != nil {
		g.Go(func() error { return sink.Run(gctx) })
	}
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, m.Registry())
		g.Go(func() error {
			logger.Info("http status server listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if publisher != nil && cfg.MQTT.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.MQTT.Heartbeat)
		defer ticker.Stop()
		g.Go(func() error {
			runHeartbeat(gctx, ticker.C, publisher, mqttStatus, tracker, logger)
			return nil
		})
	}

	err = g.Wait()
	reason := shutdownReason(ctx)
	if err != nil {
		reason = "ERROR"
	}
	logger.Info("shutting down", "reason", reason)
	publishLifecycle(publisher, mqttStatus, tracker, "SHUTDOWN", reason, logger)
	return err
}

// runHeartbeat publishes a HEARTBEAT status event on every tick until ctx is done.
func runHeartbeat(ctx context.Context, tick <-chan time.Time, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			logger.Info("heartbeat",
				"uptime", snap.Uptime().Truncate(time.Second),
				"initiator_cycles", snap.Initiator.Cycles,
				"responder_cycles", snap.Responder.Cycles,
				"edges_discarded", snap.Debounce.Discarded,
			)
			publishLifecycle(publisher, mqttStatus, tracker, "HEARTBEAT", "", logger)
		}
	}
}

// publishLifecycle publishes a system event carrying a full status snapshot.
// A nil publisher is a no-op.
func publishLifecycle(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, event, reason string, logger *slog.Logger) {
	if publisher == nil {
		return
	}
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		logger.Warn("failed to publish system event", "event", event, "err", err)
		return
	}
	logger.Debug("published system event", "event", event)
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
