package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/spi-handshake/internal/config"
	"github.com/sweeney/spi-handshake/internal/handshake"
	"github.com/sweeney/spi-handshake/internal/mqtt"
	"github.com/sweeney/spi-handshake/internal/status"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfo(t *testing.T) {
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}

	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	if info.Type != "wifi" || info.IP != "192.168.1.100" || info.SSID != "MyNetwork" {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != config.Default() {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestParseConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	data := "Pacing: 1s\nDebounce: 2ms\nMQTT:\n  Broker: tcp://file:1883\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parseConfig([]string{"-config", path, "-pacing", "250ms", "-role", "initiator", "-ringing", "0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Pacing != 250*time.Millisecond {
		t.Errorf("Pacing: got %v, want 250ms (flag wins)", cfg.Pacing)
	}
	if cfg.Debounce != 2*time.Millisecond {
		t.Errorf("Debounce: got %v, want 2ms (from file)", cfg.Debounce)
	}
	if cfg.MQTT.Broker != "tcp://file:1883" {
		t.Errorf("Broker: got %q, want file value", cfg.MQTT.Broker)
	}
	if cfg.Role != config.RoleInitiator {
		t.Errorf("Role: got %q", cfg.Role)
	}
	if cfg.Sim.Ringing != 0 {
		t.Errorf("Ringing: got %d, want 0", cfg.Sim.Ringing)
	}
}

func TestParseConfigUnsetFlagKeepsFileValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("HTTP:\n  Addr: \":9090\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := parseConfig([]string{"-config", path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("HTTP.Addr: got %q, want :9090", cfg.HTTP.Addr)
	}
}

func TestParseConfigInvalid(t *testing.T) {
	tests := [][]string{
		{"-role", "responder"},
		{"-debounce", "0s"},
		{"-log-format", "xml"},
		{"-no-such-flag"},
		{"-config", "/nonexistent/config.yml"},
	}
	for _, args := range tests {
		if _, err := parseConfig(args); err == nil {
			t.Errorf("parseConfig(%v): expected error", args)
		}
	}
}

func TestShutdownReason(t *testing.T) {
	tests := []struct {
		cause error
		want  string
	}{
		{shutdownSignal{sig: syscall.SIGINT}, "SIGINT"},
		{shutdownSignal{sig: syscall.SIGTERM}, "SIGTERM"},
		{shutdownSignal{sig: syscall.SIGHUP}, "UNKNOWN"},
		{errors.New("other"), "UNKNOWN"},
	}
	for _, tt := range tests {
		ctx, cancel := context.WithCancelCause(context.Background())
		cancel(tt.cause)
		if got := shutdownReason(ctx); got != tt.want {
			t.Errorf("cause %v: got %q, want %q", tt.cause, got, tt.want)
		}
	}
}

func TestPublishLifecycle(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	tracker := status.NewTracker(time.Now(), status.Config{Role: "both"}, 5)

	publishLifecycle(pub, pub, tracker, "SHUTDOWN", "SIGTERM", discardLogger())

	if len(pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(pub.SystemEvents))
	}
	ev := pub.SystemEvents[0]
	if ev.Event != "SHUTDOWN" || ev.Reason != "SIGTERM" || !ev.Retained {
		t.Errorf("unexpected event: %+v", ev)
	}
	if !tracker.Snapshot().MQTTConnected {
		t.Error("tracker should reflect publisher connection")
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(pub.SystemPayloads[0], &sj); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" {
		t.Errorf("payload event/reason: %q/%q", sj.Status.Event, sj.Status.Reason)
	}
}

func TestPublishLifecycleNilPublisher(t *testing.T) {
	tracker := status.NewTracker(time.Now(), status.Config{}, 5)
	publishLifecycle(nil, nil, tracker, "STARTUP", "", discardLogger())
}

func TestPublishLifecycleErrorDoesNotPanic(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	pub.PublishSystemError = errors.New("broker down")
	tracker := status.NewTracker(time.Now(), status.Config{}, 5)
	publishLifecycle(pub, pub, tracker, "HEARTBEAT", "", discardLogger())
	if len(pub.SystemEvents) != 0 {
		t.Error("failed publish should not be recorded")
	}
}

func TestRunHeartbeat(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(time.Now(), status.Config{}, 5)
	tick := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		runHeartbeat(ctx, tick, pub, pub, tracker, discardLogger())
		close(done)
	}()

	tick <- time.Now()
	tick <- time.Now()
	cancel()
	<-done

	if len(pub.SystemEvents) != 2 {
		t.Fatalf("expected 2 heartbeats, got %d", len(pub.SystemEvents))
	}
	for _, ev := range pub.SystemEvents {
		if ev.Event != "HEARTBEAT" || ev.Retained {
			t.Errorf("unexpected heartbeat event: %+v", ev)
		}
	}
}

func TestNewRigBothRole(t *testing.T) {
	cfg := config.Default()
	cfg.Pacing = cfg.Debounce
	r, err := newRig(cfg, discardLogger())
	if err != nil {
		t.Fatalf("newRig: %v", err)
	}
	defer r.Close()

	if !r.gate.Pending() {
		t.Error("gate should start signalled")
	}
	if r.line == nil || r.responderEngine == nil {
		t.Fatal("both role needs a line driver and responder engine")
	}

	r.buildLoops(cfg, nil, discardLogger())
	if r.initiator == nil || r.responder == nil {
		t.Fatal("loops not built")
	}

	// Arming raises the line through the simulated wire; the edge is coalesced
	// into the preset gate and the ringing behind it is discarded.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan handshake.CycleReport, 1)
	go func() {
		rep, _ := r.responder.Cycle(ctx)
		done <- rep
	}()
	for !r.line.High() {
		time.Sleep(time.Millisecond)
	}
	rep, err := r.initiator.Cycle(ctx)
	if err != nil || rep.Outcome != handshake.OutcomeOK {
		t.Fatalf("initiator cycle: %v %+v", err, rep)
	}
	if got := <-done; got.Outcome != handshake.OutcomeOK {
		t.Fatalf("responder cycle: %+v", got)
	}
	if r.debouncer.Accepted() != 1 || r.debouncer.Discarded() != uint64(cfg.Sim.Ringing) {
		t.Errorf("debounce: accepted %d discarded %d", r.debouncer.Accepted(), r.debouncer.Discarded())
	}
	if r.gate.Coalesced() != 1 {
		t.Errorf("coalesced: got %d, want 1", r.gate.Coalesced())
	}
}

// TestBothRoleKeepsCyclingAtMinimumPacing runs the simulated rig on the real
// debouncer clock with the shortest pacing the config accepts. Every re-arm must
// land outside the debounce window, so transfers keep completing.
func TestBothRoleKeepsCyclingAtMinimumPacing(t *testing.T) {
	cfg := config.Default()
	cfg.Pacing = cfg.Debounce
	if err := cfg.Validate(); err != nil {
		t.Fatalf("minimum pacing rejected: %v", err)
	}

	r, err := newRig(cfg, discardLogger())
	if err != nil {
		t.Fatalf("newRig: %v", err)
	}
	defer r.Close()

	var transfers atomic.Int64
	r.buildLoops(cfg, handshake.ObserverFunc(func(rep handshake.CycleReport) {
		if rep.Role == handshake.RoleInitiator && rep.Outcome == handshake.OutcomeOK {
			transfers.Add(1)
		}
	}), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() { r.initiator.Run(ctx); done <- struct{}{} }()
	go func() { r.responder.Run(ctx); done <- struct{}{} }()
	defer func() {
		cancel()
		<-done
		<-done
	}()

	time.Sleep(300 * time.Millisecond)
	first := transfers.Load()
	time.Sleep(300 * time.Millisecond)
	second := transfers.Load()

	if first == 0 {
		t.Fatal("no transfer completed in the first 300ms")
	}
	if second <= first {
		t.Fatalf("loops stalled: %d transfers, then %d (accepted %d, discarded %d, line high %v)",
			first, second, r.debouncer.Accepted(), r.debouncer.Discarded(), r.line.High())
	}
}

func TestRunBothRoleUntilCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.Pacing = 5 * time.Millisecond
	cfg.HTTP.Addr = ""

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := run(ctx, cfg, discardLogger()); err != nil {
		t.Fatalf("run: %v", err)
	}
}
