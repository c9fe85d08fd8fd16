// Package config holds the daemon configuration: defaults, an optional YAML file
// and validation. Command-line flags are overlaid by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/spi-handshake/internal/gpio"
	"github.com/sweeney/spi-handshake/internal/handshake"
	"github.com/sweeney/spi-handshake/internal/status"
)

// Roles.
const (
	// RoleBoth runs initiator and responder on one host over the loopback bus.
	RoleBoth = "both"
	// RoleInitiator drives a real SPI bus and waits on a hardware ready line.
	RoleInitiator = "initiator"
)

// SPIConfig selects the hardware bus used by the initiator role.
type SPIConfig struct {
	Speed      int   `yaml:"Speed"`
	ChipSelect uint8 `yaml:"ChipSelect"`
}

// GPIOConfig selects the ready line pins (BCM numbering).
type GPIOConfig struct {
	Chip     string `yaml:"Chip"`
	ReadyOut int    `yaml:"ReadyOut"`
	ReadyIn  int    `yaml:"ReadyIn"`
	// Hardware makes the both role drive ReadyOut and watch ReadyIn on real pins
	// (jumpered together) instead of the simulated wire.
	Hardware bool `yaml:"Hardware"`
}

// SimConfig tunes the simulated wire used by the both role.
type SimConfig struct {
	// Ringing is the number of spurious rising edges following each real rise.
	Ringing int `yaml:"Ringing"`
}

// MQTTConfig configures publishing. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker     string        `yaml:"Broker"`
	Heartbeat  time.Duration `yaml:"Heartbeat"`
	BufferSize int           `yaml:"BufferSize"`
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"Addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

// Config is the complete daemon configuration.
type Config struct {
	Role            string        `yaml:"Role"`
	Pacing          time.Duration `yaml:"Pacing"`
	Debounce        time.Duration `yaml:"Debounce"`
	WaitTimeout     time.Duration `yaml:"WaitTimeout"`
	ArmTimeout      time.Duration `yaml:"ArmTimeout"`
	InitiatorFormat string        `yaml:"InitiatorFormat"`
	ResponderFormat string        `yaml:"ResponderFormat"`
	History         int           `yaml:"History"`

	SPI  SPIConfig  `yaml:"SPI"`
	GPIO GPIOConfig `yaml:"GPIO"`
	Sim  SimConfig  `yaml:"Sim"`
	MQTT MQTTConfig `yaml:"MQTT"`
	HTTP HTTPConfig `yaml:"HTTP"`
	Log  LogConfig  `yaml:"Log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Role:            RoleBoth,
		Pacing:          3 * time.Second,
		Debounce:        handshake.DefaultDebounce,
		InitiatorFormat: handshake.DefaultInitiatorFormat,
		ResponderFormat: handshake.DefaultResponderFormat,
		History:         status.DefaultHistory,
		SPI: SPIConfig{
			Speed: 5_000_000,
		},
		GPIO: GPIOConfig{
			Chip:     gpio.DefaultChip,
			ReadyOut: gpio.DefaultPinReadyOut,
			ReadyIn:  gpio.DefaultPinReadyIn,
		},
		Sim: SimConfig{
			Ringing: 2,
		},
		MQTT: MQTTConfig{
			Heartbeat:  15 * time.Minute,
			BufferSize: 256,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults. Keys absent from the file
// keep their default; unknown keys are rejected. An empty path returns Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode strictly decodes YAML into cfg.
func Decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// Validate reports every problem with the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Role != RoleBoth && c.Role != RoleInitiator {
		errs = append(errs, fmt.Errorf("role %q: want %s or %s", c.Role, RoleBoth, RoleInitiator))
	}
	if c.Pacing < 0 {
		errs = append(errs, fmt.Errorf("pacing %v: must not be negative", c.Pacing))
	}
	if c.Debounce <= 0 {
		errs = append(errs, fmt.Errorf("debounce %v: must be positive", c.Debounce))
	}
	// The responder re-arms one pacing period after its previous rise; a shorter
	// period lands inside the debounce window and the ready edge is lost.
	if c.Pacing >= 0 && c.Debounce > 0 && c.Pacing < c.Debounce {
		errs = append(errs, fmt.Errorf("pacing %v: must be at least the debounce window %v", c.Pacing, c.Debounce))
	}
	if c.WaitTimeout < 0 {
		errs = append(errs, fmt.Errorf("wait timeout %v: must not be negative", c.WaitTimeout))
	}
	if c.ArmTimeout < 0 {
		errs = append(errs, fmt.Errorf("arm timeout %v: must not be negative", c.ArmTimeout))
	}
	if !hasSingleVerb(c.InitiatorFormat) {
		errs = append(errs, fmt.Errorf("initiator format %q: need exactly one verb", c.InitiatorFormat))
	}
	if !hasSingleVerb(c.ResponderFormat) {
		errs = append(errs, fmt.Errorf("responder format %q: need exactly one verb", c.ResponderFormat))
	}
	if c.History < 1 {
		errs = append(errs, fmt.Errorf("history %d: must be at least 1", c.History))
	}
	if c.SPI.Speed <= 0 {
		errs = append(errs, fmt.Errorf("spi speed %d: must be positive", c.SPI.Speed))
	}
	if c.SPI.ChipSelect > 2 {
		errs = append(errs, fmt.Errorf("spi chip select %d: want 0, 1 or 2", c.SPI.ChipSelect))
	}
	if c.GPIO.ReadyOut < 0 || c.GPIO.ReadyIn < 0 {
		errs = append(errs, fmt.Errorf("gpio pins %d/%d: must not be negative", c.GPIO.ReadyOut, c.GPIO.ReadyIn))
	}
	if c.GPIO.Hardware && c.GPIO.ReadyOut == c.GPIO.ReadyIn {
		errs = append(errs, fmt.Errorf("gpio pins: ready out and in are both %d", c.GPIO.ReadyIn))
	}
	if c.Sim.Ringing < 0 {
		errs = append(errs, fmt.Errorf("sim ringing %d: must not be negative", c.Sim.Ringing))
	}
	if c.MQTT.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat %v: must not be negative", c.MQTT.Heartbeat))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q: want text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// hasSingleVerb reports whether format consumes exactly one argument.
func hasSingleVerb(format string) bool {
	return strings.Count(strings.ReplaceAll(format, "%%", ""), "%") == 1
}

// StatusConfig converts to the display form used by the status tracker.
func (c Config) StatusConfig() status.Config {
	return status.Config{
		Role:          c.Role,
		PacingMs:      c.Pacing.Milliseconds(),
		DebounceUs:    c.Debounce.Microseconds(),
		WaitTimeoutMs: c.WaitTimeout.Milliseconds(),
		ArmTimeoutMs:  c.ArmTimeout.Milliseconds(),
		HeartbeatMs:   c.MQTT.Heartbeat.Milliseconds(),
		Broker:        c.MQTT.Broker,
		HTTPAddr:      c.HTTP.Addr,
	}
}
