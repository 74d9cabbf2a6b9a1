package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"gesturebrainz/internal/apds9960"
)

// Config is the top-level YAML configuration for the gesturebrainz daemon.
//
// Defaults and validation live here so the rest of the daemon can assume a
// well-formed config. Flags only override individual fields.
type Config struct {
	// Sensor bus configuration
	Sensor SensorConfig `yaml:"sensor"`

	// Interrupt line configuration
	Interrupt InterruptConfig `yaml:"interrupt"`

	// Gesture engine and decoder tuning
	Gesture GestureFileConfig `yaml:"gesture"`

	// IPC configuration (gesture-ctl)
	IPC IPCConfig `yaml:"ipc"`

	// HTTP server (/ws and /metrics)
	HTTP HTTPConfig `yaml:"http"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type SensorConfig struct {
	Name        string `yaml:"name"`         // Label used in logs and metrics
	I2CBus      string `yaml:"i2c_bus"`      // periph bus name; empty selects the first bus
	Address     uint16 `yaml:"address"`      // 7-bit I2C address
	FIFORequest int    `yaml:"fifo_request"` // Samples requested per FIFO read (1..32)
}

type InterruptConfig struct {
	Mode           string `yaml:"mode"` // "gpio", "sysfs" or "poll"
	GPIOPin        string `yaml:"gpio_pin"`
	SysfsValuePath string `yaml:"sysfs_value_path"`
	PollIntervalMS int    `yaml:"poll_interval_ms"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// GestureFileConfig is the YAML form of the gesture engine setup plus the
// decoder tuning knobs.
type GestureFileConfig struct {
	// Decoder
	Threshold    uint8 `yaml:"threshold"`
	Sensitivity1 int   `yaml:"sensitivity_1"`
	Sensitivity2 int   `yaml:"sensitivity_2"`

	// Gesture engine registers
	ProximityEnter uint8 `yaml:"proximity_enter"`
	ProximityExit  uint8 `yaml:"proximity_exit"`
	FIFOThreshold  int   `yaml:"fifo_threshold"`
	Gain           int   `yaml:"gain"`
	LEDDrive       int   `yaml:"led_drive"`
	PulseLength    int   `yaml:"pulse_length"`
	PulseCount     int   `yaml:"pulse_count"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	engine := apds9960.DefaultGestureConfig()
	return Config{
		Sensor: SensorConfig{
			Name:        "apds9960",
			Address:     defaultI2CAddress,
			FIFORequest: defaultFIFORequest,
		},
		Interrupt: InterruptConfig{
			Mode:           defaultInterruptMode,
			GPIOPin:        defaultGPIOPin,
			SysfsValuePath: defaultSysfsValuePath,
			PollIntervalMS: defaultPollIntervalMS,
		},
		Gesture: GestureFileConfig{
			Threshold:      apds9960.DefaultGestureThreshold,
			Sensitivity1:   apds9960.DefaultSensitivity1,
			Sensitivity2:   apds9960.DefaultSensitivity2,
			ProximityEnter: engine.ProximityEnter,
			ProximityExit:  engine.ProximityExit,
			FIFOThreshold:  engine.FIFOThreshold,
			Gain:           engine.Gain,
			LEDDrive:       engine.LEDDrive,
			PulseLength:    engine.PulseLength,
			PulseCount:     engine.PulseCount,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocketPath,
		},
		HTTP: HTTPConfig{
			Port: defaultHTTPPort,
		},
		Logging: LoggingConfig{
			Level: defaultLogLevel,
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
// Unknown fields are rejected to catch typos.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds flag values that override the loaded config.
// Each override is applied only when its pointer is non-nil.
type FlagOverrides struct {
	I2CBus     *string
	I2CAddress *int

	InterruptMode  *string
	GPIOPin        *string
	SysfsValuePath *string
	PollIntervalMS *int

	Threshold    *int
	Sensitivity1 *int
	Sensitivity2 *int

	IPCSocketPath *string
	HTTPPort      *int

	LogLevel *string
}

// Apply merges the overrides into cfg. Non-nil pointers are applied even
// when they hold a zero value.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.I2CBus != nil {
		cfg.Sensor.I2CBus = *o.I2CBus
	}
	if o.I2CAddress != nil {
		cfg.Sensor.Address = uint16(*o.I2CAddress)
	}

	if o.InterruptMode != nil {
		cfg.Interrupt.Mode = *o.InterruptMode
	}
	if o.GPIOPin != nil {
		cfg.Interrupt.GPIOPin = *o.GPIOPin
	}
	if o.SysfsValuePath != nil {
		cfg.Interrupt.SysfsValuePath = *o.SysfsValuePath
	}
	if o.PollIntervalMS != nil {
		cfg.Interrupt.PollIntervalMS = *o.PollIntervalMS
	}

	if o.Threshold != nil {
		cfg.Gesture.Threshold = uint8(min(max(*o.Threshold, 0), 255))
	}
	if o.Sensitivity1 != nil {
		cfg.Gesture.Sensitivity1 = *o.Sensitivity1
	}
	if o.Sensitivity2 != nil {
		cfg.Gesture.Sensitivity2 = *o.Sensitivity2
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	// Sensor
	if c.Sensor.Name == "" {
		return errors.New("sensor.name must not be empty")
	}
	if c.Sensor.Address == 0 || c.Sensor.Address > 0x7F {
		return errors.New("sensor.address must be a 7-bit I2C address")
	}
	if c.Sensor.FIFORequest < 1 || c.Sensor.FIFORequest > defaultFIFORequest {
		return fmt.Errorf("sensor.fifo_request must be between 1 and %d", defaultFIFORequest)
	}

	// Interrupt
	switch c.Interrupt.Mode {
	case interruptModeGPIO:
		if c.Interrupt.GPIOPin == "" {
			return errors.New("interrupt.gpio_pin must not be empty in gpio mode")
		}
	case interruptModeSysfs:
		if c.Interrupt.SysfsValuePath == "" {
			return errors.New("interrupt.sysfs_value_path must not be empty in sysfs mode")
		}
	case interruptModePoll:
		if c.Interrupt.PollIntervalMS <= 0 || c.Interrupt.PollIntervalMS > maxPollIntervalMS {
			return fmt.Errorf("interrupt.poll_interval_ms must be between 1 and %d", maxPollIntervalMS)
		}
	default:
		return fmt.Errorf("interrupt.mode must be %q, %q or %q", interruptModeGPIO, interruptModeSysfs, interruptModePoll)
	}

	// Gesture
	if c.Gesture.Sensitivity1 < 0 || c.Gesture.Sensitivity2 < 0 {
		return errors.New("gesture.sensitivity_1 and gesture.sensitivity_2 must be >= 0")
	}
	if c.Gesture.ProximityExit > c.Gesture.ProximityEnter {
		return errors.New("gesture.proximity_exit must be <= gesture.proximity_enter")
	}
	// Register encodings are checked by the driver; fail early with the same rules.
	if err := c.ToGestureConfig().Validate(); err != nil {
		return fmt.Errorf("gesture: %w", err)
	}

	// IPC / HTTP
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535 (0 disables the server)")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToGestureConfig converts the file config into the driver's engine setup.
func (c *Config) ToGestureConfig() apds9960.GestureConfig {
	return apds9960.GestureConfig{
		ProximityEnter: c.Gesture.ProximityEnter,
		ProximityExit:  c.Gesture.ProximityExit,
		FIFOThreshold:  c.Gesture.FIFOThreshold,
		Gain:           c.Gesture.Gain,
		LEDDrive:       c.Gesture.LEDDrive,
		PulseLength:    c.Gesture.PulseLength,
		PulseCount:     c.Gesture.PulseCount,
	}
}

// ToDecoderState builds a decoder state from the tuning knobs.
func (c *Config) ToDecoderState() *apds9960.DecoderState {
	s := apds9960.NewDecoderState()
	s.SetThreshold(c.Gesture.Threshold)
	s.SetSensitivity1(c.Gesture.Sensitivity1)
	s.SetSensitivity2(c.Gesture.Sensitivity2)
	return s
}

// PollInterval returns the poll-mode period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Interrupt.PollIntervalMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
