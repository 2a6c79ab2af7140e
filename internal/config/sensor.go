// Package config loads the presence service configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/radar"
	"github.com/banshee-data/presence.report/internal/serialport"
)

// Defaults applied when a field is absent.
const (
	DefaultPort           = "/dev/ttyUSB0"
	DefaultCommandTimeout = time.Second
	DefaultPollInterval   = time.Second
	DefaultDBPath         = "presence.db"
	DefaultListen         = ":8080"
	DefaultLogFormat      = "text"
	DefaultLogLevel       = "info"

	maxFileSize = 1 * 1024 * 1024 // 1MB
)

// SensorConfig is the service configuration. Every field is optional; the
// Get* methods supply defaults, so partial files are safe.
type SensorConfig struct {
	// Serial connection
	Port     *string `json:"port,omitempty" yaml:"port,omitempty"`
	BaudRate *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	DataBits *int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty"`
	StopBits *int    `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty"`
	Parity   *string `json:"parity,omitempty" yaml:"parity,omitempty"`

	// Protocol timing, as duration strings like "1s"
	CommandTimeout *string `json:"command_timeout,omitempty" yaml:"command_timeout,omitempty"`
	PollInterval   *string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`

	// Service
	DBPath    *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	Listen    *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	LogFormat *string `json:"log_format,omitempty" yaml:"log_format,omitempty"`
	LogLevel  *string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// Sensor settings applied at startup
	Settings *radar.Settings `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptySensorConfig returns a SensorConfig with all fields nil.
func EmptySensorConfig() *SensorConfig {
	return &SensorConfig{}
}

// DefaultSensorConfig returns a SensorConfig with every service field set to
// its default. Sensor settings stay nil so the device keeps its own.
func DefaultSensorConfig() *SensorConfig {
	return &SensorConfig{
		Port:           ptrString(DefaultPort),
		BaudRate:       ptrInt(serialport.DefaultBaudRate),
		DataBits:       ptrInt(8),
		StopBits:       ptrInt(1),
		Parity:         ptrString("N"),
		CommandTimeout: ptrString(DefaultCommandTimeout.String()),
		PollInterval:   ptrString(DefaultPollInterval.String()),
		DBPath:         ptrString(DefaultDBPath),
		Listen:         ptrString(DefaultListen),
		LogFormat:      ptrString(DefaultLogFormat),
		LogLevel:       ptrString(DefaultLogLevel),
	}
}

// LoadSensorConfig loads a SensorConfig from a .json, .yaml or .yml file of
// at most 1MB and validates it.
func LoadSensorConfig(path string) (*SensorConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySensorConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parsePositiveDuration(name string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *SensorConfig) Validate() error {
	if _, err := c.PortOptions().Normalize(); err != nil {
		return err
	}

	if err := parsePositiveDuration("command_timeout", c.CommandTimeout); err != nil {
		return err
	}
	if err := parsePositiveDuration("poll_interval", c.PollInterval); err != nil {
		return err
	}

	if f := c.GetLogFormat(); f != "text" && f != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", f)
	}
	if _, err := monitoring.ParseLevel(c.GetLogLevel()); err != nil {
		return err
	}

	if c.Settings != nil {
		if err := c.Settings.Validate(); err != nil {
			return fmt.Errorf("settings: %w", err)
		}
	}
	return nil
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def // default on parse error
	}
	return d
}

// GetPort returns the serial device path.
func (c *SensorConfig) GetPort() string { return stringOr(c.Port, DefaultPort) }

// GetDBPath returns the SQLite database path.
func (c *SensorConfig) GetDBPath() string { return stringOr(c.DBPath, DefaultDBPath) }

// GetListen returns the HTTP listen address.
func (c *SensorConfig) GetListen() string { return stringOr(c.Listen, DefaultListen) }

// GetLogFormat returns "text" or "json".
func (c *SensorConfig) GetLogFormat() string {
	return strings.ToLower(stringOr(c.LogFormat, DefaultLogFormat))
}

// GetLogLevel returns the log level name.
func (c *SensorConfig) GetLogLevel() string { return stringOr(c.LogLevel, DefaultLogLevel) }

// GetCommandTimeout returns the per-command exchange deadline.
func (c *SensorConfig) GetCommandTimeout() time.Duration {
	return durationOr(c.CommandTimeout, DefaultCommandTimeout)
}

// GetPollInterval returns the presence polling interval.
func (c *SensorConfig) GetPollInterval() time.Duration {
	return durationOr(c.PollInterval, DefaultPollInterval)
}

// PortOptions returns the serial options; unset fields are left zero for
// serialport.PortOptions.Normalize to default.
func (c *SensorConfig) PortOptions() serialport.PortOptions {
	var opts serialport.PortOptions
	if c.BaudRate != nil {
		opts.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		opts.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		opts.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		opts.Parity = *c.Parity
	}
	return opts
}

// RadarSettings returns the startup sensor settings, empty when none are set.
func (c *SensorConfig) RadarSettings() radar.Settings {
	if c.Settings == nil {
		return radar.Settings{}
	}
	return *c.Settings
}
