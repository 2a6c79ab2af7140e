package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/presence.report/internal/config"
	"github.com/banshee-data/presence.report/internal/monitoring"
)

// explicitFlags returns the names of flags given on the command line.
func explicitFlags() map[string]bool {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// buildConfig loads -config (or defaults) and overlays the flags in set.
func buildConfig(set map[string]bool) (*config.SensorConfig, error) {
	cfg := config.DefaultSensorConfig()
	if *configFile != "" {
		loaded, err := config.LoadSensorConfig(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if set["port"] {
		cfg.Port = port
	}
	if set["baud"] {
		cfg.BaudRate = baud
	}
	if set["listen"] {
		cfg.Listen = listen
	}
	if set["db"] {
		cfg.DBPath = dbPathFlag
	}
	if set["interval"] {
		s := interval.String()
		cfg.PollInterval = &s
	}
	if set["log-format"] {
		cfg.LogFormat = logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogging installs a slog-backed sink writing to w in the configured
// format, filtered at the configured level.
func setupLogging(cfg *config.SensorConfig, w io.Writer) error {
	level, err := monitoring.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		return err
	}
	var asJSON bool
	switch strings.ToLower(cfg.GetLogFormat()) {
	case "json":
		asJSON = true
	case "text":
	default:
		return fmt.Errorf("unknown log format %q", cfg.GetLogFormat())
	}
	monitoring.SetLogger(monitoring.NewSlogLogf(w, level, asJSON))
	return nil
}
