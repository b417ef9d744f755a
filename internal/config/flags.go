package config

import (
	"flag"
	"strings"
)

var (
	flagConfig       = flag.String("config", "", "Path to config file")
	flagDebug        = flag.Bool("debug", false, "Enable debug logging")
	flagData         = flag.String("data", "", "Comma-separated BSA archives or data directories")
	flagLogFile      = flag.String("log-file", "", "Write logs to this file as well")
	flagDoorSwing    = flag.Float64("door-swing", 0, "Door opening angle in file units")
	flagDoorDuration = flag.Float64("door-duration", 0, "Door opening time in seconds")
	flagTickRate     = flag.Int("tick-rate", 0, "Simulation steps per second")
	flagMetrics      = flag.Bool("metrics", false, "Collect and print metrics")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagData != "" {
		cfg.Data.Paths = strings.Split(*flagData, ",")
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagDoorSwing > 0 {
		cfg.Engine.DoorSwing = float32(*flagDoorSwing)
	}
	if *flagDoorDuration > 0 {
		cfg.Engine.DoorDuration = float32(*flagDoorDuration)
	}
	if *flagTickRate > 0 {
		cfg.Engine.TickRate = *flagTickRate
	}
	if *flagMetrics {
		cfg.Metrics.Enabled = true
	}
}
