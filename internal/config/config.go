// Package config handles engine configuration loading and management.
package config

// Config holds all engine settings.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Data    DataConfig    `yaml:"data"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// EngineConfig holds simulation settings.
type EngineConfig struct {
	DoorSwing     float32 `yaml:"door_swing"`      // Door opening angle in file units (2048 per turn)
	DoorDuration  float32 `yaml:"door_duration"`   // Seconds a door takes to open
	FlatFrameTime float32 `yaml:"flat_frame_time"` // Seconds per animated flat frame
	TickRate      int     `yaml:"tick_rate"`       // Simulation steps per second
}

// TickInterval returns the seconds between simulation steps.
func (e EngineConfig) TickInterval() float32 {
	if e.TickRate <= 0 {
		return 1.0 / 60.0
	}
	return 1 / float32(e.TickRate)
}

// DataConfig holds game data locations.
type DataConfig struct {
	Paths []string `yaml:"paths"` // BSA archives or loose file directories, lowest priority first
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			DoorSwing:     512,
			DoorDuration:  1.0,
			FlatFrameTime: 1.0 / 12.0,
			TickRate:      60,
		},
		Data: DataConfig{
			Paths: []string{"arena2/BLOCKS.BSA"},
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}
