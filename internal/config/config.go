// Package config loads gridctl's YAML process configuration, following
// the teacher's loadConfig shape: open file, yaml.NewDecoder, default
// zero fields.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved process configuration.
type Config struct {
	Server       ServerConfig
	EventLog     EventLogConfig
	Observability ObservabilityConfig
	Sensors      SensorsConfig
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Address     string
	MetricsAddr string
}

// EventLogConfig bounds the bounded FIFO.
type EventLogConfig struct {
	Capacity int
}

// ObservabilityConfig mirrors observability.Config's YAML surface.
type ObservabilityConfig struct {
	Service string
	Metrics bool
}

// SensorsConfig configures the synthetic sensor poller.
type SensorsConfig struct {
	PollInterval time.Duration
	Seed         int64
}

type yamlConfig struct {
	Server struct {
		Address     string `yaml:"address"`
		MetricsAddr string `yaml:"metrics_address"`
	} `yaml:"server"`
	EventLog struct {
		Capacity int `yaml:"capacity"`
	} `yaml:"event_log"`
	Observability struct {
		Service string `yaml:"service"`
		Metrics bool   `yaml:"metrics"`
	} `yaml:"observability"`
	Sensors struct {
		PollIntervalMS int   `yaml:"poll_interval_ms"`
		Seed           int64 `yaml:"seed"`
	} `yaml:"sensors"`
}

// Load reads and decodes the YAML file at path, applying defaults for any
// zero-valued field.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	var yc yamlConfig
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&yc); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if yc.Server.Address == "" {
		yc.Server.Address = ":8080"
	}
	if yc.Server.MetricsAddr == "" {
		yc.Server.MetricsAddr = ":9090"
	}
	if yc.EventLog.Capacity == 0 {
		yc.EventLog.Capacity = 10000
	}
	if yc.Observability.Service == "" {
		yc.Observability.Service = "gridctl"
	}
	if yc.Sensors.PollIntervalMS == 0 {
		yc.Sensors.PollIntervalMS = 5000
	}

	return &Config{
		Server: ServerConfig{
			Address:     yc.Server.Address,
			MetricsAddr: yc.Server.MetricsAddr,
		},
		EventLog: EventLogConfig{Capacity: yc.EventLog.Capacity},
		Observability: ObservabilityConfig{
			Service: yc.Observability.Service,
			Metrics: yc.Observability.Metrics,
		},
		Sensors: SensorsConfig{
			PollInterval: time.Duration(yc.Sensors.PollIntervalMS) * time.Millisecond,
			Seed:         yc.Sensors.Seed,
		},
	}, nil
}
