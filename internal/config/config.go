// Package config assembles the process-wide ambient configuration:
// logging, storage path, and the tunables of every component named in
// §6, built the way the teacher's pkg/config.Config builds a logger
// from a single configuration object.
package config

import (
	"fmt"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/srgg/bleobservatory/internal/pipeline"
	"github.com/srgg/bleobservatory/internal/writer"
)

// Config is the top-level aggregate handed to every component at
// construction (Design Note 9's "single top-level aggregate").
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`
	StorePath string `yaml:"store_path" default:"bleobservatory.db"`

	MaxPacketsInMemory int `yaml:"max_packets_in_memory" default:"100000"`
	MaxDevicesTracked  int `yaml:"max_devices_tracked" default:"10000"`

	Pipeline pipeline.Config `yaml:"pipeline"`
	Writer   writer.Config   `yaml:"writer"`
}

// DefaultConfig returns the process defaults, composing each
// component's own DefaultConfig.
func DefaultConfig() Config {
	cfg := Config{
		Pipeline: pipeline.DefaultConfig(),
		Writer:   writer.DefaultConfig(),
	}
	defaults.SetDefaults(&cfg)
	return cfg
}

// NewLogger builds a logrus.Logger from c.LogLevel, mirroring the
// teacher's pkg/config.Config.NewLogger.
func (c Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("config: invalid log level %q: %w", c.LogLevel, err)
	}
	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}

// Dump renders c as YAML, for the CLI's diagnostic config-dump output.
func (c Config) Dump() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("config: marshal: %w", err)
	}
	return string(b), nil
}
