// Package config loads the driver's settings: log level and the stack
// reservation calibration used when encoding native calls.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ascrivener/jitseed/pkg/jit"
)

// Config is the on-disk configuration.
type Config struct {
	LogLevel    string      `yaml:"log_level"`
	Calibration Calibration `yaml:"calibration"`
}

// Calibration holds per-platform call-site numbers that have to be
// measured rather than derived.
type Calibration struct {
	// ArgSpace maps call arity to bytes reserved around the call.
	ArgSpace map[int]uint8 `yaml:"arg_space"`
}

var validLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Calibration: Calibration{
			ArgSpace: jit.DefaultArgSpace(),
		},
	}
}

// Load reads a YAML file on top of Default. Unknown fields are rejected.
// Arities listed in the file replace the defaults for those arities only.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of Default.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	var file Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	for arity, reserve := range file.Calibration.ArgSpace {
		cfg.Calibration.ArgSpace[arity] = reserve
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the log level and the calibration table.
func (c Config) Validate() error {
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	if err := c.ArgSpace().Validate(); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	return nil
}

// ArgSpace returns the calibration table in the form the bridge takes.
func (c Config) ArgSpace() jit.ArgSpace {
	return jit.ArgSpace(c.Calibration.ArgSpace)
}
