// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads isogrid settings from TOML files.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gonum.org/v1/gonum/floats"

	"github.com/mlnoga/isogrid/internal/grid"
)

//go:embed sample_config.toml
var sampleConfig string

// AxisSpec describes one grid axis, either as explicit node values or as Num
// evenly spaced nodes from Start to Stop inclusive. Values win if both are set.
type AxisSpec struct {
	Values []float64 `toml:"values"`
	Start  float64   `toml:"start"`
	Stop   float64   `toml:"stop"`
	Num    int       `toml:"num"`
}

// Expand returns the node values of the axis.
func (s AxisSpec) Expand() []float64 {
	if len(s.Values) > 0 {
		return append([]float64(nil), s.Values...)
	}
	switch {
	case s.Num <= 0:
		return nil
	case s.Num == 1:
		return []float64{s.Start}
	}
	return floats.Span(make([]float64, s.Num), s.Start, s.Stop)
}

// Axes holds the three grid axes.
type Axes struct {
	Mass   AxisSpec `toml:"mass"`
	LogAge AxisSpec `toml:"logage"`
	FeH    AxisSpec `toml:"feh"`
}

// Provider contains settings for the CMD web form client.
type Provider struct {
	URL             string  `toml:"url"`
	PhotSysTemplate string  `toml:"photsys_template"`
	MassColumn      string  `toml:"mass_column"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	Retries         int     `toml:"retries"`
	BackoffSeconds  float64 `toml:"backoff_seconds"`
}

// Build contains settings for grid construction.
type Build struct {
	Workers            int     `toml:"workers"`
	PairTimeoutSeconds int     `toml:"pair_timeout_seconds"`
	Output             string  `toml:"output"`
	MemoryFraction     float64 `toml:"memory_fraction"`
}

// Log contains settings for log output.
type Log struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Server contains settings for the REST API.
type Server struct {
	Bind     string `toml:"bind"`
	Artifact string `toml:"artifact"`
}

// Config encapsulates all configuration values.
//
// Sections:
//   - PhotSys: photometric system requested from the provider
//   - Axes: mass, log-age and metallicity grid nodes
//   - Bands: band name to provider column name
//   - Calibration: additive per-band offsets applied to query results
//   - Provider: CMD web form client
//   - Build: workers, timeouts and output path
//   - Log: level and optional log file
//   - Server: REST bind address and artifact to serve
type Config struct {
	PhotSys     string             `toml:"phot_sys"`
	Axes        Axes               `toml:"axes"`
	Bands       map[string]string  `toml:"bands"`
	Calibration map[string]float64 `toml:"calibration"`
	Provider    Provider           `toml:"provider"`
	Build       Build              `toml:"build"`
	Log         Log                `toml:"log"`
	Server      Server             `toml:"server"`
}

// Load parses and validates the given configuration file on top of the
// defaults. An empty path yields the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GridAxes expands the configured axes.
func (c *Config) GridAxes() grid.Axes {
	return grid.Axes{
		Mass:   c.Axes.Mass.Expand(),
		LogAge: c.Axes.LogAge.Expand(),
		FeH:    c.Axes.FeH.Expand(),
	}
}

// PairTimeout returns the per-pair provider timeout, zero if unlimited.
func (c *Config) PairTimeout() time.Duration {
	return time.Duration(c.Build.PairTimeoutSeconds) * time.Second
}

// ProviderTimeout returns the HTTP timeout of the provider client.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSeconds) * time.Second
}

// ProviderBackoff returns the base delay between provider retries.
func (c *Config) ProviderBackoff() time.Duration {
	return time.Duration(c.Provider.BackoffSeconds * float64(time.Second))
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Sample returns the annotated sample configuration.
func Sample() string {
	return sampleConfig
}
