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

package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mlnoga/isogrid/internal/grid"
)

// Longest band name that fits one FITS header card
const maxBandName = 68

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.PhotSys == "" {
		return errors.New("phot_sys must be set")
	}
	if err := c.validateAxes(); err != nil {
		return err
	}
	if err := c.validateBands(); err != nil {
		return err
	}
	if err := c.validateCalibration(); err != nil {
		return err
	}
	if err := c.validateProvider(); err != nil {
		return err
	}
	if err := c.validateBuild(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func (c *Config) validateAxes() error {
	specs := []struct {
		name string
		spec AxisSpec
	}{
		{"axes.mass", c.Axes.Mass},
		{"axes.logage", c.Axes.LogAge},
		{"axes.feh", c.Axes.FeH},
	}
	for _, s := range specs {
		if len(s.spec.Values) == 0 && s.spec.Num <= 0 {
			return fmt.Errorf("%s: set values or a positive num", s.name)
		}
		if err := grid.ValidateAxis(s.name, s.spec.Expand()); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateBands() error {
	if len(c.Bands) == 0 {
		return errors.New("bands: at least one band is required")
	}
	names := make([]string, 0, len(c.Bands))
	for b := range c.Bands {
		names = append(names, b)
	}
	sort.Strings(names)
	for _, b := range names {
		switch {
		case strings.TrimSpace(b) == "":
			return errors.New("bands: empty band name")
		case strings.TrimSpace(b) != b:
			return fmt.Errorf("bands.%q: name must not start or end with whitespace", b)
		case grid.IsReservedName(b):
			return fmt.Errorf("bands.%s: name collides with a grid axis", b)
		case len(b) > maxBandName:
			return fmt.Errorf("bands.%s: name longer than %d characters", b, maxBandName)
		case strings.ContainsRune(b, '\''):
			return fmt.Errorf("bands.%s: name must not contain quotes", b)
		case strings.TrimSpace(c.Bands[b]) == "":
			return fmt.Errorf("bands.%s: column name must be set", b)
		}
	}
	return nil
}

func (c *Config) validateCalibration() error {
	for b, o := range c.Calibration {
		if math.IsNaN(o) || math.IsInf(o, 0) {
			return fmt.Errorf("calibration.%s: offset must be finite", b)
		}
	}
	return nil
}

func (c *Config) validateProvider() error {
	if c.Provider.URL == "" {
		return errors.New("provider.url must be set")
	}
	if !strings.Contains(c.Provider.PhotSysTemplate, "%s") {
		return errors.New("provider.photsys_template must contain %s")
	}
	if c.Provider.TimeoutSeconds < 0 {
		return errors.New("provider.timeout_seconds must not be negative")
	}
	if c.Provider.Retries < 0 {
		return errors.New("provider.retries must not be negative")
	}
	if c.Provider.BackoffSeconds < 0 {
		return errors.New("provider.backoff_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateBuild() error {
	if c.Build.PairTimeoutSeconds < 0 {
		return errors.New("build.pair_timeout_seconds must not be negative")
	}
	if c.Build.MemoryFraction < 0 || c.Build.MemoryFraction > 1 {
		return fmt.Errorf("build.memory_fraction must be within [0,1], got %g", c.Build.MemoryFraction)
	}
	return nil
}
