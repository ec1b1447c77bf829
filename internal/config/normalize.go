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

import "strings"

func (c *Config) normalize() {
	c.PhotSys = strings.TrimSpace(c.PhotSys)
	if len(c.Axes.FeH.Values) == 0 && c.Axes.FeH.Num == 0 {
		c.Axes.FeH.Values = defaultFeH()
	}
	if c.Bands == nil {
		c.Bands = defaultBands()
	}
	if c.Calibration == nil {
		c.Calibration = defaultCalibration()
	}
	c.normalizeProvider()
	c.normalizeBuild()
	c.normalizeLogging()
}

func (c *Config) normalizeProvider() {
	c.Provider.URL = strings.TrimSpace(c.Provider.URL)
	if strings.TrimSpace(c.Provider.MassColumn) == "" {
		c.Provider.MassColumn = Default().Provider.MassColumn
	}
	if strings.TrimSpace(c.Provider.PhotSysTemplate) == "" {
		c.Provider.PhotSysTemplate = Default().Provider.PhotSysTemplate
	}
}

func (c *Config) normalizeBuild() {
	if c.Build.Workers <= 0 {
		c.Build.Workers = 1
	}
	c.Build.Output = strings.TrimSpace(c.Build.Output)
	if c.Server.Artifact == "" {
		c.Server.Artifact = c.Build.Output
	}
}

func (c *Config) normalizeLogging() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	c.Log.File = strings.TrimSpace(c.Log.File)
}
