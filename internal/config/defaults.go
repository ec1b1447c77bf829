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
	"github.com/mlnoga/isogrid/internal/provider/parsec"
)

const (
	defaultPhotSys         = "gaiaEDR3"
	defaultOutput          = "isogrid.fits.gz"
	defaultBind            = "127.0.0.1:8080"
	defaultLogLevel        = "info"
	defaultMemoryFraction  = 0.7
	defaultProviderTimeout = 300
)

// Default returns a Config populated with the settings of a Gaia EDR3 grid
// over 20 masses, 5 log-ages and 3 metallicities.
func Default() Config {
	return Config{
		PhotSys: defaultPhotSys,
		Axes: Axes{
			Mass:   AxisSpec{Start: 0.5, Stop: 3.0, Num: 20},
			LogAge: AxisSpec{Start: 9.0, Stop: 9.7, Num: 5},
		},
		Provider: Provider{
			URL:             parsec.DefaultBaseURL,
			PhotSysTemplate: parsec.DefaultPhotSysTemplate,
			MassColumn:      parsec.DefaultMassColumn,
			TimeoutSeconds:  defaultProviderTimeout,
			Retries:         2,
			BackoffSeconds:  2,
		},
		Build: Build{
			Workers:        1,
			Output:         defaultOutput,
			MemoryFraction: defaultMemoryFraction,
		},
		Log: Log{
			Level: defaultLogLevel,
		},
		Server: Server{
			Bind: defaultBind,
		},
	}
}

// Band to column table used when the configuration names no bands
func defaultBands() map[string]string {
	return map[string]string{
		"G":  "Gmag",
		"BP": "G_BPmag",
		"RP": "G_RPmag",
		"J":  "Jmag",
		"H":  "Hmag",
		"K":  "Kmag",
	}
}

// Offsets used when the configuration has no [calibration] table
func defaultCalibration() map[string]float64 {
	return map[string]float64{
		"G":  0.12,
		"RP": 0.19,
	}
}

// Metallicity nodes used when the configuration gives neither values nor a
// node count. They are not evenly spaced.
func defaultFeH() []float64 {
	return []float64{-0.5, 0.0, 0.3}
}
