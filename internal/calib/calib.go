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

// Package calib applies per-band zero point offsets to query results.
package calib

import (
	"sort"

	"github.com/mlnoga/isogrid/internal/query"
)

// Additive per-band offsets. The zero value applies no offsets.
type Calibrator struct {
	offsets map[string]float64
}

// Creates a calibrator from the given band to offset table, which is copied
func New(offsets map[string]float64) *Calibrator {
	c := &Calibrator{offsets: make(map[string]float64, len(offsets))}
	for b, o := range offsets {
		c.offsets[b] = o
	}
	return c
}

// Returns a new result with each configured band shifted by its offset.
// Bands without an offset are copied unchanged, offsets for bands missing
// from the result are ignored. NaN stays NaN. Applying twice adds twice.
func (c *Calibrator) Apply(r query.Result) query.Result {
	out := make(query.Result, len(r))
	for b, v := range r {
		out[b] = v + c.offsets[b]
	}
	return out
}

// Offset for the given band, zero if none is configured
func (c *Calibrator) Offset(band string) float64 {
	return c.offsets[band]
}

// Bands with a configured offset, sorted
func (c *Calibrator) Bands() []string {
	bands := make([]string, 0, len(c.offsets))
	for b := range c.offsets {
		bands = append(bands, b)
	}
	sort.Strings(bands)
	return bands
}
