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

package grid

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Returns true if both float slices have the same length and values, with NaN
// considered equal to NaN
func EqualFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] && !(math.IsNaN(a[i]) && math.IsNaN(b[i])) {
			return false
		}
	}
	return true
}

// Returns true if two artifacts hold identical axes, band lists and band data.
// Undefined cells compare equal to each other.
func Equal(a, b *Artifact) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !EqualFloats(a.Axes.Mass, b.Axes.Mass) || !EqualFloats(a.Axes.LogAge, b.Axes.LogAge) ||
		!EqualFloats(a.Axes.FeH, b.Axes.FeH) {
		return false
	}
	if len(a.Bands) != len(b.Bands) || len(a.Data) != len(b.Data) {
		return false
	}
	for i, band := range a.Bands {
		if b.Bands[i] != band {
			return false
		}
		if !EqualFloats(a.Data[band], b.Data[band]) {
			return false
		}
	}
	return a.PhotSys == b.PhotSys && a.BuildID == b.BuildID
}

func isDefined(v float64) bool { return !math.IsNaN(v) }

// Fraction of defined cells of the given band, in [0,1]. Zero for unknown bands
func (a *Artifact) Coverage(band string) float64 {
	d := a.Data[band]
	if len(d) == 0 {
		return 0
	}
	return float64(floats.Count(isDefined, d)) / float64(len(d))
}

// Number of (feh, logage) rows in which the given band has at least one
// defined mass cell
func (a *Artifact) RowsCovered(band string) int {
	n := 0
	for i := range a.Axes.FeH {
		for j := range a.Axes.LogAge {
			if floats.Count(isDefined, a.Row(band, i, j)) > 0 {
				n++
			}
		}
	}
	return n
}
