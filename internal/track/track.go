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

package track

import (
	"fmt"
	"math"
	"sort"
)

// An isochrone track for one (metallicity, log-age) pair as returned by a
// provider. Column-oriented: Columns[name][r] belongs to row r with initial
// mass Mass[r].
type Track struct {
	FeH     float64              // metallicity [M/H] the track was requested for
	LogAge  float64              // log10 age in years the track was requested for
	Mass    []float64            // initial mass per row
	Columns map[string][]float64 // source column name to values, aligned with Mass
}

// Creates an empty track for the given pair
func New(feh, logAge float64) *Track {
	return &Track{
		FeH:     feh,
		LogAge:  logAge,
		Columns: make(map[string][]float64),
	}
}

// Number of rows
func (t *Track) Len() int { return len(t.Mass) }

// Returns the named column and whether it is present
func (t *Track) Column(name string) ([]float64, bool) {
	c, ok := t.Columns[name]
	return c, ok
}

// Signals a track that has no rows left after normalization.
// Recoverable: the builder skips the pair and continues.
type EmptyTrackError struct {
	FeH    float64
	LogAge float64
}

func (e *EmptyTrackError) Error() string {
	return fmt.Sprintf("empty track for [M/H]=%g, logAge=%g", e.FeH, e.LogAge)
}

// Sorts rows by ascending mass and drops duplicate masses, keeping the first
// row of each run after a stable sort. Rows with NaN mass are dropped.
// Returns an *EmptyTrackError if no rows remain.
func (t *Track) Normalize() error {
	for name, c := range t.Columns {
		if len(c) != len(t.Mass) {
			return fmt.Errorf("column %s has %d rows, mass has %d", name, len(c), len(t.Mass))
		}
	}

	order := make([]int, 0, len(t.Mass))
	for r, m := range t.Mass {
		if !math.IsNaN(m) {
			order = append(order, r)
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return t.Mass[order[a]] < t.Mass[order[b]] })

	// keep first occurrence per mass value
	o := 0
	for _, r := range order {
		if o > 0 && t.Mass[order[o-1]] == t.Mass[r] {
			continue
		}
		order[o] = r
		o++
	}
	order = order[:o]

	t.Mass = permute(t.Mass, order)
	for name, c := range t.Columns {
		t.Columns[name] = permute(c, order)
	}

	if len(t.Mass) == 0 {
		return &EmptyTrackError{FeH: t.FeH, LogAge: t.LogAge}
	}
	return nil
}

func permute(src []float64, order []int) []float64 {
	dst := make([]float64, len(order))
	for i, r := range order {
		dst[i] = src[r]
	}
	return dst
}
