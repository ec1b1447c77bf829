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

// Package query interpolates band magnitudes from a loaded grid artifact.
package query

import (
	"fmt"
	"math"
	"sort"

	"github.com/mlnoga/isogrid/internal/grid"
)

// Coordinates closer than this to an axis node are snapped onto the node
const SnapTolerance = 1e-9

// Magnitudes per band name. Undefined values are NaN.
type Result map[string]float64

// Indicates a query with inputs outside the domain of the function, as
// opposed to outside the grid
type InvalidQueryError struct {
	Param string
	Value float64
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %s=%g must be positive and finite", e.Param, e.Value)
}

// Read-only interpolator over one artifact. Safe for concurrent use.
type Query struct {
	a *grid.Artifact
}

// Creates a query over the given artifact, which must not be modified
// afterwards
func New(a *grid.Artifact) (*Query, error) {
	if a == nil {
		return nil, fmt.Errorf("nil artifact")
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &Query{a: a}, nil
}

// Artifact served by this query
func (q *Query) Artifact() *grid.Artifact {
	return q.a
}

// Band names in the order they are stored
func (q *Query) Bands() []string {
	return append([]string(nil), q.a.Bands...)
}

// Magnitudes for the given initial mass in solar masses, age in years and
// metallicity [M/H] in dex
func (q *Query) Magnitudes(mass, ageYears, feh float64) (Result, error) {
	if !(ageYears > 0) || math.IsInf(ageYears, 0) {
		return nil, &InvalidQueryError{Param: "age", Value: ageYears}
	}
	return q.AtLogAge(mass, math.Log10(ageYears), feh), nil
}

// Magnitudes for the given initial mass, log10 age in years and metallicity.
// Every band is present in the result. If any coordinate lies outside its
// axis, all bands are NaN.
func (q *Query) AtLogAge(mass, logAge, feh float64) Result {
	res := make(Result, len(q.a.Bands))
	bi, bw, okI := bracket(q.a.Axes.FeH, feh)
	bj, jw, okJ := bracket(q.a.Axes.LogAge, logAge)
	bk, kw, okK := bracket(q.a.Axes.Mass, mass)
	if !(okI && okJ && okK) {
		for _, b := range q.a.Bands {
			res[b] = math.NaN()
		}
		return res
	}

	for _, b := range q.a.Bands {
		res[b] = q.trilinear(b, bi, bj, bk, bw, jw, kw)
	}
	return res
}

// Weighted sum of the 8 surrounding cells. Corners with zero weight are
// skipped, so NaN neighbours do not leak into exact node hits.
func (q *Query) trilinear(band string, i, j, k int, wi, wj, wk float64) float64 {
	data := q.a.Data[band]
	sum := 0.0
	for di := 0; di < 2; di++ {
		fi := weight(wi, di)
		if fi == 0 {
			continue
		}
		for dj := 0; dj < 2; dj++ {
			fj := weight(wj, dj)
			if fj == 0 {
				continue
			}
			for dk := 0; dk < 2; dk++ {
				fk := weight(wk, dk)
				if fk == 0 {
					continue
				}
				v := data[q.a.Index(i+di, j+dj, k+dk)]
				if math.IsNaN(v) {
					return math.NaN()
				}
				sum += fi * fj * fk * v
			}
		}
	}
	return sum
}

// Weight of the lower (d=0) or upper (d=1) neighbour for fractional position t
func weight(t float64, d int) float64 {
	if d == 0 {
		return 1 - t
	}
	return t
}

// Finds the lower bracketing node index and the fractional position of x
// between it and the next node. x within SnapTolerance of a node is moved
// onto it. On single-node axes and at the upper end the
// fraction is zero. Returns false if x lies outside the axis or is NaN.
func bracket(axis []float64, x float64) (int, float64, bool) {
	n := len(axis)
	if math.IsNaN(x) || n == 0 {
		return 0, 0, false
	}
	lo, hi := axis[0], axis[n-1]
	if math.Abs(x-lo) <= SnapTolerance {
		x = lo
	} else if math.Abs(x-hi) <= SnapTolerance {
		x = hi
	}
	if x < lo || x > hi {
		return 0, 0, false
	}
	if n == 1 {
		return 0, 0, true
	}

	// first index with axis[idx] >= x, snapped onto a node within tolerance
	idx := sort.SearchFloat64s(axis, x)
	if idx > 0 && x-axis[idx-1] <= SnapTolerance {
		idx--
		x = axis[idx]
	} else if axis[idx]-x <= SnapTolerance {
		x = axis[idx]
	}
	if axis[idx] == x {
		if idx == n-1 {
			return idx - 1, 1, true
		}
		return idx, 0, true
	}
	i := idx - 1
	t := (x - axis[i]) / (axis[idx] - axis[i])
	return i, t, true
}
