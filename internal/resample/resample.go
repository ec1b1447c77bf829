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

// Package resample interpolates band magnitudes from a track's native mass
// samples onto a fixed target mass axis.
package resample

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"
)

// Returned by New if fewer than two source samples are given
var ErrTooFewSamples = errors.New("resample: need at least two distinct mass samples")

// A piecewise-linear resampler for one track. Built once per track from its
// masses and reused for every band.
type Resampler struct {
	xs       []float64
	min, max float64
}

// Creates a resampler for the given strictly ascending source masses
func New(xs []float64) (*Resampler, error) {
	if len(xs) < 2 {
		return nil, ErrTooFewSamples
	}
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return nil, fmt.Errorf("resample: source masses not strictly ascending at index %d", i)
		}
	}
	return &Resampler{xs: xs, min: xs[0], max: xs[len(xs)-1]}, nil
}

// Returns true if x lies within the source mass range
func (r *Resampler) Covers(x float64) bool {
	return x >= r.min && x <= r.max
}

// Interpolates ys, aligned with the source masses, at each target mass and
// writes the results into out. Targets outside the source range yield NaN.
// out must have the same length as targets; out is allocated if nil.
func (r *Resampler) Apply(ys, targets, out []float64) ([]float64, error) {
	if len(ys) != len(r.xs) {
		return nil, fmt.Errorf("resample: %d values for %d masses", len(ys), len(r.xs))
	}
	if out == nil {
		out = make([]float64, len(targets))
	} else if len(out) != len(targets) {
		return nil, fmt.Errorf("resample: output length %d for %d targets", len(out), len(targets))
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(r.xs, ys); err != nil {
		return nil, err
	}
	nan := math.NaN()
	for i, x := range targets {
		if r.Covers(x) {
			out[i] = pl.Predict(x)
		} else {
			out[i] = nan
		}
	}
	return out, nil
}

// Convenience wrapper resampling a single band
func Linear(xs, ys, targets []float64) ([]float64, error) {
	r, err := New(xs)
	if err != nil {
		return nil, err
	}
	return r.Apply(ys, targets, nil)
}
