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

package resample

import (
	"errors"
	"math"
	"testing"

	"github.com/valyala/fastrand"
)

type linearTestCase struct {
	Xs, Ys, Targets, Want []float64
}

func TestLinear(t *testing.T) {
	epsilon := 1e-12
	nan := math.NaN()
	tcs := []linearTestCase{
		// scenario track: masses [0.4, 1.0, 1.6], G [5, 4, 3]
		{[]float64{0.4, 1.0, 1.6}, []float64{5, 4, 3}, []float64{0.5, 1.0, 1.5}, []float64{5 - 0.1/0.6, 4, 4 - 0.5/0.6}},
		// no extrapolation on either side
		{[]float64{1, 2}, []float64{10, 20}, []float64{0.999, 1, 1.5, 2, 2.001}, []float64{nan, 10, 15, 20, nan}},
		// NaN source value only affects its neighbouring segments
		{[]float64{1, 2, 3, 4}, []float64{1, nan, 3, 4}, []float64{1, 1.5, 3.5, 4}, []float64{1, nan, 3.5, 4}},
	}

	for n, tc := range tcs {
		got, err := Linear(tc.Xs, tc.Ys, tc.Targets)
		if err != nil {
			t.Fatalf("case %d: %s", n, err)
		}
		for i := range tc.Want {
			if math.IsNaN(tc.Want[i]) {
				if !math.IsNaN(got[i]) {
					t.Errorf("case %d: out[%d]=%f; want NaN", n, i, got[i])
				}
				continue
			}
			if math.Abs(got[i]-tc.Want[i]) > epsilon {
				t.Errorf("case %d: out[%d]=%f; want %f", n, i, got[i], tc.Want[i])
			}
		}
	}
}

func TestExactAtNodes(t *testing.T) {
	rng := fastrand.RNG{}
	for n := 2; n < 100; n++ {
		xs := make([]float64, n)
		ys := make([]float64, n)
		x := 0.0
		for i := range xs {
			x += 0.01 + float64(rng.Uint32n(1000))/1000
			xs[i] = x
			ys[i] = float64(rng.Uint32n(100000)) / 997
		}
		got, err := Linear(xs, ys, xs)
		if err != nil {
			t.Fatalf("n=%d: %s", n, err)
		}
		for i := range ys {
			if got[i] != ys[i] {
				t.Errorf("n=%d: out[%d]=%f; want exactly %f", n, i, got[i], ys[i])
			}
		}
	}
}

func TestTooFewSamples(t *testing.T) {
	for _, xs := range [][]float64{nil, {1.0}} {
		if _, err := New(xs); !errors.Is(err, ErrTooFewSamples) {
			t.Errorf("New(%v) err=%v; want ErrTooFewSamples", xs, err)
		}
	}
}

func TestRejectsUnsortedMasses(t *testing.T) {
	if _, err := New([]float64{1, 1, 2}); err == nil {
		t.Errorf("New accepted duplicate masses")
	}
	if _, err := New([]float64{2, 1}); err == nil {
		t.Errorf("New accepted descending masses")
	}
}

func TestApplyReusesResampler(t *testing.T) {
	r, err := New([]float64{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	targets := []float64{1.5, 2.5}
	out := make([]float64, 2)
	for band, ys := range [][]float64{{1, 2, 3}, {30, 20, 10}} {
		if _, err := r.Apply(ys, targets, out); err != nil {
			t.Fatalf("band %d: %s", band, err)
		}
		want := []float64{(ys[0] + ys[1]) / 2, (ys[1] + ys[2]) / 2}
		for i := range want {
			if math.Abs(out[i]-want[i]) > 1e-12 {
				t.Errorf("band %d: out[%d]=%f; want %f", band, i, out[i], want[i])
			}
		}
	}
	if _, err := r.Apply([]float64{1, 2}, targets, out); err == nil {
		t.Errorf("Apply accepted misaligned values")
	}
}
