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

package query

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/valyala/fastrand"

	"github.com/mlnoga/isogrid/internal/grid"
)

const epsilon = 1e-9

// Grid of the two-pair scenario: log-age 9.0 resampled from a three point
// track, log-age 9.3 without data
func scenarioArtifact() *grid.Artifact {
	a := grid.NewArtifact(grid.Axes{
		Mass:   []float64{0.5, 1.0, 1.5},
		LogAge: []float64{9.0, 9.3},
		FeH:    []float64{0.0},
	}, []string{"G"})
	copy(a.Row("G", 0, 0), []float64{5 - 0.1/0.6, 4.0, 4 - 0.5/0.6})
	return a
}

func TestScenario(t *testing.T) {
	q, err := New(scenarioArtifact())
	if err != nil {
		t.Fatal(err)
	}
	res, err := q.Magnitudes(1.0, math.Pow(10, 9.0), 0.0)
	if err != nil {
		t.Fatal(err)
	}
	if g := res["G"]; math.Abs(g-4.0) > epsilon {
		t.Errorf("G=%f; want 4.0", g)
	}

	res, err = q.Magnitudes(1.0, math.Pow(10, 9.3), 0.0)
	if err != nil {
		t.Fatal(err)
	}
	g, ok := res["G"]
	if !ok || !math.IsNaN(g) {
		t.Errorf("G=%f ok=%t; want NaN present", g, ok)
	}
}

func TestNodeHitsReturnStoredValues(t *testing.T) {
	a := grid.NewArtifact(grid.Axes{
		Mass:   []float64{0.6, 0.8, 1.1, 1.9, 2.5},
		LogAge: []float64{8.5, 9.0, 9.4},
		FeH:    []float64{-1, -0.2, 0.3},
	}, []string{"G", "K"})
	for b, d := range a.Data {
		for n := range d {
			if fastrand.Uint32n(5) == 0 {
				continue // leave some cells undefined
			}
			d[n] = float64(fastrand.Uint32n(20000))/1000 - 5
			if b == "K" {
				d[n] += 0.5
			}
		}
	}
	q, err := New(a)
	if err != nil {
		t.Fatal(err)
	}

	for n := 0; n < 200; n++ {
		i := int(fastrand.Uint32n(3))
		j := int(fastrand.Uint32n(3))
		k := int(fastrand.Uint32n(5))
		res := q.AtLogAge(a.Axes.Mass[k], a.Axes.LogAge[j], a.Axes.FeH[i])
		for _, b := range a.Bands {
			want := a.At(b, i, j, k)
			got := res[b]
			if math.IsNaN(want) != math.IsNaN(got) || (!math.IsNaN(want) && got != want) {
				t.Errorf("%s[%d,%d,%d]=%f; want %f", b, i, j, k, got, want)
			}
		}
	}
}

func TestTrilinear(t *testing.T) {
	a := grid.NewArtifact(grid.Axes{
		Mass:   []float64{1, 2},
		LogAge: []float64{9, 10},
		FeH:    []float64{0, 1},
	}, []string{"G"})
	// linear function is reproduced exactly
	f := func(m, la, feh float64) float64 { return 2*m + 3*la - feh }
	for i, feh := range a.Axes.FeH {
		for j, la := range a.Axes.LogAge {
			for k, m := range a.Axes.Mass {
				a.Data["G"][a.Index(i, j, k)] = f(m, la, feh)
			}
		}
	}
	q, _ := New(a)

	for n := 0; n < 100; n++ {
		m := 1 + float64(fastrand.Uint32n(1000))/1000
		la := 9 + float64(fastrand.Uint32n(1000))/1000
		feh := float64(fastrand.Uint32n(1000)) / 1000
		got := q.AtLogAge(m, la, feh)["G"]
		if want := f(m, la, feh); math.Abs(got-want) > epsilon {
			t.Errorf("G(%f,%f,%f)=%f; want %f", m, la, feh, got, want)
		}
	}
}

func TestNaNCornerWithWeight(t *testing.T) {
	q, _ := New(scenarioArtifact())
	// between log-age 9.0 and the undefined 9.3 row
	if g := q.AtLogAge(1.0, 9.15, 0)["G"]; !math.IsNaN(g) {
		t.Errorf("G=%f; want NaN", g)
	}
	// between mass nodes on the defined row
	g := q.AtLogAge(0.75, 9.0, 0)["G"]
	want := 0.5*(5-0.1/0.6) + 0.5*4.0
	if math.Abs(g-want) > epsilon {
		t.Errorf("G=%f; want %f", g, want)
	}
}

func TestNoExtrapolation(t *testing.T) {
	q, _ := New(scenarioArtifact())
	cases := []struct{ mass, logAge, feh float64 }{
		{0.49, 9.0, 0},
		{1.51, 9.0, 0},
		{1.0, 8.99, 0},
		{1.0, 9.31, 0},
		{1.0, 9.0, 0.01},
		{1.0, 9.0, -0.01},
		{math.NaN(), 9.0, 0},
	}
	for _, c := range cases {
		res := q.AtLogAge(c.mass, c.logAge, c.feh)
		if len(res) != 1 {
			t.Errorf("%v: %d bands; want 1", c, len(res))
		}
		for b, v := range res {
			if !math.IsNaN(v) {
				t.Errorf("%v: %s=%f; want NaN", c, b, v)
			}
		}
	}
}

func TestSnapToAxisEnds(t *testing.T) {
	q, _ := New(scenarioArtifact())
	got := q.AtLogAge(1.5+1e-12, 9.0-1e-12, 1e-12)["G"]
	if want := 4 - 0.5/0.6; math.Abs(got-want) > epsilon {
		t.Errorf("G=%f; want %f", got, want)
	}
}

func TestSnapToInteriorNodes(t *testing.T) {
	// only the 9.3 row is defined; log10(10**9.3) rounds below 9.3
	a := grid.NewArtifact(grid.Axes{
		Mass:   []float64{0.5, 1.0, 1.5},
		LogAge: []float64{9.0, 9.3, 9.6},
		FeH:    []float64{-0.5, 0.0, 0.3},
	}, []string{"G"})
	copy(a.Row("G", 1, 1), []float64{4.8, 4.0, 3.2})
	q, err := New(a)
	if err != nil {
		t.Fatal(err)
	}
	res, err := q.Magnitudes(1.0+1e-12, math.Pow(10, 9.3), -1e-12)
	if err != nil {
		t.Fatal(err)
	}
	if g := res["G"]; g != 4.0 {
		t.Errorf("G=%f; want 4.0", g)
	}
	if g := q.AtLogAge(0.5, 9.6-1e-10, 0.3+1e-10)["G"]; !math.IsNaN(g) {
		t.Errorf("undefined corner: G=%f; want NaN", g)
	}
}

func TestInvalidAge(t *testing.T) {
	q, _ := New(scenarioArtifact())
	for _, age := range []float64{0, -1e9, math.NaN(), math.Inf(1)} {
		_, err := q.Magnitudes(1.0, age, 0)
		var ie *InvalidQueryError
		if !errors.As(err, &ie) {
			t.Errorf("age=%g: err=%v; want *InvalidQueryError", age, err)
		}
	}
}

func TestNewRejectsInvalidArtifact(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Errorf("nil artifact accepted")
	}
	a := scenarioArtifact()
	a.Data["G"] = a.Data["G"][:2]
	if _, err := New(a); err == nil {
		t.Errorf("short band data accepted")
	}
}

func TestConcurrentQueries(t *testing.T) {
	q, _ := New(scenarioArtifact())
	wg := sync.WaitGroup{}
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 1000; n++ {
				if g := q.AtLogAge(1.0, 9.0, 0)["G"]; g != 4.0 {
					t.Errorf("G=%f; want 4.0", g)
					return
				}
			}
		}()
	}
	wg.Wait()
}
