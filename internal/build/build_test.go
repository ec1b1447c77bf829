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

package build

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mlnoga/isogrid/internal/grid"
	"github.com/mlnoga/isogrid/internal/provider"
	"github.com/mlnoga/isogrid/internal/resample"
	"github.com/mlnoga/isogrid/internal/track"
)

const epsilon = 1e-9

func scenarioProvider() provider.Provider {
	return provider.Func(func(ctx context.Context, logAge, feh float64, photSys string) (*track.Track, error) {
		t := track.New(feh, logAge)
		if logAge == 9.0 {
			t.Mass = []float64{0.4, 1.0, 1.6}
			t.Columns["Gmag"] = []float64{5.0, 4.0, 3.0}
		}
		return t, nil
	})
}

func scenarioAxes() grid.Axes {
	return grid.Axes{
		Mass:   []float64{0.5, 1.0, 1.5},
		LogAge: []float64{9.0, 9.3},
		FeH:    []float64{0.0},
	}
}

func TestScenario(t *testing.T) {
	b := New(scenarioProvider(), Options{Bands: map[string]string{"G": "Gmag"}, PhotSys: "gaiaEDR3"})
	a, report, err := b.Build(context.Background(), scenarioAxes())
	if err != nil {
		t.Fatalf("build: %s", err)
	}

	want := []float64{5 - 0.1/0.6, 4.0, 4 - 0.5/0.6}
	for k, w := range want {
		if got := a.At("G", 0, 0, k); math.Abs(got-w) > epsilon {
			t.Errorf("G[0,0,%d]=%f; want %f", k, got, w)
		}
	}
	for k := range want {
		if got := a.At("G", 0, 1, k); !math.IsNaN(got) {
			t.Errorf("G[0,1,%d]=%f; want NaN", k, got)
		}
	}

	if a.PhotSys != "gaiaEDR3" || a.BuildID == "" {
		t.Errorf("photsys=%q build=%q", a.PhotSys, a.BuildID)
	}
	if len(report.Pairs) != 2 || report.Failed != 1 {
		t.Fatalf("pairs=%d failed=%d; want 2, 1", len(report.Pairs), report.Failed)
	}
	var empty *track.EmptyTrackError
	if !errors.As(report.Pairs[1].Err, &empty) {
		t.Errorf("pair 1 err=%v; want *EmptyTrackError", report.Pairs[1].Err)
	}
	if got := report.Coverage["G"]; math.Abs(got-0.5) > epsilon {
		t.Errorf("coverage=%f; want 0.5", got)
	}
}

func TestFailuresAreIsolated(t *testing.T) {
	axes := grid.Axes{
		Mass:   []float64{1, 2},
		LogAge: []float64{8, 9, 10},
		FeH:    []float64{-1, 0},
	}
	p := provider.Func(func(ctx context.Context, logAge, feh float64, photSys string) (*track.Track, error) {
		switch {
		case logAge == 9 && feh == -1:
			return nil, fmt.Errorf("server unavailable")
		case logAge == 10 && feh == 0:
			panic("provider bug")
		}
		t := track.New(feh, logAge)
		t.Mass = []float64{0, 3}
		t.Columns["Gmag"] = []float64{logAge, logAge}
		return t, nil
	})

	a, report, err := New(p, Options{Bands: map[string]string{"G": "Gmag"}}).Build(context.Background(), axes)
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	if report.Failed != 2 {
		t.Errorf("failed=%d; want 2", report.Failed)
	}
	for i := range axes.FeH {
		for j, la := range axes.LogAge {
			failed := (i == 0 && j == 1) || (i == 1 && j == 2)
			for k := range axes.Mass {
				got := a.At("G", i, j, k)
				if failed && !math.IsNaN(got) {
					t.Errorf("G[%d,%d,%d]=%f; want NaN", i, j, k, got)
				}
				if !failed && math.Abs(got-la) > epsilon {
					t.Errorf("G[%d,%d,%d]=%f; want %f", i, j, k, got, la)
				}
			}
			if p := report.Pairs[i*len(axes.LogAge)+j]; p.OK() == failed || p.FeHIndex != i || p.LogAgeIndex != j {
				t.Errorf("pair %d,%d: %+v", i, j, p)
			}
		}
	}
	if fs := report.Failures(); len(fs) != 2 || fs[0].FeHIndex != 0 || fs[1].FeHIndex != 1 {
		t.Errorf("failures=%+v", fs)
	}
}

func TestPairTimeout(t *testing.T) {
	p := provider.Func(func(ctx context.Context, logAge, feh float64, photSys string) (*track.Track, error) {
		if logAge == 9.3 {
			time.Sleep(2 * time.Second) // ignores its context
		}
		t := track.New(feh, logAge)
		t.Mass = []float64{0.4, 1.6}
		t.Columns["Gmag"] = []float64{5, 3}
		return t, nil
	})
	b := New(p, Options{Bands: map[string]string{"G": "Gmag"}, PairTimeout: 50 * time.Millisecond})
	start := time.Now()
	a, report, err := b.Build(context.Background(), scenarioAxes())
	if err != nil {
		t.Fatalf("build: %s", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("build took %v; timeout not enforced", elapsed)
	}
	if report.Failed != 1 || !errors.Is(report.Pairs[1].Err, context.DeadlineExceeded) {
		t.Errorf("failed=%d err=%v; want deadline exceeded", report.Failed, report.Pairs[1].Err)
	}
	if math.IsNaN(a.At("G", 0, 0, 1)) {
		t.Errorf("G[0,0,1] undefined; want data from the fast pair")
	}
}

func TestDeterministicAcrossWorkers(t *testing.T) {
	axes := grid.Axes{
		Mass:   []float64{0.5, 0.8, 1.2, 2.0},
		LogAge: []float64{8.0, 8.5, 9.0, 9.5},
		FeH:    []float64{-1.0, -0.5, 0.0},
	}
	var calls int32
	p := provider.Func(func(ctx context.Context, logAge, feh float64, photSys string) (*track.Track, error) {
		atomic.AddInt32(&calls, 1)
		t := track.New(feh, logAge)
		t.Mass = []float64{2.5, 0.3, 1.0}
		t.Columns["Gmag"] = []float64{1 + logAge, 8 + feh, 4}
		t.Columns["G_RPmag"] = []float64{logAge, 7 + feh, 3.5}
		return t, nil
	})
	bands := map[string]string{"G": "Gmag", "RP": "G_RPmag"}

	ref, _, err := New(p, Options{Bands: bands, Workers: 1}).Build(context.Background(), axes)
	if err != nil {
		t.Fatal(err)
	}
	for _, workers := range []int{2, 5, 16} {
		a, _, err := New(p, Options{Bands: bands, Workers: workers}).Build(context.Background(), axes)
		if err != nil {
			t.Fatal(err)
		}
		a.BuildID = ref.BuildID
		if !grid.Equal(ref, a) {
			t.Errorf("workers=%d: grid differs from sequential build", workers)
		}
	}
	if want := int32(4 * len(axes.FeH) * len(axes.LogAge)); calls != want {
		t.Errorf("provider calls=%d; want %d", calls, want)
	}
}

func TestMissingColumn(t *testing.T) {
	b := New(scenarioProvider(), Options{Bands: map[string]string{"G": "Gmag", "J": "Jmag"}})
	a, report, err := b.Build(context.Background(), scenarioAxes())
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Bands) != 2 || a.Bands[0] != "G" || a.Bands[1] != "J" {
		t.Errorf("bands=%v; want [G J]", a.Bands)
	}
	if a.Coverage("J") != 0 {
		t.Errorf("J coverage=%f; want 0", a.Coverage("J"))
	}
	p := report.Pairs[0]
	if !p.OK() || len(p.MissingColumns) != 1 || p.MissingColumns[0] != "J" {
		t.Errorf("pair 0: %+v", p)
	}
}

func TestSingleRowTrack(t *testing.T) {
	p := provider.Func(func(ctx context.Context, logAge, feh float64, photSys string) (*track.Track, error) {
		t := track.New(feh, logAge)
		t.Mass = []float64{1.0}
		t.Columns["Gmag"] = []float64{4}
		return t, nil
	})
	a, report, err := New(p, Options{Bands: map[string]string{"G": "Gmag"}}).Build(context.Background(), scenarioAxes())
	if err != nil {
		t.Fatal(err)
	}
	if a.Coverage("G") != 0 {
		t.Errorf("coverage=%f; want 0", a.Coverage("G"))
	}
	if report.Pairs[0].Rows != 1 {
		t.Errorf("rows=%d; want 1", report.Pairs[0].Rows)
	}
	if !errors.Is(report.Pairs[0].Err, resample.ErrTooFewSamples) {
		t.Errorf("err=%v; want ErrTooFewSamples", report.Pairs[0].Err)
	}
	if report.Failed != len(report.Pairs) || len(report.Failures()) != len(report.Pairs) {
		t.Errorf("failed=%d of %d pairs; want all", report.Failed, len(report.Pairs))
	}
}

func TestStructuralErrors(t *testing.T) {
	ctx := context.Background()
	if _, _, err := New(scenarioProvider(), Options{}).Build(ctx, scenarioAxes()); err == nil {
		t.Errorf("no bands: build succeeded")
	}
	bad := scenarioAxes()
	bad.Mass = []float64{1.0, 0.5}
	if _, _, err := New(scenarioProvider(), Options{Bands: map[string]string{"G": "Gmag"}}).Build(ctx, bad); err == nil {
		t.Errorf("unsorted axis: build succeeded")
	}
	if _, _, err := New(scenarioProvider(), Options{Bands: map[string]string{"Masses": "Gmag"}}).Build(ctx, scenarioAxes()); err == nil {
		t.Errorf("reserved band name: build succeeded")
	}
	opts := Options{Bands: map[string]string{"G": "Gmag"}, MemoryFraction: 1e-15}
	if _, _, err := New(scenarioProvider(), opts).Build(ctx, scenarioAxes()); err == nil {
		t.Errorf("memory limit: build succeeded")
	}
}

func TestCancelledBuild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := New(scenarioProvider(), Options{Bands: map[string]string{"G": "Gmag"}}).Build(ctx, scenarioAxes())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err=%v; want context.Canceled", err)
	}
}
