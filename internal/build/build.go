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

// Package build assembles magnitude grids from per-pair isochrone tracks.
package build

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
	"github.com/sirupsen/logrus"

	"github.com/mlnoga/isogrid/internal/grid"
	"github.com/mlnoga/isogrid/internal/provider"
	"github.com/mlnoga/isogrid/internal/resample"
	"github.com/mlnoga/isogrid/internal/track"
)

// Build settings
type Options struct {
	Bands          map[string]string  // band name to provider column name
	PhotSys        string             // photometric system requested from the provider
	Workers        int                // pairs fetched concurrently, 1 if <=0
	PairTimeout    time.Duration      // limit per provider call, none if <=0
	MemoryFraction float64            // share of physical memory the grid may use, unchecked if <=0
	Log            logrus.FieldLogger // progress and per-pair failures, discarded if nil
}

// Outcome of one (metallicity, log-age) pair
type PairResult struct {
	FeHIndex       int
	LogAgeIndex    int
	FeH            float64
	LogAge         float64
	Rows           int      // track rows after normalization
	Err            error    // nil on success; the row is undefined for all bands otherwise
	MissingColumns []string // bands whose column the track did not carry, sorted
}

// Returns true if the pair contributed data
func (p PairResult) OK() bool { return p.Err == nil }

// Summary of a build run
type Report struct {
	Pairs    []PairResult       // in index order, metallicity outer, log-age inner
	Failed   int                // number of pairs with an error
	Coverage map[string]float64 // fraction of defined cells per band
	Elapsed  time.Duration
}

// Failed pairs in index order
func (r *Report) Failures() []PairResult {
	var fs []PairResult
	for _, p := range r.Pairs {
		if !p.OK() {
			fs = append(fs, p)
		}
	}
	return fs
}

// Builds grids from a provider
type Builder struct {
	provider provider.Provider
	opts     Options
	bands    []string // sorted band names
}

// Creates a builder for the given provider and options
func New(p provider.Provider, opts Options) *Builder {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Log == nil {
		l := logrus.New()
		l.Out = io.Discard
		opts.Log = l
	}
	bands := make([]string, 0, len(opts.Bands))
	for b := range opts.Bands {
		bands = append(bands, b)
	}
	sort.Strings(bands)
	return &Builder{provider: p, opts: opts, bands: bands}
}

// Fetches one track per (metallicity, log-age) pair of the given axes and
// resamples every configured band onto the mass axis. Pair failures leave
// the pair's row undefined and are recorded in the report. Only structural
// problems and cancellation of ctx are returned as errors.
func (b *Builder) Build(ctx context.Context, axes grid.Axes) (*grid.Artifact, *Report, error) {
	start := time.Now()
	if err := axes.Validate(); err != nil {
		return nil, nil, err
	}
	if len(b.bands) == 0 {
		return nil, nil, fmt.Errorf("no bands configured")
	}
	for _, band := range b.bands {
		if grid.IsReservedName(band) {
			return nil, nil, fmt.Errorf("band name %s collides with an axis name", band)
		}
	}
	if err := b.checkMemory(axes); err != nil {
		return nil, nil, err
	}

	a := grid.NewArtifact(axes, b.bands)
	a.PhotSys = b.opts.PhotSys
	a.BuildID = uuid.NewString()

	nFeH, nAge := len(axes.FeH), len(axes.LogAge)
	b.opts.Log.WithFields(logrus.Fields{
		"build":   a.BuildID,
		"pairs":   nFeH * nAge,
		"masses":  len(axes.Mass),
		"bands":   len(b.bands),
		"workers": b.opts.Workers,
	}).Infof("Building grid for %s on %s with %d cores", a.PhotSys, cpuid.CPU.BrandName, runtime.NumCPU())

	results := make([]PairResult, nFeH*nAge)
	limiter := make(chan bool, b.opts.Workers)
	for i := 0; i < nFeH; i++ {
		for j := 0; j < nAge; j++ {
			limiter <- true
			go func(i, j int) {
				defer func() { <-limiter }()
				results[i*nAge+j] = b.buildPair(ctx, a, i, j)
			}(i, j)
		}
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}

	report := &Report{Pairs: results, Coverage: make(map[string]float64, len(b.bands))}
	for _, p := range results {
		if !p.OK() {
			report.Failed++
		}
	}
	for _, band := range b.bands {
		report.Coverage[band] = a.Coverage(band)
	}
	report.Elapsed = time.Since(start)
	b.opts.Log.WithFields(logrus.Fields{
		"build":  a.BuildID,
		"failed": report.Failed,
	}).Infof("Built %d of %d pairs in %v", len(results)-report.Failed, len(results), report.Elapsed)

	if err := ctx.Err(); err != nil {
		return a, report, fmt.Errorf("build interrupted: %w", err)
	}
	return a, report, nil
}

// Rejects grids larger than the configured share of physical memory
func (b *Builder) checkMemory(axes grid.Axes) error {
	if b.opts.MemoryFraction <= 0 {
		return nil
	}
	total := memory.TotalMemory()
	if total == 0 {
		return nil // unknown
	}
	need := uint64(axes.Cells()) * uint64(len(b.bands)) * 8
	limit := uint64(float64(total) * b.opts.MemoryFraction)
	if need > limit {
		return fmt.Errorf("grid needs %d MB, limit is %d MB of %d MB physical memory",
			need/1024/1024, limit/1024/1024, total/1024/1024)
	}
	return nil
}

// Fetches, normalizes and resamples one pair, then writes its rows. Rows are
// disjoint across pairs, so concurrent calls need no locking.
func (b *Builder) buildPair(ctx context.Context, a *grid.Artifact, i, j int) PairResult {
	res := PairResult{FeHIndex: i, LogAgeIndex: j, FeH: a.Axes.FeH[i], LogAge: a.Axes.LogAge[j]}
	log := b.opts.Log.WithFields(logrus.Fields{"feh": res.FeH, "logage": res.LogAge})

	t, err := b.fetch(ctx, res.LogAge, res.FeH)
	if err == nil {
		err = t.Normalize()
	}
	if err != nil {
		res.Err = err
		log.Warnf("Skipping pair: %s", err)
		return res
	}
	res.Rows = t.Len()
	if t.Len() < 2 {
		res.Err = fmt.Errorf("track has %d rows: %w", t.Len(), resample.ErrTooFewSamples)
		log.Warnf("Skipping pair: %s", res.Err)
		return res
	}

	r, err := resample.New(t.Mass)
	if err != nil {
		res.Err = err
		log.Warnf("Skipping pair: %s", err)
		return res
	}
	rows := make(map[string][]float64, len(b.bands))
	for _, band := range b.bands {
		ys, ok := t.Column(b.opts.Bands[band])
		if !ok {
			res.MissingColumns = append(res.MissingColumns, band)
			continue
		}
		out, err := r.Apply(ys, a.Axes.Mass, nil)
		if err != nil {
			res.Err = err
			log.Warnf("Skipping pair: band %s: %s", band, err)
			return res
		}
		rows[band] = out
	}
	if len(res.MissingColumns) > 0 {
		log.Warnf("Track lacks columns for bands %v", res.MissingColumns)
	}

	for band, out := range rows {
		copy(a.Row(band, i, j), out)
	}
	log.Debugf("Resampled %d rows", t.Len())
	return res
}

// Calls the provider under the per-pair timeout. A panicking provider and a
// provider that ignores its deadline both count as pair failures.
func (b *Builder) fetch(ctx context.Context, logAge, feh float64) (*track.Track, error) {
	if b.opts.PairTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.PairTimeout)
		defer cancel()
	}

	type fetched struct {
		t   *track.Track
		err error
	}
	done := make(chan fetched, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetched{nil, fmt.Errorf("provider panic: %v", r)}
			}
		}()
		t, err := b.provider.FetchTrack(ctx, logAge, feh, b.opts.PhotSys)
		if err == nil && t == nil {
			err = fmt.Errorf("provider returned no track")
		}
		done <- fetched{t, err}
	}()

	select {
	case f := <-done:
		return f.t, f.err
	case <-ctx.Done():
		return nil, fmt.Errorf("fetching track: %w", ctx.Err())
	}
}
