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
	"fmt"
	"math"
	"sort"
	"strings"
)

// Names of the three coordinate axes, as used in persisted artifacts and
// reserved against band names
const (
	AxisMass   = "masses"
	AxisLogAge = "logages"
	AxisFeH    = "fehs"
)

// The three coordinate axes of a magnitude grid. All strictly increasing.
type Axes struct {
	Mass   []float64 `json:"masses"`  // initial mass in solar masses
	LogAge []float64 `json:"logages"` // log10 of age in years
	FeH    []float64 `json:"fehs"`    // metallicity [M/H]
}

// Returns the grid shape as (len(FeH), len(LogAge), len(Mass))
func (a Axes) Shape() [3]int {
	return [3]int{len(a.FeH), len(a.LogAge), len(a.Mass)}
}

// Number of cells in one band grid
func (a Axes) Cells() int {
	s := a.Shape()
	return s[0] * s[1] * s[2]
}

// Checks that each axis is non-empty, finite and strictly increasing
func (a Axes) Validate() error {
	if err := ValidateAxis(AxisMass, a.Mass); err != nil {
		return err
	}
	if err := ValidateAxis(AxisLogAge, a.LogAge); err != nil {
		return err
	}
	return ValidateAxis(AxisFeH, a.FeH)
}

// Checks that the named axis is non-empty, finite and strictly increasing
func ValidateAxis(name string, axis []float64) error {
	if len(axis) == 0 {
		return fmt.Errorf("axis %s is empty", name)
	}
	for i, v := range axis {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("axis %s value %d is not finite: %g", name, i, v)
		}
		if i > 0 && !(v > axis[i-1]) {
			return fmt.Errorf("axis %s is not strictly increasing at index %d: %g <= %g", name, i, v, axis[i-1])
		}
	}
	return nil
}

// Deep copy of the axes
func (a Axes) Clone() Axes {
	return Axes{
		Mass:   append([]float64(nil), a.Mass...),
		LogAge: append([]float64(nil), a.LogAge...),
		FeH:    append([]float64(nil), a.FeH...),
	}
}

// A magnitude grid artifact: for each band a dense 3D array indexed
// [feh, logage, mass], stored flat with mass varying fastest. Undefined
// cells hold NaN. Treated as immutable once built.
type Artifact struct {
	Axes    Axes                 // coordinate axes shared by all bands
	Bands   []string             // band names in storage order
	Data    map[string][]float64 // per band data, len(Data[b])==Axes.Cells()
	PhotSys string               // photometric system the grid was built for
	BuildID string               // unique id of the build run
}

// Creates an artifact for the given axes and bands with all cells undefined.
// Axes are deep copied, bands are sorted.
func NewArtifact(axes Axes, bands []string) *Artifact {
	sorted := append([]string(nil), bands...)
	sort.Strings(sorted)
	a := &Artifact{
		Axes:  axes.Clone(),
		Bands: sorted,
		Data:  make(map[string][]float64, len(sorted)),
	}
	n := a.Axes.Cells()
	for _, b := range sorted {
		a.Data[b] = NaNs(n)
	}
	return a
}

// Returns a slice of n NaN values
func NaNs(n int) []float64 {
	s := make([]float64, n)
	nan := math.NaN()
	for i := range s {
		s[i] = nan
	}
	return s
}

// Flat index of cell [i,j,k]
func (a *Artifact) Index(i, j, k int) int {
	return (i*len(a.Axes.LogAge)+j)*len(a.Axes.Mass) + k
}

// Value of the given band at cell [i,j,k]
func (a *Artifact) At(band string, i, j, k int) float64 {
	return a.Data[band][a.Index(i, j, k)]
}

// Returns the mass row [i,j,:] of the given band. The slice aliases the
// underlying data.
func (a *Artifact) Row(band string, i, j int) []float64 {
	start := a.Index(i, j, 0)
	return a.Data[band][start : start+len(a.Axes.Mass)]
}

// Checks axes, band list and data shapes for consistency
func (a *Artifact) Validate() error {
	if err := a.Axes.Validate(); err != nil {
		return err
	}
	n := a.Axes.Cells()
	seen := make(map[string]bool, len(a.Bands))
	for _, b := range a.Bands {
		if seen[b] {
			return fmt.Errorf("duplicate band %s", b)
		}
		seen[b] = true
		d, ok := a.Data[b]
		if !ok {
			return fmt.Errorf("band %s has no data", b)
		}
		if len(d) != n {
			return fmt.Errorf("band %s has %d cells, axes require %d", b, len(d), n)
		}
	}
	if len(a.Data) != len(a.Bands) {
		return fmt.Errorf("artifact has data for %d bands but lists %d", len(a.Data), len(a.Bands))
	}
	return nil
}

// Returns true if the reserved axis name matches the given band, ignoring case
func IsReservedName(name string) bool {
	switch strings.ToLower(name) {
	case AxisMass, AxisLogAge, AxisFeH:
		return true
	}
	return false
}
