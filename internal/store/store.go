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

// Package store persists magnitude grids as multi-extension FITS files.
package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/mlnoga/isogrid/internal/fits"
	"github.com/mlnoga/isogrid/internal/grid"
)

// Extension names of the coordinate axes
const (
	ExtMasses  = "MASSES"
	ExtLogAges = "LOGAGES"
	ExtFeHs    = "FEHS"
)

// Value of the CREATOR key in the primary header
var Creator = "isogrid"

// Indicates a persisted grid that cannot be turned back into a valid artifact
type CorruptArtifactError struct {
	Path string // file name, empty when reading from a stream
	Err  error
}

func (e *CorruptArtifactError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("corrupt artifact: %s", e.Err.Error())
	}
	return fmt.Sprintf("corrupt artifact %s: %s", e.Path, e.Err.Error())
}

func (e *CorruptArtifactError) Unwrap() error { return e.Err }

func corrupt(format string, args ...interface{}) error {
	return &CorruptArtifactError{Err: fmt.Errorf(format, args...)}
}

// Compression applied to a file, chosen by its name suffix
type compression int

const (
	compressNone compression = iota
	compressGzip
	compressZstd
)

func compressionOf(path string) compression {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".gz"), strings.HasSuffix(lower, ".gzip"):
		return compressGzip
	case strings.HasSuffix(lower, ".zst"):
		return compressZstd
	}
	return compressNone
}

// Writes the artifact to the given file. The file is written to a temporary
// name in the same directory and renamed once complete, while holding an
// exclusive lock on path+".lock". Names ending in .gz or .gzip are gzip
// compressed, names ending in .zst are zstd compressed.
func Save(a *grid.Artifact, path string) (err error) {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", path, err)
	}
	defer lock.Unlock()

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".tmp*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = writeCompressed(tmp, a, compressionOf(path)); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeCompressed(w io.Writer, a *grid.Artifact, c compression) error {
	switch c {
	case compressGzip:
		zw := gzip.NewWriter(w)
		if err := Write(zw, a); err != nil {
			return err
		}
		return zw.Close()
	case compressZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if err := Write(zw, a); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	}
	return Write(w, a)
}

// Reads an artifact from the given file, decompressing by name suffix. Holds
// a shared lock on path+".lock" while reading.
func Load(path string) (*grid.Artifact, error) {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	defer lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	switch compressionOf(path) {
	case compressGzip:
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, &CorruptArtifactError{Path: path, Err: err}
		}
		defer zr.Close()
		r = zr
	case compressZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, &CorruptArtifactError{Path: path, Err: err}
		}
		defer zr.Close()
		r = zr
	}

	a, err := Read(r)
	if ce, ok := err.(*CorruptArtifactError); ok {
		ce.Path = path
	}
	return a, err
}

// Writes the artifact as an uncompressed FITS stream
func Write(w io.Writer, a *grid.Artifact) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("refusing to write invalid artifact: %w", err)
	}

	primary := &fits.HDU{Header: fits.NewHeader()}
	primary.Header.Strings["PHOTSYS"] = a.PhotSys
	primary.Header.Strings["BUILDID"] = a.BuildID
	primary.Header.Strings["CREATOR"] = Creator
	primary.Header.Ints["NBANDS"] = int64(len(a.Bands))

	hdus := []*fits.HDU{
		primary,
		fits.NewImageHDU(ExtMasses, []int{len(a.Axes.Mass)}, a.Axes.Mass),
		fits.NewImageHDU(ExtLogAges, []int{len(a.Axes.LogAge)}, a.Axes.LogAge),
		fits.NewImageHDU(ExtFeHs, []int{len(a.Axes.FeH)}, a.Axes.FeH),
	}
	shape := []int{len(a.Axes.Mass), len(a.Axes.LogAge), len(a.Axes.FeH)}
	for _, b := range a.Bands {
		h := fits.NewImageHDU(b, shape, a.Data[b])
		h.Header.Strings["BANDNAME"] = b
		hdus = append(hdus, h)
	}
	return fits.Write(w, hdus)
}

// Reads an artifact from an uncompressed FITS stream. Bands keep the order
// of their extensions. Any structural problem is returned as a
// *CorruptArtifactError.
func Read(r io.Reader) (*grid.Artifact, error) {
	hdus, err := fits.Read(r)
	if err != nil {
		return nil, &CorruptArtifactError{Err: err}
	}

	primary := hdus[0].Header
	a := &grid.Artifact{
		PhotSys: primary.Strings["PHOTSYS"],
		BuildID: primary.Strings["BUILDID"],
		Data:    make(map[string][]float64),
	}

	axes := map[string]*[]float64{ExtMasses: &a.Axes.Mass, ExtLogAges: &a.Axes.LogAge, ExtFeHs: &a.Axes.FeH}
	var bandHDUs []*fits.HDU
	for _, h := range hdus[1:] {
		if band, ok := h.Header.Strings["BANDNAME"]; ok {
			bandHDUs = append(bandHDUs, h)
			if _, dup := a.Data[band]; dup {
				return nil, corrupt("duplicate band %s", band)
			}
			a.Data[band] = h.Data
			a.Bands = append(a.Bands, band)
			continue
		}
		dst, ok := axes[h.Name()]
		if !ok {
			continue // unknown extension
		}
		if *dst != nil {
			return nil, corrupt("duplicate axis extension %s", h.Name())
		}
		if len(h.Naxisn) != 1 {
			return nil, corrupt("axis extension %s has %d dimensions, want 1", h.Name(), len(h.Naxisn))
		}
		*dst = h.Data
	}

	for _, name := range []string{ExtMasses, ExtLogAges, ExtFeHs} {
		if *axes[name] == nil {
			return nil, corrupt("missing axis extension %s", name)
		}
	}
	if err := a.Axes.Validate(); err != nil {
		return nil, corrupt("%s", err.Error())
	}

	want := []int{len(a.Axes.Mass), len(a.Axes.LogAge), len(a.Axes.FeH)}
	for _, h := range bandHDUs {
		if !slices.Equal(h.Naxisn, want) {
			return nil, corrupt("band %s has shape %v, axes require %v", h.Header.Strings["BANDNAME"], h.Naxisn, want)
		}
	}
	if n, ok := primary.Ints["NBANDS"]; ok && int(n) != len(a.Bands) {
		return nil, corrupt("header lists %d bands, file holds %d", n, len(a.Bands))
	}
	if err := a.Validate(); err != nil {
		return nil, corrupt("%s", err.Error())
	}
	return a, nil
}
