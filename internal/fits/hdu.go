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

// Package fits reads and writes multi-extension FITS files holding float64
// images.
package fits

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
)

// A FITS header data unit holding a float64 image. The first unit of a file
// is the primary HDU, all others are IMAGE extensions.
type HDU struct {
	Header Header    // optional keys, mandatory keys are derived from the fields below
	Naxisn []int     // axis dimensions, naxis1 first and fastest varying
	Data   []float64 // pixel data in FITS order
}

// Creates an image extension with the given name, dimensions and data
func NewImageHDU(name string, naxisn []int, data []float64) *HDU {
	h := &HDU{Header: NewHeader(), Naxisn: append([]int(nil), naxisn...), Data: data}
	if name != "" {
		h.Header.Strings["EXTNAME"] = name
	}
	return h
}

// Name of an extension, empty for unnamed units
func (h *HDU) Name() string {
	return h.Header.Strings["EXTNAME"]
}

// Number of pixels implied by the dimensions
func (h *HDU) Pixels() int {
	if len(h.Naxisn) == 0 {
		return 0
	}
	n := 1
	for _, d := range h.Naxisn {
		n *= d
	}
	return n
}

// Writes all units to the given writer. The first is written as the primary
// HDU. Data is stored as big-endian IEEE doubles, so NaN cells survive.
func Write(w io.Writer, hdus []*HDU) error {
	bw := bufio.NewWriterSize(w, 1<<20)
	for i, h := range hdus {
		if h.Pixels() != len(h.Data) {
			return fmt.Errorf("HDU %d %q: dimensions %v imply %d pixels, have %d", i, h.Name(), h.Naxisn, h.Pixels(), len(h.Data))
		}
		if err := h.writeHeader(bw, i == 0); err != nil {
			return fmt.Errorf("HDU %d %q: %s", i, h.Name(), err.Error())
		}
		if err := h.writeData(bw); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (h *HDU) writeHeader(w io.Writer, primary bool) error {
	sb := strings.Builder{}
	if primary {
		writeBool(&sb, "SIMPLE", true, "FITS standard 4.0")
	} else {
		if err := writeString(&sb, "XTENSION", "IMAGE", "Image extension"); err != nil {
			return err
		}
	}
	writeInt(&sb, "BITPIX", -64, "Bits per data value")
	writeInt(&sb, "NAXIS", int64(len(h.Naxisn)), "Number of axes")
	for i, d := range h.Naxisn {
		writeInt(&sb, fmt.Sprintf("NAXIS%d", i+1), int64(d), fmt.Sprintf("Axis %d dimension", i+1))
	}
	if primary {
		writeBool(&sb, "EXTEND", true, "Extensions may follow")
	} else {
		writeInt(&sb, "PCOUNT", 0, "No parameters")
		writeInt(&sb, "GCOUNT", 1, "One group")
	}

	opt := h.Header
	if opt.Strings == nil {
		opt = NewHeader()
	}
	if err := opt.writeKeys(&sb); err != nil {
		return err
	}
	writeEnd(&sb)

	// pad to block size with spaces
	if rem := sb.Len() % blockSize; rem != 0 {
		sb.WriteString(strings.Repeat(" ", blockSize-rem))
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func (h *HDU) writeData(w io.Writer) error {
	if len(h.Data) == 0 {
		return nil
	}
	buf := make([]byte, 8*len(h.Data))
	for i, v := range h.Data {
		binary.BigEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if rem := len(buf) % blockSize; rem != 0 {
		if _, err := w.Write(make([]byte, blockSize-rem)); err != nil {
			return err
		}
	}
	return nil
}

// Reads all units from the given reader until end of file. Mandatory keys are
// removed from the returned headers and captured in the unit fields.
func Read(r io.Reader) ([]*HDU, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	var hdus []*HDU
	for {
		h, err := readHDU(br, len(hdus) == 0)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("HDU %d: %s", len(hdus), err.Error())
		}
		hdus = append(hdus, h)
	}
	if len(hdus) == 0 {
		return nil, fmt.Errorf("no FITS header found")
	}
	return hdus, nil
}

func readHDU(r io.Reader, primary bool) (*HDU, error) {
	h := &HDU{Header: NewHeader()}
	if err := h.Header.read(r); err != nil {
		if err == io.EOF && primary {
			return nil, fmt.Errorf("empty file")
		}
		return nil, err
	}

	if primary {
		if !h.Header.Bools["SIMPLE"] {
			return nil, fmt.Errorf("not a FITS file, SIMPLE=T missing")
		}
		delete(h.Header.Bools, "SIMPLE")
		delete(h.Header.Bools, "EXTEND")
	} else {
		if x := h.Header.Strings["XTENSION"]; x != "IMAGE" {
			return nil, fmt.Errorf("unsupported extension type %q", x)
		}
		delete(h.Header.Strings, "XTENSION")
		delete(h.Header.Ints, "PCOUNT")
		delete(h.Header.Ints, "GCOUNT")
	}

	bitpix, err := h.Header.popInt("BITPIX")
	if err != nil {
		return nil, err
	}
	naxis, err := h.Header.popInt("NAXIS")
	if err != nil {
		return nil, err
	}
	if naxis < 0 || naxis > 999 {
		return nil, fmt.Errorf("invalid NAXIS=%d", naxis)
	}
	h.Naxisn = make([]int, naxis)
	for i := range h.Naxisn {
		d, err := h.Header.popInt(fmt.Sprintf("NAXIS%d", i+1))
		if err != nil {
			return nil, err
		}
		if d < 0 {
			return nil, fmt.Errorf("invalid NAXIS%d=%d", i+1, d)
		}
		h.Naxisn[i] = int(d)
	}

	pixels, err := pixelCount(h.Naxisn)
	if err != nil {
		return nil, err
	}
	if pixels == 0 {
		return h, nil
	}
	if bitpix != -64 && bitpix != -32 {
		return nil, fmt.Errorf("unsupported BITPIX=%d, want -64 or -32", bitpix)
	}
	if err := h.readData(r, pixels, int(bitpix)); err != nil {
		return nil, err
	}
	return h, nil
}

// Largest number of pixels accepted in one unit
const MaxPixels = 1 << 30

// Number of pixels implied by the dimensions of a unit being read. Rejects
// products that overflow or exceed MaxPixels.
func pixelCount(naxisn []int) (int, error) {
	if len(naxisn) == 0 {
		return 0, nil
	}
	n := 1
	for i, d := range naxisn {
		if d == 0 {
			return 0, nil
		}
		if d > MaxPixels/n {
			return 0, fmt.Errorf("dimensions %v exceed %d pixels at NAXIS%d", naxisn, MaxPixels, i+1)
		}
		n *= d
	}
	return n, nil
}

// Data is read in chunks of this many bytes, so a header announcing more
// data than the file holds fails before allocating all of it
const readChunk = 1 << 20

func (h *HDU) readData(r io.Reader, pixels, bitpix int) error {
	width := -bitpix / 8
	size := pixels * width
	buf := make([]byte, min(size, readChunk))
	h.Data = make([]float64, 0, min(pixels, readChunk/width))
	for read := 0; read < size; {
		chunk := buf[:min(size-read, len(buf))]
		if _, err := io.ReadFull(r, chunk); err != nil {
			return fmt.Errorf("reading %d data bytes at offset %d: %s", size, read, err.Error())
		}
		for i := 0; i < len(chunk); i += width {
			if width == 8 {
				h.Data = append(h.Data, math.Float64frombits(binary.BigEndian.Uint64(chunk[i:])))
			} else {
				h.Data = append(h.Data, float64(math.Float32frombits(binary.BigEndian.Uint32(chunk[i:]))))
			}
		}
		read += len(chunk)
	}

	// skip padding, tolerate a truncated final block
	if rem := size % blockSize; rem != 0 {
		pad := int64(blockSize - rem)
		if _, err := io.CopyN(io.Discard, r, pad); err != nil && err != io.EOF {
			return fmt.Errorf("skipping data padding: %s", err.Error())
		}
	}
	return nil
}
