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

package fits

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const blockSize int = 2880    // Block size of FITS header and data units
const HeaderLineSize int = 80 // Line size of a FITS header

var reParser *regexp.Regexp = compileRE() // Regexp parser for FITS header lines

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int64
	Floats   map[string]float64
	Strings  map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:    make(map[string]bool),
		Ints:     make(map[string]int64),
		Floats:   make(map[string]float64),
		Strings:  make(map[string]string),
		Comments: make([]string, 0),
		History:  make([]string, 0),
	}
}

func (h *Header) popInt(key string) (int64, error) {
	if val, ok := h.Ints[key]; ok {
		delete(h.Ints, key)
		return val, nil
	}
	return 0, fmt.Errorf("FITS header does not contain key %s", key)
}

// Writes the optional keys of the header in a stable order: strings, ints,
// floats, bools, each sorted by key, then comments and history
func (h *Header) writeKeys(w io.Writer) error {
	for _, k := range sortedKeys(h.Strings) {
		if err := writeString(w, k, h.Strings[k], ""); err != nil {
			return err
		}
	}
	for _, k := range sortedKeys(h.Ints) {
		writeInt(w, k, h.Ints[k], "")
	}
	for _, k := range sortedKeys(h.Floats) {
		writeFloat(w, k, h.Floats[k], "")
	}
	for _, k := range sortedKeys(h.Bools) {
		writeBool(w, k, h.Bools[k], "")
	}
	for _, c := range h.Comments {
		writeText(w, "COMMENT", c)
	}
	for _, c := range h.History {
		writeText(w, "HISTORY", c)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Writes a FITS header boolean value
func writeBool(w io.Writer, key string, value bool, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	if len(comment) > 47 {
		comment = comment[0:47]
	}
	v := "F"
	if value {
		v = "T"
	}
	fmt.Fprintf(w, "%-8s= %20s / %-47s", key, v, comment)
}

// Writes a FITS header integer value
func writeInt(w io.Writer, key string, value int64, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	if len(comment) > 47 {
		comment = comment[0:47]
	}
	fmt.Fprintf(w, "%-8s= %20d / %-47s", key, value, comment)
}

// Writes a FITS header float value. Always carries a decimal point or an
// exponent so it parses back as a float.
func writeFloat(w io.Writer, key string, value float64, comment string) {
	if len(key) > 8 {
		key = key[0:8]
	}
	if len(comment) > 47 {
		comment = comment[0:47]
	}
	v := strconv.FormatFloat(value, 'E', -1, 64)
	fmt.Fprintf(w, "%-8s= %20s / %-47s", key, v, comment)
}

// Writes a FITS header string value on a single card. Values with quotes or
// too long for one card are rejected.
func writeString(w io.Writer, key, value, comment string) error {
	if len(key) > 8 {
		key = key[0:8]
	}
	if strings.ContainsRune(value, '\'') {
		return fmt.Errorf("FITS string value for %s contains a quote: %q", key, value)
	}
	if len(value) > HeaderLineSize-12 {
		return fmt.Errorf("FITS string value for %s too long: %q", key, value)
	}
	if len(value) <= 18 {
		if len(comment) > 47 {
			comment = comment[0:47]
		}
		fmt.Fprintf(w, "%-8s= '%s'%s / %-47s", key, value, strings.Repeat(" ", 18-len(value)), comment)
		return nil
	}
	card := fmt.Sprintf("%-8s= '%s'", key, value)
	fmt.Fprintf(w, "%-80s", card)
	return nil
}

// Writes a COMMENT or HISTORY card
func writeText(w io.Writer, key, text string) {
	if len(text) > 72 {
		text = text[0:72]
	}
	fmt.Fprintf(w, "%-8s%-72s", key, text)
}

// Writes a FITS header end record
func writeEnd(w io.Writer) {
	fmt.Fprintf(w, "END%s", strings.Repeat(" ", 80-3))
}

// Reads header blocks until the END card. Returns io.EOF if the reader is
// exhausted before the first byte of the header.
func (h *Header) read(r io.Reader) error {
	buf := make([]byte, blockSize)

	for h.Length = 0; !h.End; {
		// read next header unit
		bytesRead, err := io.ReadFull(r, buf)
		if err != nil {
			if err == io.EOF && h.Length == 0 {
				return io.EOF
			}
			return fmt.Errorf("reading FITS header: %s", err.Error())
		}
		h.Length += bytesRead

		// parse all lines in this header unit
		for lineNo := 0; lineNo < blockSize/HeaderLineSize && !h.End; lineNo++ {
			line := buf[lineNo*HeaderLineSize : (lineNo+1)*HeaderLineSize]
			subValues := reParser.FindSubmatch(line)
			if subValues == nil {
				return fmt.Errorf("cannot parse FITS header line '%s'", string(line))
			}
			h.readLine(reParser.SubexpNames(), subValues)
		}
	}
	return nil
}

func (h *Header) readLine(subNames []string, subValues [][]byte) {
	key := ""
	// ignore index 0 which is the whole line
	for i := 1; i < len(subNames); i++ {
		if subValues[i] != nil && len(subNames[i]) == 1 {
			switch c := subNames[i][0]; c {
			case byte('E'): // end line
				h.End = true
			case byte('H'): // history line
				h.History = append(h.History, strings.TrimRight(string(subValues[i]), " "))
			case byte('C'): // comment line
				h.Comments = append(h.Comments, strings.TrimRight(string(subValues[i]), " "))
			case byte('k'): // key
				key = string(subValues[i])
			case byte('b'): // boolean
				if len(subValues[i]) > 0 {
					v := subValues[i][0]
					h.Bools[key] = v == byte('t') || v == byte('T')
				}
			case byte('i'): // int
				val, err := strconv.ParseInt(string(subValues[i]), 10, 64)
				if err == nil {
					h.Ints[key] = val
				}
			case byte('f'): // float
				val, err := strconv.ParseFloat(strings.Replace(string(subValues[i]), "D", "E", 1), 64)
				if err == nil {
					h.Floats[key] = val
				}
			case byte('s'): // string, trailing blanks are not significant
				h.Strings[key] = strings.TrimRight(string(subValues[i]), " ")
			case byte('c'): // comment
				// ignore value comments
			}
		}
	}
}

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white := "\\s+"
	whiteOpt := "\\s*"
	whiteLine := white

	rest := ".*"
	histLine := "HISTORY" + whiteOpt + "(?P<H>" + rest + ")"
	commLine := "COMMENT" + whiteOpt + "(?P<C>" + rest + ")"

	end := "(?P<E>END)"
	endLine := end + whiteOpt

	key := "(?P<k>[A-Z0-9_-]+)"
	equals := "="

	boo := "(?P<b>[TF])"
	inte := "(?P<i>[+-]?[0-9]+)"
	floa := "(?P<f>[+-]?(?:[0-9]*\\.[0-9]*(?:[ED][-+]?[0-9]+)?|[0-9]+[ED][-+]?[0-9]+))"
	stri := "'(?P<s>[^']*)'"
	val := "(?:" + boo + "|" + inte + "|" + floa + "|" + stri + ")"

	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + equals + whiteOpt + val + whiteOpt + commOpt

	lineRe := "^(?:" + whiteLine + "|" + histLine + "|" + commLine + "|" + keyLine + "|" + endLine + ")$"
	return regexp.MustCompile(lineRe)
}
