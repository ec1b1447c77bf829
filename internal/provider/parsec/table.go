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

package parsec

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/mlnoga/isogrid/internal/track"
)

// Default name of the initial mass column in CMD output tables
const DefaultMassColumn = "Mini"

// Parses a whitespace separated CMD isochrone table. Lines starting with '#'
// are comments; the last comment line before the first data row names the
// columns. Values that do not parse as numbers are stored as NaN.
func ParseTable(r io.Reader, massColumn string, feh, logAge float64) (*track.Track, error) {
	t := track.New(feh, logAge)
	var header []string
	var lastComment []string
	massIndex := -1

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if fields := strings.Fields(strings.TrimLeft(line, "#")); len(fields) > 0 {
				lastComment = fields
			}
			continue
		}

		if header == nil {
			if lastComment == nil {
				return nil, errors.Errorf("line %d: data before column header", lineNo)
			}
			header = lastComment
			for i, name := range header {
				if name == massColumn {
					massIndex = i
				} else {
					t.Columns[name] = nil
				}
			}
			if massIndex < 0 {
				return nil, errors.Errorf("mass column %s missing from header %v", massColumn, header)
			}
		}

		fields := strings.Fields(line)
		if len(fields) != len(header) {
			return nil, errors.Errorf("line %d: %d fields, header has %d", lineNo, len(fields), len(header))
		}
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				v = math.NaN()
			}
			if i == massIndex {
				t.Mass = append(t.Mass, v)
			} else {
				t.Columns[header[i]] = append(t.Columns[header[i]], v)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading isochrone table")
	}
	return t, nil
}
