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

package main

import (
	"fmt"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mlnoga/isogrid/internal/calib"
	"github.com/mlnoga/isogrid/internal/grid"
	"github.com/mlnoga/isogrid/internal/query"
	"github.com/mlnoga/isogrid/internal/store"
)

func newQueryCommand(ctx *commandContext) *cobra.Command {
	var artifact string
	var logAge, raw bool

	cmd := &cobra.Command{
		Use:   "query <mass> <age> <feh>",
		Short: "Interpolate band magnitudes from a grid",
		Long: `Interpolates the absolute magnitude of every band at the given initial mass
in solar masses, age in years and metallicity [M/H] in dex. Calibration
offsets from the configuration are added unless --raw is given. Coordinates
outside the grid yield NaN for all bands. Put negative metallicities after
"--", as in: isogrid query -- 1.0 1e9 -0.5`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			coords, err := parseCoords(args)
			if err != nil {
				return err
			}
			if artifact == "" {
				artifact = ctx.cfg.Server.Artifact
			}
			q, err := loadQuery(artifact, ctx.log)
			if err != nil {
				return err
			}

			var res query.Result
			if logAge {
				res = q.AtLogAge(coords[0], coords[1], coords[2])
			} else if res, err = q.Magnitudes(coords[0], coords[1], coords[2]); err != nil {
				return err
			}
			if !raw {
				res = calib.New(ctx.cfg.Calibration).Apply(res)
			}

			rows := make([][]string, 0, len(res))
			for _, b := range q.Bands() {
				rows = append(rows, []string{b, formatFloat(res[b])})
			}
			writeTable(cmd.OutOrStdout(), []string{"band", "mag"}, rows, []columnAlignment{alignLeft, alignRight})
			return nil
		},
	}

	cmd.Flags().StringVarP(&artifact, "artifact", "a", "", "grid file to query (default from configuration)")
	cmd.Flags().BoolVar(&logAge, "logage", false, "interpret the age argument as log10(age/yr)")
	cmd.Flags().BoolVar(&raw, "raw", false, "skip calibration offsets")
	return cmd
}

func parseCoords(args []string) ([]float64, error) {
	names := []string{"mass", "age", "feh"}
	coords := make([]float64, len(args))
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%s: %q is not a finite number", names[i], arg)
		}
		coords[i] = v
	}
	return coords, nil
}

func loadQuery(path string, log logrus.FieldLogger) (*query.Query, error) {
	log.Debugf("Loading grid %s", path)
	a, err := store.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "loading grid")
	}
	return query.New(a)
}

func loadArtifact(path string, log logrus.FieldLogger) (*grid.Artifact, error) {
	q, err := loadQuery(path, log)
	if err != nil {
		return nil, err
	}
	return q.Artifact(), nil
}
