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
	"strings"

	"github.com/spf13/cobra"
)

func newInfoCommand(ctx *commandContext) *cobra.Command {
	var artifact string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Describe a grid file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if artifact == "" {
				artifact = ctx.cfg.Server.Artifact
			}
			a, err := loadArtifact(artifact, ctx.log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Grid %s\nPhotometric system: %s\nBuild: %s\n\n", artifact, a.PhotSys, a.BuildID)

			axisRows := [][]string{
				axisRow("mass", a.Axes.Mass),
				axisRow("logage", a.Axes.LogAge),
				axisRow("feh", a.Axes.FeH),
			}
			writeTable(out, []string{"axis", "nodes", "min", "max", "values"}, axisRows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft})
			fmt.Fprintln(out)

			bandRows := make([][]string, 0, len(a.Bands))
			for _, b := range a.Bands {
				bandRows = append(bandRows, []string{
					b,
					fmt.Sprintf("%d", a.RowsCovered(b)),
					fmt.Sprintf("%.1f%%", 100*a.Coverage(b)),
				})
			}
			writeTable(out, []string{"band", "rows", "coverage"}, bandRows,
				[]columnAlignment{alignLeft, alignRight, alignRight})
			return nil
		},
	}

	cmd.Flags().StringVarP(&artifact, "artifact", "a", "", "grid file to describe (default from configuration)")
	return cmd
}

// Lists at most this many node values per axis
const maxListedNodes = 8

func axisRow(name string, axis []float64) []string {
	vals := make([]string, 0, maxListedNodes+1)
	for i, v := range axis {
		if i == maxListedNodes {
			vals = append(vals, "...")
			break
		}
		vals = append(vals, fmt.Sprintf("%g", v))
	}
	return []string{
		name,
		fmt.Sprintf("%d", len(axis)),
		fmt.Sprintf("%g", axis[0]),
		fmt.Sprintf("%g", axis[len(axis)-1]),
		strings.Join(vals, " "),
	}
}
