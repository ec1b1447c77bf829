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
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mlnoga/isogrid/internal/build"
	"github.com/mlnoga/isogrid/internal/provider/parsec"
	"github.com/mlnoga/isogrid/internal/store"
)

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var output string
	var workers int
	var photSys string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Fetch isochrones and build a magnitude grid",
		Long: `Fetches one isochrone per (log-age, [M/H]) pair of the configured axes from
the CMD server, resamples every configured band onto the mass axis and saves
the grid. Pairs that fail are left undefined and listed at the end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.cfg
			if output == "" {
				output = cfg.Build.Output
			}
			if workers <= 0 {
				workers = cfg.Build.Workers
			}
			if photSys == "" {
				photSys = cfg.PhotSys
			}

			client := parsec.NewClient(cfg.Provider.URL)
			client.PhotSysTemplate = cfg.Provider.PhotSysTemplate
			client.MassColumn = cfg.Provider.MassColumn
			client.Retries = cfg.Provider.Retries
			client.Backoff = cfg.ProviderBackoff()
			client.HTTP.Timeout = cfg.ProviderTimeout()
			client.Log = ctx.log

			builder := build.New(client, build.Options{
				Bands:          cfg.Bands,
				PhotSys:        photSys,
				Workers:        workers,
				PairTimeout:    cfg.PairTimeout(),
				MemoryFraction: cfg.Build.MemoryFraction,
				Log:            ctx.log,
			})

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a, report, err := builder.Build(runCtx, cfg.GridAxes())
			if err != nil {
				return errors.Wrap(err, "building grid")
			}
			if err := store.Save(a, output); err != nil {
				return errors.Wrapf(err, "saving grid to %s", output)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Saved grid %s to %s: %d of %d pairs built in %v\n",
				a.BuildID, output, len(report.Pairs)-report.Failed, len(report.Pairs), report.Elapsed.Round(time.Millisecond))
			if failures := report.Failures(); len(failures) > 0 {
				rows := make([][]string, 0, len(failures))
				for _, p := range failures {
					rows = append(rows, []string{fmt.Sprintf("%g", p.LogAge), fmt.Sprintf("%g", p.FeH), p.Err.Error()})
				}
				writeTable(out, []string{"logage", "feh", "error"}, rows, []columnAlignment{alignRight, alignRight, alignLeft})
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "grid file to write, .gz and .zst are compressed (default from configuration)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent provider requests (default from configuration)")
	cmd.Flags().StringVar(&photSys, "photsys", "", "photometric system (default from configuration)")
	return cmd
}
