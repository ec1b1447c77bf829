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
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mlnoga/isogrid/internal/calib"
	"github.com/mlnoga/isogrid/internal/rest"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind, artifact, chroot string
	var setuid int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve magnitude queries over HTTP",
		Long: `Loads a grid and answers magnitude queries via a REST API below /api/v1.
With --chroot and --setuid the process drops privileges after the grid is
loaded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.cfg
			if bind == "" {
				bind = cfg.Server.Bind
			}
			if artifact == "" {
				artifact = cfg.Server.Artifact
			}
			q, err := loadQuery(artifact, ctx.log)
			if err != nil {
				return err
			}
			if err := rest.MakeSandbox(chroot, setuid, ctx.log); err != nil {
				return err
			}

			if ctx.log.IsLevelEnabled(logrus.DebugLevel) {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}
			return rest.New(q, calib.New(cfg.Calibration), ctx.log).Run(bind)
		},
	}

	cmd.Flags().StringVarP(&bind, "bind", "b", "", "address and port to listen on (default from configuration)")
	cmd.Flags().StringVarP(&artifact, "artifact", "a", "", "grid file to serve (default from configuration)")
	cmd.Flags().StringVar(&chroot, "chroot", "", "change filesystem root to this directory after loading (requires root)")
	cmd.Flags().IntVar(&setuid, "setuid", -1, "switch to this user id after loading, unchanged if negative")
	return cmd
}
