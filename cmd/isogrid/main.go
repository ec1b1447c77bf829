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

// Command isogrid builds, stores and queries PARSEC isochrone magnitude grids.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mlnoga/isogrid/internal/config"
	"github.com/mlnoga/isogrid/internal/logging"
)

const version = "0.3.0"

func main() {
	ctx := &commandContext{}
	if err := execute(ctx, newRootCommand(ctx)); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

// State shared by all subcommands, filled before a command runs
type commandContext struct {
	configPath string
	logLevel   string

	cfg      *config.Config
	log      *logrus.Logger
	closeLog func() error
}

// Loads the configuration and sets up logging. Flags override the file.
func (c *commandContext) setup() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	log, closer, err := logging.Setup(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	c.cfg, c.log, c.closeLog = cfg, log, closer
	return nil
}

// Flushes and closes the log file. Safe to call more than once.
func (c *commandContext) teardown() error {
	if c.closeLog == nil {
		return nil
	}
	closer := c.closeLog
	c.closeLog = nil
	return closer()
}

// Runs the command and closes the log afterwards, also when the command
// failed and cobra skipped its post-run hooks
func execute(ctx *commandContext, cmd *cobra.Command) error {
	err := cmd.Execute()
	if cerr := ctx.teardown(); err == nil {
		err = cerr
	}
	return err
}

func newRootCommand(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "isogrid",
		Short: "Build and query PARSEC isochrone magnitude grids",
		Long: `isogrid fetches PARSEC isochrones for a grid of ages and metallicities,
resamples them onto a fixed mass axis, stores the result as a FITS file and
interpolates band magnitudes from it.

Isogrid Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY. See "isogrid legal".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipConfigLoad"] == "true" {
				return nil
			}
			return ctx.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configPath, "config", "c", "", "configuration file path, built-in defaults if empty")
	flags.StringVarP(&ctx.logLevel, "log-level", "l", "", "log level (trace, debug, info, warn, error), overrides the configuration")

	rootCmd.AddCommand(
		newBuildCommand(ctx),
		newQueryCommand(ctx),
		newInfoCommand(ctx),
		newServeCommand(ctx),
		newConfigCommand(ctx),
		newVersionCommand(),
		newLegalCommand(),
	)
	return rootCmd
}

// Returns true if w is a terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
