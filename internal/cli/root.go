// Package cli implements the Routine Minder command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/routine-minder/minder/internal/daemon"
	"github.com/routine-minder/minder/internal/logger"
)

// app carries state shared by every subcommand of one invocation.
type app struct {
	cfg     daemon.Config
	verbose bool
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "minder",
		Short: "Routine Minder tracks daily routines, streaks and levels",
		Long: `Routine Minder is a personal habit tracker.
Define routines for the morning, midday or evening, tick them off each day,
and watch streaks, XP and achievements grow.

Data lives in $MINDER_HOME (default ~/.routine-minder).`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Write debug logs to stderr")

	root.AddCommand(
		a.serveCmd(),
		a.routineCmd(),
		a.doneCmd(),
		a.statsCmd(),
		a.achievementsCmd(),
		a.configCmd(),
	)
	return root
}

// setup loads the config and starts the logger before any subcommand runs.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	lc := cfg.LoggerConfig()
	if a.verbose {
		lc.Level = "debug"
		lc.Stderr = true
	}
	return logger.Init(lc)
}

// open wires a daemon for a one-shot command. Callers must Close it.
func (a *app) open(cmd *cobra.Command) (*daemon.Daemon, error) {
	return daemon.NewWithConfig(cmd.Context(), a.cfg)
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	root := NewRootCmd()
	root.Version = version

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
