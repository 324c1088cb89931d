package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/mklimuk/afe/cmd/dev/cmd"
)

type rootFlags struct {
	debug  bool
	json   bool
	module string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("dev task failed", "error", err)
		os.Exit(1)
	}
}

// newRootCmd wires the developer tasks. Every task runs from the module root
// because build outputs and package paths are relative to it.
func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "dev",
		Short:         "build and test tasks for the analog front end tool",
		Long:          "Cross builds the afe bus tool for the board and runs the unit, lint and bench suites",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			slog.SetDefault(slog.New(devLogger(flags)))
			if flags.module == "" {
				return nil
			}
			if err := os.Chdir(flags.module); err != nil {
				return fmt.Errorf("module root %q: %w", flags.module, err)
			}
			slog.Debug("running from module root", "dir", flags.module)
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&flags.json, "json", false, "log as JSON for CI runners")
	root.PersistentFlags().StringVarP(&flags.module, "module", "C", "", "module root to run from")

	root.AddCommand(cmd.BuildCmd(), cmd.TestCmd(), cmd.LintCmd(), cmd.IntegrationTestCmd())
	return root
}

func devLogger(flags rootFlags) *log.Logger {
	opts := log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "afe-dev",
		Level:           log.InfoLevel,
	}
	if flags.debug {
		opts.Level = log.DebugLevel
		opts.ReportCaller = true
	}
	if flags.json {
		opts.Formatter = log.JSONFormatter
		opts.TimeFormat = time.RFC3339
	}
	charm := log.NewWithOptions(os.Stdout, opts)
	if !flags.json {
		charm.SetColorProfile(termenv.TrueColor)
	}
	return charm
}
