// Package cli implements the wdlrun command surface.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/wdlrun/internal/logging"
)

// Process exit codes.
const (
	ExitSuccess       = 0
	ExitBuildError    = 1 // bundle decoding, graph building, evaluation
	ExitTaskFailure   = 2 // one or more task executions failed
	ExitBadInvocation = 3 // bad flags or inputs
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the wdlrun CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wdlrun",
		Short: "wdlrun is a WDL workflow execution engine",
		Long:  "wdlrun executes WDL workflow bundles locally or in containers, with call caching.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.New(flagLogLevel, flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (YAML)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newVersionCmd(),
	)

	return root
}

// Main executes the CLI and returns the process exit code.
func Main() int {
	err := NewRootCmd().Execute()
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintln(os.Stderr, err)
	return exitCode(err)
}

func exitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	// Anything cobra surfaces directly is a usage problem.
	return ExitBadInvocation
}
