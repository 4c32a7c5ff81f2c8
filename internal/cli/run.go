package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/me/wdlrun/internal/backend"
	"github.com/me/wdlrun/internal/cache"
	"github.com/me/wdlrun/internal/config"
	"github.com/me/wdlrun/internal/engine"
	"github.com/me/wdlrun/internal/loader"
	"github.com/me/wdlrun/internal/monitor"
	"github.com/me/wdlrun/internal/stage"
	"github.com/me/wdlrun/internal/task"
	"github.com/me/wdlrun/pkg/wdl"
)

func newRunCmd() *cobra.Command {
	var (
		flagInputs         string
		flagOutputDir      string
		flagBackend        string
		flagMaxConcurrency int
		flagMaxAttempts    int
		flagCacheDir       string
		flagFailFast       bool
		flagContinue       bool
		flagMonitorAddr    string
	)

	cmd := &cobra.Command{
		Use:   "run <bundle>",
		Short: "Execute a WDL workflow bundle",
		Long: `Executes the workflow in a bundle file against concrete inputs and prints
the workflow outputs as JSON to stdout. A copy lands in <output-dir>/outputs.json.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return &ExitError{Code: ExitBadInvocation, Err: err}
			}

			flags := cmd.Flags()
			if flags.Changed("backend") {
				cfg.Backend = flagBackend
			}
			if flags.Changed("max-concurrency") {
				cfg.MaxConcurrency = flagMaxConcurrency
			}
			if flags.Changed("max-attempts") {
				cfg.MaxAttempts = flagMaxAttempts
			}
			if flags.Changed("cache-dir") {
				cfg.CacheDir = flagCacheDir
			}
			if flags.Changed("output-dir") {
				cfg.OutputDir = flagOutputDir
			}
			if flags.Changed("fail-fast") {
				cfg.FailFast = flagFailFast
			}
			if flags.Changed("continue-on-failure") {
				cfg.FailFast = !flagContinue
			}
			if flags.Changed("monitor-addr") {
				cfg.MonitorAddr = flagMonitorAddr
			}

			return runWorkflow(cmd.Context(), args[0], flagInputs, cfg)
		},
	}

	cmd.Flags().StringVarP(&flagInputs, "inputs", "i", "", "Inputs file (JSON or YAML)")
	cmd.Flags().StringVarP(&flagOutputDir, "output-dir", "o", "", "Output directory")
	cmd.Flags().StringVar(&flagBackend, "backend", "", "Execution backend (local, docker)")
	cmd.Flags().IntVar(&flagMaxConcurrency, "max-concurrency", 0, "Max simultaneously running tasks (0 = unlimited)")
	cmd.Flags().IntVar(&flagMaxAttempts, "max-attempts", 0, "Executions per invocation, retries included")
	cmd.Flags().StringVar(&flagCacheDir, "cache-dir", "", "Call cache directory (empty disables caching)")
	cmd.Flags().BoolVar(&flagFailFast, "fail-fast", true, "Cancel unstarted work on the first failure")
	cmd.Flags().BoolVar(&flagContinue, "continue-on-failure", false, "Keep running independent work after a failure")
	cmd.Flags().StringVar(&flagMonitorAddr, "monitor-addr", "", "Serve GET /status and /nodes on this address")

	return cmd
}

func runWorkflow(ctx context.Context, bundlePath, inputsPath string, cfg config.Config) error {
	doc, err := loader.LoadBundle(bundlePath)
	if err != nil {
		return &ExitError{Code: ExitBuildError, Err: err}
	}
	if doc.Workflow == nil {
		return &ExitError{Code: ExitBuildError, Err: fmt.Errorf("bundle %s has no workflow", bundlePath)}
	}

	inputs, err := loader.LoadInputs(inputsPath, doc.Workflow)
	if err != nil {
		return &ExitError{Code: ExitBadInvocation, Err: err}
	}

	be, err := backend.Select(cfg.Backend)
	if err != nil {
		return &ExitError{Code: ExitBadInvocation, Err: err}
	}

	var store *cache.Store
	if path := cfg.CachePath(); path != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
			return &ExitError{Code: ExitBuildError, Err: fmt.Errorf("cache dir: %w", err)}
		}
		store, err = cache.Open(path, logger)
		if err != nil {
			return &ExitError{Code: ExitBuildError, Err: err}
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	workRoot := filepath.Join(cfg.OutputDir, "work")
	runner := task.NewRunner(be, store, newLocalizer(ctx, workRoot), logger)
	eng := engine.New(doc, runner, engine.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		FailFast:       cfg.FailFast,
		MaxAttempts:    cfg.MaxAttempts,
		WorkDir:        workRoot,
	}, logger)

	if cfg.MonitorAddr != "" {
		mon := monitor.New(eng, logger)
		go func() {
			if err := mon.ListenAndServe(ctx, cfg.MonitorAddr); err != nil {
				logger.Error("monitor server", "error", err)
			}
		}()
	}

	res, err := eng.Run(ctx, inputs)
	if err != nil {
		var terr *task.Error
		if errors.As(err, &terr) {
			return &ExitError{Code: ExitTaskFailure, Err: err}
		}
		return &ExitError{Code: ExitBuildError, Err: err}
	}

	return writeOutputs(doc.Workflow.Name, res.Outputs, cfg.OutputDir)
}

// newLocalizer builds the input staging chain: local copies, HTTP downloads,
// and S3 when ambient AWS credentials resolve.
func newLocalizer(ctx context.Context, workRoot string) *stage.Localizer {
	var s3 stage.Stager
	if s, err := stage.NewS3Stager(ctx); err == nil {
		s3 = s
	} else {
		logger.Debug("s3 staging unavailable", "error", err)
	}
	composite := stage.Default(stage.NewHTTPStager(0), s3)
	return stage.NewLocalizer(composite, filepath.Join(workRoot, "downloads"))
}

// writeOutputs prints the workflow outputs as JSON to stdout and mirrors them
// into <output-dir>/outputs.json. Keys carry the workflow-name prefix, the
// same convention the inputs file uses.
func writeOutputs(workflow string, outputs map[string]wdl.Value, outputDir string) error {
	encoded := make(map[string]any, len(outputs))
	for name, v := range outputs {
		encoded[workflow+"."+name] = wdl.EncodeJSON(v)
	}
	data, err := json.MarshalIndent(encoded, "", "  ")
	if err != nil {
		return &ExitError{Code: ExitBuildError, Err: err}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return &ExitError{Code: ExitBuildError, Err: err}
	}
	if err := os.WriteFile(filepath.Join(outputDir, "outputs.json"), append(data, '\n'), 0o644); err != nil {
		return &ExitError{Code: ExitBuildError, Err: err}
	}

	fmt.Println(string(data))
	return nil
}
