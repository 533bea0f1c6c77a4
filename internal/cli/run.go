package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qkdtools/cascade/internal/experiment"
	"github.com/qkdtools/cascade/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <experiments-dir>",
		Short: "Execute reconciliation experiments",
		Long: `Execute reconciliation experiments defined in CUE files.

Each experiment runs a batch of sessions with freshly generated key
pairs, records every session in a SQLite database (creating it if it
doesn't exist), and prints a per-experiment summary.

Example:
  cascade run --db ./runs.db ./experiments
  cascade run --db /tmp/bench.db ./experiments --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiments(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runExperiments(opts *RunOptions, experimentsDir string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Compile experiment definitions
	slog.Info("loading experiments", "dir", experimentsDir)
	specs, err := compileExperiments(experimentsDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load experiments", err)
	}
	slog.Info("experiments loaded", "count", len(specs))

	// Open database (create if not exists)
	slog.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database ready")

	// Setup signal handling so Ctrl-C stops between sessions with the
	// database in a consistent state.
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	w := cmd.OutOrStdout()
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    w,
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	summaries := make([]experiment.Summary, 0, len(specs))
	for i := range specs {
		spec := &specs[i]
		slog.Info("experiment starting", "experiment", spec.Name, "runs", spec.Runs, "key_size", spec.KeySize)

		summary, err := experiment.Execute(ctx, spec, st, logger)
		if err != nil {
			if ctx.Err() != nil {
				return WrapExitError(ExitFailure, "interrupted", ctx.Err())
			}
			return WrapExitError(ExitFailure, fmt.Sprintf("experiment %q", spec.Name), err)
		}
		summaries = append(summaries, *summary)

		if opts.Format != "json" {
			fmt.Fprintf(w, "%s: %d/%d converged, %d leaked bits, %d corrections\n",
				summary.Experiment, summary.Converged, summary.Runs, summary.LeakedBits, summary.Corrections)
		}
	}

	if opts.Format == "json" {
		return formatter.Success(summaries)
	}
	fmt.Fprintf(w, "Executed %d experiment(s).\n", len(summaries))
	return nil
}

// compileExperiments loads and compiles all experiment definitions from
// a directory.
func compileExperiments(dir string) ([]experiment.Spec, error) {
	// Use shared loader with fail-fast mode
	loadResult, loadErrors := LoadSpecs(dir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}
	return loadResult.Specs, nil
}
