package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/qkdtools/cascade/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database   string
	Experiment string // filter runs by experiment name
	Runs       bool   // list individual runs instead of aggregates
}

// ReportData is the success payload of the report command.
type ReportData struct {
	Summaries []store.Summary `json:"summaries,omitempty"`
	Runs      []store.Run     `json:"runs,omitempty"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize recorded experiment runs",
		Long: `Summarize the runs recorded in an experiment database.

By default prints per-experiment aggregates: run counts, convergence
counts, and mean leaked bits and corrections over converged runs.
With --runs, lists individual sessions instead.

Examples:
  cascade report --db ./runs.db
  cascade report --db ./runs.db --runs --experiment baseline
  cascade report --db ./runs.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Experiment, "experiment", "", "filter runs by experiment name")
	cmd.Flags().BoolVar(&opts.Runs, "runs", false, "list individual runs instead of aggregates")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	// Reports never create databases; a missing path is a typo, not a
	// request for an empty report.
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Runs {
		return reportRuns(ctx, st, opts, formatter)
	}
	return reportSummaries(ctx, st, opts, formatter)
}

func reportSummaries(ctx context.Context, st *store.Store, opts *ReportOptions, formatter *OutputFormatter) error {
	summaries, err := st.Summarize(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to summarize runs", err)
	}

	if opts.Experiment != "" {
		filtered := summaries[:0]
		for _, s := range summaries {
			if s.Experiment == opts.Experiment {
				filtered = append(filtered, s)
			}
		}
		summaries = filtered
	}

	if opts.Format == "json" {
		return formatter.Success(ReportData{Summaries: summaries})
	}

	w := formatter.Writer
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "EXPERIMENT\tRUNS\tCONVERGED\tMEAN LEAKED\tMEAN CORRECTIONS")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f\t%.1f\n",
			s.Experiment, s.Runs, s.Converged, s.MeanLeakedBits, s.MeanCorrections)
	}
	return tw.Flush()
}

func reportRuns(ctx context.Context, st *store.Store, opts *ReportOptions, formatter *OutputFormatter) error {
	runs, err := st.ReadRuns(ctx, opts.Experiment)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}

	if opts.Format == "json" {
		return formatter.Success(ReportData{Runs: runs})
	}

	w := formatter.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tEXPERIMENT\tOUTCOME\tLEAKED\tCORRECTIONS\tPASSES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
			r.SessionID, r.Experiment, r.Outcome, r.LeakedBits, r.Corrections, r.Passes)
	}
	return tw.Flush()
}
