package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ans-cli/internal/etl"
	"github.com/sells-group/ans-cli/internal/etl/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the ETL run log",
	Long:  "Displays every recorded stage execution, most recent first, followed by the last successful completion of each stage.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		rl := etl.NewRunLog(pool)
		entries, err := rl.ListAll(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if len(entries) == 0 {
			zap.L().Info("no run entries found, run 'ans-cli run' to start the pipeline")
			return nil
		}

		formatRunEntries(os.Stdout, entries)

		last := make(map[string]*time.Time, len(pipeline.StageOrder))
		for _, stage := range pipeline.StageOrder {
			t, err := rl.LastComplete(ctx, stage)
			if err != nil {
				return eris.Wrap(err, "status")
			}
			last[stage] = t
		}
		formatLastComplete(os.Stdout, last)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// formatRunEntries writes a tabular representation of run log entries to w.
func formatRunEntries(out io.Writer, entries []etl.RunEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRUN\tSTAGE\tSTATUS\tSTARTED\tDURATION\tROWS\tERROR")
	_, _ = fmt.Fprintln(w, "--\t---\t-----\t------\t-------\t--------\t----\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.ID,
			truncate(e.RunID.String(), 8),
			e.Stage,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.Rows,
			truncate(e.Error, 60),
		)
	}
	_ = w.Flush()
}

// formatLastComplete writes the last completion time of each stage in
// execution order. Stages that never completed show "never".
func formatLastComplete(out io.Writer, last map[string]*time.Time) {
	_, _ = fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tLAST COMPLETE")
	for _, stage := range pipeline.StageOrder {
		when := "never"
		if t := last[stage]; t != nil {
			when = t.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", stage, when)
	}
	_ = w.Flush()
}

// truncate shortens s to max runes, marking the cut with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
