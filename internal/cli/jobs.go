package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lingoreel/lingoscribe/internal/jobs"
	"github.com/lingoreel/lingoscribe/internal/platform"
)

func newJobsCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect tracked transcription jobs",
	}

	cmd.AddCommand(newJobsListCmd(app))
	cmd.AddCommand(newJobsShowCmd(app))
	cmd.AddCommand(newJobsDeleteCmd(app))
	return cmd
}

func (a *appState) openTracker() (*jobs.Tracker, error) {
	cfg := a.appConfig()
	dataDir, err := platform.ResolveDataDir(cfg.Jobs.DataDir)
	if err != nil {
		return nil, err
	}
	ttl := time.Duration(cfg.Jobs.TTLSeconds) * time.Second
	return jobs.Open(filepath.Join(dataDir, "jobs"), ttl, a.log()), nil
}

func (a *appState) closeTracker(tracker *jobs.Tracker) {
	if err := tracker.Close(); err != nil {
		a.log().Warn("failed to close job store", zap.Error(err))
	}
}

func newJobsListCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active (queued or processing) jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tracker, err := app.openTracker()
			if err != nil {
				return err
			}
			defer app.closeTracker(tracker)

			active, err := tracker.ListActive(cmd.Context())
			if err != nil {
				return err
			}
			if len(active) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No active jobs.")
				return nil
			}

			ids := make([]string, 0, len(active))
			for id := range active {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				rec := active[id]
				rows = append(rows, []string{
					rec.ID,
					string(rec.Status),
					fmt.Sprintf("%.0f%%", rec.Progress),
					rec.Message,
					rec.MediaPath,
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Status", "Progress", "Message", "Media"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newJobsShowCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show the full record of one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := app.openTracker()
			if err != nil {
				return err
			}
			defer app.closeTracker(tracker)

			rec, err := tracker.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("job %s not found; it may have expired", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:        %s\n", rec.ID)
			fmt.Fprintf(out, "Status:    %s\n", rec.Status)
			fmt.Fprintf(out, "Progress:  %.1f%%\n", rec.Progress)
			fmt.Fprintf(out, "Message:   %s\n", rec.Message)
			fmt.Fprintf(out, "Media:     %s\n", rec.MediaPath)
			if rec.Language != "" {
				fmt.Fprintf(out, "Language:  %s\n", rec.Language)
			}
			if rec.Result != "" {
				fmt.Fprintf(out, "Result:    %s\n", rec.Result)
			}
			if rec.Transcript != "" {
				fmt.Fprintf(out, "Transcript: %s\n", rec.Transcript)
			}
			if rec.Error != "" {
				fmt.Fprintf(out, "Error:     %s\n", rec.Error)
			}
			fmt.Fprintf(out, "Started:   %s\n", rec.StartedAt.Local().Format(time.RFC3339))
			fmt.Fprintf(out, "Updated:   %s\n", rec.UpdatedAt.Local().Format(time.RFC3339))
			if rec.CompletedAt != nil {
				fmt.Fprintf(out, "Completed: %s\n", rec.CompletedAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newJobsDeleteCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := app.openTracker()
			if err != nil {
				return err
			}
			defer app.closeTracker(tracker)

			if err := tracker.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted job %s.\n", args[0])
			return nil
		},
	}
}
