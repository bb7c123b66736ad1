package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/madhatter5501/promptflow/agents"
)

func newAuditCmd() *cobra.Command {
	var (
		runID string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recorded prompt dispatches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFrom(cmd.Context())
			database, store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			var entries []agents.AuditEntry
			if runID != "" {
				entries, err = store.GetAuditEntriesByRun(cmd.Context(), runID)
			} else {
				entries, err = store.GetRecentAuditEntries(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				_, _ = fmt.Fprintln(out, "No dispatches recorded")
				return nil
			}
			for _, e := range entries {
				_, _ = fmt.Fprintf(out, "%s  %-17s %-10s run=%s card=%s hash=%s %dms\n",
					e.CreatedAt.Local().Format(time.DateTime), e.EventType, e.DispatchMode,
					e.RunID, e.CardID, shortID(e.PromptHash), e.DurationMs)
				if e.EventType == agents.AuditEventDispatchError {
					_, _ = fmt.Fprintf(out, "  %s\n", e.EventData)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Only show dispatches for this run")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of recent dispatches to show")
	return cmd
}
