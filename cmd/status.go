package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/mkgraph/api/schemas"
	"github.com/xkilldash9x/mkgraph/internal/observability"
	"github.com/xkilldash9x/mkgraph/internal/orchestrator"
	"github.com/xkilldash9x/mkgraph/internal/store"
)

// newStatusCmd creates the `status` command: committed graph size, revision,
// and the per-document ledger.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the committed graph and processing ledger state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return fail("configuration invalid", err)
			}

			st, err := store.Open(cfg.StatePath(), logger)
			if err != nil {
				return fail("failed to open state database", err)
			}
			defer st.Close()

			status, err := orchestrator.New(st, nil, *cfg, logger).Status()
			if err != nil {
				return fail("failed to read state", err)
			}

			fmt.Printf("State: %s\n", cfg.StatePath())
			fmt.Printf("Revision: %d\n", status.Revision)
			fmt.Printf("Graph: %d nodes, %d edges\n", status.Nodes, status.Edges)
			if !status.LastRun.IsZero() {
				fmt.Printf("Last run: %s\n", status.LastRun.Local().Format("2006-01-02 15:04:05"))
			}

			if len(status.Documents) == 0 {
				fmt.Println("\nNo documents processed yet.")
				return nil
			}

			counts := map[schemas.DocumentStatus]int{}
			for _, d := range status.Documents {
				counts[d.Status]++
			}
			fmt.Printf("\nDocuments: %d total, %d succeeded, %d failed, %d pending\n\n",
				len(status.Documents),
				counts[schemas.StatusSucceeded],
				counts[schemas.StatusFailed],
				counts[schemas.StatusPending])

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DOCUMENT\tSTATUS\tENTITIES\tRELATIONS\tERROR")
			for _, d := range status.Documents {
				errMsg := d.LastError
				if len(errMsg) > 60 {
					errMsg = errMsg[:57] + "..."
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", d.ID, d.Status, d.Entities, d.Relations, errMsg)
			}
			return w.Flush()
		},
	}
}
