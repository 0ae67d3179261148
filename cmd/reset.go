package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/mkgraph/internal/observability"
	"github.com/xkilldash9x/mkgraph/internal/store"
)

// newResetCmd creates the `reset` command. Default resets the processing
// ledger only; --all discards the graph as well.
func newResetCmd() *cobra.Command {
	var all bool

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the processing ledger (or, with --all, the whole graph)",
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

			if all {
				if err := st.ResetAll(); err != nil {
					return fail("failed to reset state", err)
				}
				fmt.Println("Graph, ledger and revision counter reset.")
				return nil
			}

			if err := st.ResetLedger(); err != nil {
				return fail("failed to reset ledger", err)
			}
			fmt.Println("Processing ledger reset; the next run reprocesses every document.")
			return nil
		},
	}

	resetCmd.Flags().BoolVar(&all, "all", false, "also discard the graph and revision counter")
	return resetCmd
}
