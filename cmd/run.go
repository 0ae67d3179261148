package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mkgraph/api/schemas"
	"github.com/xkilldash9x/mkgraph/internal/extraction"
	"github.com/xkilldash9x/mkgraph/internal/llmclient"
	"github.com/xkilldash9x/mkgraph/internal/markdown"
	"github.com/xkilldash9x/mkgraph/internal/observability"
	"github.com/xkilldash9x/mkgraph/internal/orchestrator"
	"github.com/xkilldash9x/mkgraph/internal/store"
)

// newRunCmd creates the `run` command: one full accumulation pass over a
// markdown file or directory.
func newRunCmd() *cobra.Command {
	var (
		force   bool
		noState bool
	)

	runCmd := &cobra.Command{
		Use:   "run [path]",
		Short: "Process markdown documents into the knowledge graph",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind override flags so they take precedence over config file
			// and environment values.
			if err := viper.BindPFlag("llm.provider", cmd.Flags().Lookup("llm")); err != nil {
				return err
			}
			if err := viper.BindPFlag("llm.model", cmd.Flags().Lookup("model")); err != nil {
				return err
			}
			if err := viper.BindPFlag("store.output_dir", cmd.Flags().Lookup("output")); err != nil {
				return err
			}
			return viper.BindPFlag("engine.batch_size", cmd.Flags().Lookup("batch-size"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return fail("configuration invalid", err)
			}

			corpus := markdown.NewCorpus(args[0], logger)
			docs, err := corpus.Load()
			if err != nil {
				return fail("failed to load corpus", err)
			}
			if len(docs) == 0 {
				fmt.Println("No markdown documents found.")
				return nil
			}

			client, err := llmclient.NewClient(cfg.LLM, logger)
			if err != nil {
				return fail("failed to initialize LLM client", err)
			}
			extractor := extraction.NewLLMExtractor(client, cfg.LLM, logger)

			st, err := store.Open(cfg.StatePath(), logger)
			if err != nil {
				return fail("failed to open state database", err)
			}
			defer st.Close()

			var opts []orchestrator.Option
			if noState {
				opts = append(opts, orchestrator.WithoutState())
			}
			orch := orchestrator.New(st, extractor, *cfg, logger, opts...)

			summary, err := orch.Run(ctx, docs, force)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted", zap.Error(err))
					return fmt.Errorf("run aborted by user signal")
				}
				return fail("run failed", err)
			}

			printSummary(summary)
			return nil
		},
	}

	runCmd.Flags().String("llm", "", "LLM provider (openai, anthropic, ollama, gemini)")
	runCmd.Flags().String("model", "", "model name override")
	runCmd.Flags().StringP("output", "o", "", "output directory for graph state")
	runCmd.Flags().IntP("batch-size", "b", 0, "documents per commit batch")
	runCmd.Flags().BoolVar(&force, "force", false, "reprocess documents even if unchanged")
	runCmd.Flags().BoolVar(&noState, "no-state", false, "process everything without recording the ledger")

	return runCmd
}

// printSummary reports a finished run on stdout.
func printSummary(summary *schemas.RunSummary) {
	fmt.Printf("\nRun %s complete.\n", summary.RunID)
	fmt.Printf("  processed: %d succeeded, %d failed, %d skipped\n",
		summary.Succeeded, summary.Failed, summary.Skipped)
	fmt.Printf("  graph revision: %d\n", summary.Revision)
	if len(summary.Warnings) > 0 {
		fmt.Printf("  warnings: %d (see log)\n", len(summary.Warnings))
	}
	if len(summary.CommitErrors) > 0 {
		fmt.Printf("  commit failures: %d (those batches stay pending)\n", len(summary.CommitErrors))
	}
	if summary.Failed > 0 {
		fmt.Println("Failed documents stay pending and will be retried next run.")
	}
}
