package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

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

// newExtractCmd creates the `extract` command: the accumulation pipeline
// pointed at source code, mining entities out of doc comments. The markdown
// type behaves exactly like `run`.
func newExtractCmd() *cobra.Command {
	var (
		fileType string
		force    bool
		noState  bool
	)

	extractCmd := &cobra.Command{
		Use:   "extract [path]",
		Short: "Extract entities from code doc comments into the knowledge graph",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("llm.provider", cmd.Flags().Lookup("llm")); err != nil {
				return err
			}
			if err := viper.BindPFlag("llm.model", cmd.Flags().Lookup("model")); err != nil {
				return err
			}
			return viper.BindPFlag("store.output_dir", cmd.Flags().Lookup("output"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := loadConfig()
			if err != nil {
				return fail("configuration invalid", err)
			}

			var docs []schemas.Document
			if fileType == "markdown" {
				docs, err = markdown.NewCorpus(args[0], logger).Load()
			} else {
				var corpus *markdown.CodeCorpus
				corpus, err = markdown.NewCodeCorpus(args[0], fileType, logger)
				if err != nil {
					return fail("invalid file type", err)
				}
				docs, err = corpus.Load()
			}
			if err != nil {
				return fail("failed to load corpus", err)
			}
			if len(docs) == 0 {
				fmt.Printf("No %s files found.\n", fileType)
				return nil
			}

			client, err := llmclient.NewClient(cfg.LLM, logger)
			if err != nil {
				return fail("failed to initialize LLM client", err)
			}
			var extractor schemas.Extractor
			if fileType == "markdown" {
				extractor = extraction.NewLLMExtractor(client, cfg.LLM, logger)
			} else {
				extractor = extraction.NewCodeExtractor(client, cfg.LLM, fileType, logger)
			}

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
					logger.Warn("Extraction aborted", zap.Error(err))
					return fmt.Errorf("extraction aborted by user signal")
				}
				return fail("extraction failed", err)
			}

			printSummary(summary)
			return nil
		},
	}

	types := append(markdown.Languages(), "markdown")
	extractCmd.Flags().StringVarP(&fileType, "type", "t", "markdown",
		fmt.Sprintf("file type to process (%s)", strings.Join(types, ", ")))
	extractCmd.Flags().String("llm", "", "LLM provider (openai, anthropic, ollama, gemini)")
	extractCmd.Flags().String("model", "", "model name override")
	extractCmd.Flags().StringP("output", "o", "", "output directory for graph state")
	extractCmd.Flags().BoolVar(&force, "force", false, "reprocess files even if unchanged")
	extractCmd.Flags().BoolVar(&noState, "no-state", false, "process everything without recording the ledger")

	return extractCmd
}
