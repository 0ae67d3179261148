// Package cmd wires the mkgraph command tree: configuration loading, logger
// setup, and the subcommands operating on the knowledge graph state.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mkgraph/internal/config"
	"github.com/xkilldash9x/mkgraph/internal/observability"
)

var (
	cfgFile string
	verbose bool
)

// NewRootCommand builds the full command tree. A fresh tree per invocation
// keeps flag state from leaking between executions in tests.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "mkgraph",
		Short:   "mkgraph accumulates a knowledge graph from markdown notes.",
		Long:    "mkgraph extracts entities and relations from markdown documents via an LLM\nand folds them incrementally into a persistent, deterministic knowledge graph.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(); err != nil {
				return err
			}

			var loggerCfg config.LoggerConfig
			if err := viper.UnmarshalKey("logger", &loggerCfg); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "mkgraph"})
				return fmt.Errorf("failed to unmarshal logger config: %w", err)
			}
			if verbose {
				loggerCfg.Level = "debug"
			}
			observability.InitializeLogger(loggerCfg)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ~/.mkgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(),
		newExtractCmd(),
		newStatusCmd(),
		newResetCmd(),
		newConfigCmd(),
		newInitCmd(),
		newExportCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute builds the command tree and runs it under a signal-aware context.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// initializeConfig reads in the config file and environment variables.
func initializeConfig() error {
	viper.Reset()
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if dir, err := config.DefaultDir(); err == nil {
			viper.AddConfigPath(dir)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MKGRAPH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars apply.
	}
	return nil
}

// loadConfig materializes the validated Config after flags were bound.
func loadConfig() (*config.Config, error) {
	return config.NewConfigFromViper(viper.GetViper())
}

// fail logs an error and returns it for cobra to surface.
func fail(msg string, err error) error {
	observability.GetLogger().Error(msg, zap.Error(err))
	return fmt.Errorf("%s: %w", msg, err)
}
