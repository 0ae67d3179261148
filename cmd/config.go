package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/mkgraph/internal/config"
)

// newConfigCmd creates the `config` command: inspect or mutate the persisted
// configuration file.
func newConfigCmd() *cobra.Command {
	var list bool

	configCmd := &cobra.Command{
		Use:   "config [key] [value]",
		Short: "Get or set configuration values",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if list || len(args) == 0 {
				return listConfig()
			}
			if len(args) == 1 {
				if !viper.IsSet(args[0]) {
					return fmt.Errorf("unknown configuration key %q", args[0])
				}
				fmt.Println(viper.Get(args[0]))
				return nil
			}
			return setConfig(args[0], args[1])
		},
	}

	configCmd.Flags().BoolVar(&list, "list", false, "print the effective configuration")
	return configCmd
}

func listConfig() error {
	keys := viper.AllKeys()
	sort.Strings(keys)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, k := range keys {
		if k == "llm.api_key" {
			continue // never echo secrets
		}
		fmt.Fprintf(w, "%s\t%v\n", k, viper.Get(k))
	}
	return w.Flush()
}

// setConfig persists one key to the config file, creating it with defaults
// when it does not exist yet.
func setConfig(key, value string) error {
	path := cfgFile
	if path == "" {
		var err error
		path, err = config.DefaultFile()
		if err != nil {
			return err
		}
	}

	v := viper.New()
	config.SetDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	if !v.IsSet(key) {
		return fmt.Errorf("unknown configuration key %q", key)
	}
	v.Set(key, value)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Printf("Set %s = %s in %s\n", key, value, path)
	return nil
}
