package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"

	"github.com/AutumnsGrove/supsrc/internal/config"
	"github.com/AutumnsGrove/supsrc/internal/persist"
)

var configDumpStateYAML string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the resolved configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved, validated configuration document",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config show: %w", err)
		}
		fmt.Fprintf(os.Stdout, "# resolved from %s\n", path)
		if err := toml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
			return fmt.Errorf("config show: %w", err)
		}

		if configDumpStateYAML != "" {
			return dumpStateYAML(configDumpStateYAML)
		}
		return nil
	},
}

// dumpStateYAML loads repoPath's persisted shared state (§6) and
// re-emits it as YAML to stdout - a debug aid for operators comparing
// the daemon's on-disk bookkeeping against the config document, and the
// one place this module exercises gopkg.in/yaml.v3 (the persisted state
// file's actual wire format stays JSON per §6; YAML here is a read-only
// presentation, not a second serialization of the contract).
func dumpStateYAML(repoPath string) error {
	expanded, err := config.ExpandPath(repoPath)
	if err != nil {
		return fmt.Errorf("--dump-state-yaml: %w", err)
	}
	shared, err := persist.LoadShared(expanded)
	if err != nil {
		return fmt.Errorf("--dump-state-yaml: %w", err)
	}

	fmt.Fprintf(os.Stdout, "\n# persisted state for %s\n", expanded)
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(shared)
}

func init() {
	configShowCmd.Flags().StringVar(&configDumpStateYAML, "dump-state-yaml", "",
		"also print the persisted .supsrc state for the given repository path, as YAML")
	configCmd.AddCommand(configShowCmd)
}
