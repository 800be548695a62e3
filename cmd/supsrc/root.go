package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AutumnsGrove/supsrc/internal/config"
	"github.com/AutumnsGrove/supsrc/internal/output"
)

var configPathFlag string

var rootCmd = &cobra.Command{
	Use:   "supsrc",
	Short: "Autosave for Git: watch repositories and commit/push on your rules",
	Long: `supsrc watches one or more local Git working trees and, when activity
satisfies a per-repository rule, automatically performs a stage -> commit ->
push cycle, refusing to act while a repository is in a dangerous state.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config-path", "",
		"path to the configuration file (defaults to $SUPSRC_CONF, then ~/.config/supsrc/config.toml)")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(suiCmd)
	rootCmd.AddCommand(cbCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig resolves the active config path (flag wins over
// SUPSRC_CONF wins over the default user location, §6) and loads plus
// validates the document there.
func loadConfig() (*config.Config, string, error) {
	path, err := config.ResolveConfigPath(configPathFlag)
	if err != nil {
		return nil, "", fmt.Errorf("resolving config path: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, path, nil
}

func newSink(cfg *config.Config) *output.Sink {
	return output.NewStderrSink(output.ParseLevel(cfg.Global.LogLevel))
}
