// Package cli implements the ember command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/emberchat/ember/internal/config"
	"github.com/emberchat/ember/internal/logging"
	"github.com/emberchat/ember/internal/store"
)

var (
	cfgFile      string
	logLevelFlag string

	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "ember",
	Short:         "Terminal chat client with offline-first history",
	Long:          "ember keeps conversation history in a local SQLite store and syncs it over a realtime connection.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initApp()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level override (debug, info, warn, error)")
}

// Execute runs the ember CLI.
func Execute(version string) error {
	rootCmd.Version = version
	return rootCmd.Execute()
}

func initApp() error {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFromFile(cfgFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	logCfg := logging.Config{
		Level:        level,
		Format:       cfg.Logging.Format,
		EnableCaller: cfg.Logging.EnableCaller,
	}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logCfg.Output = f
	}
	logging.Init(logCfg)

	appConfig = cfg
	return nil
}

// GetConfig returns the loaded application config. Nil before the root
// command's PersistentPreRunE has run.
func GetConfig() *config.Config {
	return appConfig
}

func openDatabase(cfg *config.Config) (*store.DB, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return store.Open(cfg.DatabasePath())
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
