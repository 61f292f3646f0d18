package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/rosterctl/internal/config"
	"github.com/Tiliavir/rosterctl/internal/logging"
)

var (
	cfgFile   string
	debug     bool
	logFormat string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "rosterctl",
	Short: "rosterctl – officer activity and patrols from the roster backend",
	Long: `rosterctl shows an officer's activity feed (weekly hours and inactivity
justifications), keeps it current from the live channel and auto-saves
patrol notes. Settings live in ~/.rosterctl/config.yaml.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.rosterctl/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: console or json (overrides config)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(patrolCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	lc := logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Debug:  debug,
	}
	if logFormat != "" {
		lc.Format = logFormat
	}
	if err := logging.Init(lc); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	logging.Debug().Str("base_url", cfg.API.BaseURL).Str("command", cmd.Name()).Msg("configuration loaded")
	return nil
}
