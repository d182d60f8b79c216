// Command continuity preserves and restores session state, watches the
// configured deadlines and launches the supporting services.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/continuity/internal/config"
	"github.com/danielpatrickdp/continuity/internal/logging"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
	logJSON  bool
	jsonOut  bool

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "continuity",
	Short: "Session continuity controller",
	Long: `continuity keeps session state on disk in three redundant locations,
detects context drift, escalates expiring deadlines into the current
record and launches the services a session depends on.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadOptional(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-json") {
			loaded.LogJSON = logJSON
		}
		cfg = loaded

		logger, err = logging.New(cfg.LogLevel, cfg.LogJSON)
		if err != nil {
			return err
		}
		logger.Debug("config loaded", zap.String("file", cfgFile), zap.String("storage", cfg.StoragePath))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "continuity.yaml", "Config file (missing file uses defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print results as JSON")

	rootCmd.AddCommand(preserveCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(enhanceCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(bootupCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(inspectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
