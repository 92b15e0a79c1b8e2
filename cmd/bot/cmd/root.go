package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vitos/trade_lifecycle/internal/config"
	"github.com/vitos/trade_lifecycle/internal/infrastructure/logger"
	"go.uber.org/zap"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "bot",
	Short: "Risk-managed trade lifecycle engine",
	Long: `bot runs a single trend-pullback strategy instance against a trading host.

Every entry passes the daily loss gate and is sized from the stop distance. Open positions
get a moving stop and an early partial profit exactly once each.

Commands:
  run        - connect to the host bridge and trade
  sim        - replay a CSV of bars against the paper broker
  state      - inspect or clear persisted lifecycle state
  decisions  - tail the decision journal`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to YAML config")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "optional .env file with TLE_* overrides")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger returns the configured logger and a func that flushes it and releases its file.
func newLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	if cfg.Logging.File != "" {
		log, closeLog, err := logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
		if err != nil {
			return nil, nil, err
		}
		return log, func() { _ = closeLog() }, nil
	}
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		return nil, nil, err
	}
	return log, func() { _ = log.Sync() }, nil
}
