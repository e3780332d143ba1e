package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"SigTrack/internal/di"
	"SigTrack/pkg/config"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "sigtrack",
	Short: "Track trade signals through their lifecycle against market history",
	Long: `sigtrack evaluates trade signals against exchange candles on a timer,
promotes finished signals to history and writes an audit trail.

Examples:
  sigtrack serve --config config/config.yaml
  sigtrack import signals.json
  sigtrack tick
  sigtrack repair-history --path data/history.json`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && envFile != ".env" {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with SIGTRACK_* overrides")
}

// bootstrap loads the config and wires the dependencies.
func bootstrap() (*di.Container, func(), error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config load failed: %w", err)
	}
	c, cleanup, err := di.InitializeContainer(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("app initialization failed: %w", err)
	}
	return c, cleanup, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
