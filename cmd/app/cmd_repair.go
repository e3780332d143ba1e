package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"SigTrack/internal/usecase"
	"SigTrack/pkg/config"
)

var repairPath string

var repairCmd = &cobra.Command{
	Use:   "repair-history",
	Short: "Rewrite a damaged history file in place",
	Long: `Replace NaN tokens with null, drop duplicate signal keys (the first
entry wins) and normalize exit price, profit and hit flags. Stop the
service before running it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := repairPath
		if path == "" {
			cfg, err := config.LoadWithEnv(configPath)
			if err != nil {
				return fmt.Errorf("config load failed (or pass --path): %w", err)
			}
			path = cfg.Storage.HistoryPath
		}
		res, err := usecase.RepairHistory(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s: read=%d kept=%d duplicates=%d dropped=%d\n",
			path, res.Read, res.Kept, res.Duplicates, res.Dropped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(repairCmd)
	repairCmd.Flags().StringVar(&repairPath, "path", "", "history file (default: storage.history_path)")
}
