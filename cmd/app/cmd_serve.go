package main

import (
	"github.com/spf13/cobra"

	applogger "SigTrack/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the evaluation loop and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := bootstrap()
		if err != nil {
			return err
		}
		defer cleanup()

		c.Logger.Info("sigtrack starting", applogger.String("config", configPath))
		return c.App.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
