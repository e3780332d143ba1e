package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var tickVerbose bool

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Evaluate every active signal once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, cleanup, err := bootstrap()
		if err != nil {
			return err
		}
		defer cleanup()

		rep, err := c.Evaluator.Tick(cmd.Context())
		if rep == nil {
			return fmt.Errorf("tick failed: %w", err)
		}
		if !tickVerbose {
			rep.Outcomes = nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(rep); encErr != nil {
			return encErr
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(tickCmd)
	tickCmd.Flags().BoolVarP(&tickVerbose, "verbose", "v", false, "Print per-signal outcomes")
}
