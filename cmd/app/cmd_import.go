package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file|->",
	Short: "Add signals from a JSON array to the active set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open signals: %w", err)
			}
			defer f.Close()
			r = f
		}

		c, cleanup, err := bootstrap()
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := c.Ingestor.Import(cmd.Context(), r)
		if err != nil {
			return err
		}
		fmt.Printf("received=%d added=%d duplicates=%d skipped=%d\n",
			res.Received, res.Added, res.Duplicates, res.Skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
