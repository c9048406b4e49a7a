package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var findingsCmd = &cobra.Command{
	Use:   "findings <run-id>",
	Short: "Show the findings recorded for a run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		store, err := openStore(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()

		ctx := context.Background()
		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if run == nil {
			fmt.Fprintf(os.Stderr, "Error: run %s not found\n", args[0])
			os.Exit(1)
		}

		findings, err := store.GetFindings(ctx, run.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Run %s (%s) over %s\n\n", run.ID, run.Status, run.Root)
		printFindings(findings)
	},
}

func init() {
	rootCmd.AddCommand(findingsCmd)
}
