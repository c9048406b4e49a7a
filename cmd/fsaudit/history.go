package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fsaudit/fsaudit/internal/types"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent audit runs",
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

		runs, err := store.ListRuns(context.Background(), historyLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(runs) == 0 {
			fmt.Println("No audit runs recorded")
			return
		}

		for _, run := range runs {
			duration := "-"
			if run.FinishedAt != nil {
				duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
			}
			fmt.Printf("%s  %s  %s  %s  %s\n",
				run.ID,
				statusColor(run.Status)(string(run.Status)),
				run.StartedAt.Local().Format("2006-01-02 15:04:05"),
				duration,
				run.Root,
			)
		}
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func statusColor(s types.RunStatus) func(format string, a ...interface{}) string {
	switch s {
	case types.StatusOK:
		return color.GreenString
	case types.StatusFailed:
		return color.RedString
	case types.StatusCancelled:
		return color.YellowString
	default:
		return color.CyanString
	}
}
