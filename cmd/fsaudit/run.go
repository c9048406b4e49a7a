package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fsaudit/fsaudit/internal/auditor"
	"github.com/fsaudit/fsaudit/internal/types"
)

var (
	runPatterns []string
	runAgents   []string
	runWorkers  int
	runAI       bool
)

var runCmd = &cobra.Command{
	Use:   "run [targets...]",
	Short: "Run an audit over the root directory",
	Long: `Run the audit pipeline: scan the root for candidate files, select
targets, analyze each with the configured agents, and record findings.

Explicit target paths skip the scan step.

Examples:
  fsaudit run                          # Audit the current directory
  fsaudit run --root=/path/to/project  # Audit another tree
  fsaudit run --patterns='*.go'        # Override scan patterns
  fsaudit run --ai                     # Also run the Claude review agent
  fsaudit run internal/foo.go          # Audit specific files only`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(runPatterns) > 0 {
			cfg.Patterns = runPatterns
		}
		if len(runAgents) > 0 {
			cfg.Agents = runAgents
		}
		if runWorkers > 0 {
			cfg.Workers = runWorkers
		}
		if runAI {
			cfg.AIAgentEnabled = true
		}

		a, err := auditor.New(rootDir, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		findings, err := a.Run(ctx, args...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		printFindings(findings)
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runPatterns, "patterns", nil, "scan patterns (overrides config)")
	runCmd.Flags().StringSliceVar(&runAgents, "agents", nil, "agents to run, in order (overrides config)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "concurrent file analyses (overrides config)")
	runCmd.Flags().BoolVar(&runAI, "ai", false, "enable the Claude review agent")
	rootCmd.AddCommand(runCmd)
}

func printFindings(findings []types.Finding) {
	if len(findings) == 0 {
		color.Green("✓ No findings")
		return
	}

	for _, f := range findings {
		sev := severityColor(f.Severity)
		fmt.Printf("%s %s %s: %s\n", sev(string(f.Severity)), color.CyanString(f.Rule), f.Path, f.Message)
	}
	fmt.Println()
	color.Yellow("%d finding(s)", len(findings))
}

func severityColor(s types.Severity) func(format string, a ...interface{}) string {
	switch s {
	case types.SeverityHigh:
		return color.RedString
	case types.SeverityMedium:
		return color.YellowString
	default:
		return color.WhiteString
	}
}
