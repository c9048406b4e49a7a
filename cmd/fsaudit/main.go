// Command fsaudit runs the systematic file audit pipeline over a source
// tree. It is a thin caller of the composition root; the pipeline itself
// lives under internal/.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fsaudit/fsaudit/internal/config"
	"github.com/fsaudit/fsaudit/internal/storage/sqlite"
)

var (
	rootDir    string
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "fsaudit",
	Short: "Systematic file audit pipeline",
	Long: `fsaudit scans a source tree, runs pluggable analysis agents over
each selected file, and durably records findings and run status in an
embedded SQLite store under the audited root.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "root directory to audit")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: <root>/.fsaudit.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig reads the config file for the selected root.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = filepath.Join(rootDir, ".fsaudit.yaml")
	}
	return config.LoadFile(path)
}

// openStore opens the session store read-side for history and findings
// commands without constructing the full pipeline.
func openStore(cfg *config.Config) (*sqlite.SQLiteStorage, error) {
	dbPath := cfg.DBPath
	if dbPath != ":memory:" && !filepath.IsAbs(dbPath) {
		absRoot, err := filepath.Abs(rootDir)
		if err != nil {
			return nil, fmt.Errorf("resolving root: %w", err)
		}
		dbPath = filepath.Join(absRoot, dbPath)
	}
	return sqlite.New(dbPath)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
