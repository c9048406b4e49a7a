// Package config holds the audit pipeline's configuration. The config is
// an explicit value threaded into the composition root — no process-wide
// mutable state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls one audit pipeline instance.
type Config struct {
	// Patterns are glob-style patterns matched against root-relative
	// paths during scan.
	// Default: ["*.go"]
	Patterns []string `yaml:"patterns"`

	// ExcludePatterns prune files and directories from the scan.
	// Default: version control metadata, vendored code, the pipeline's
	// own state directory.
	ExcludePatterns []string `yaml:"exclude_patterns"`

	// DBPath is the session store location, relative to the audited
	// root unless absolute.
	// Default: ".fsaudit/audit.db"
	DBPath string `yaml:"db_path"`

	// Agents are the agent names to run, in order.
	// Default: ["rules"]
	Agents []string `yaml:"agents"`

	// AIAgentEnabled registers the Claude-backed agent at composition
	// time. Requires ANTHROPIC_API_KEY.
	// Default: false
	AIAgentEnabled bool `yaml:"ai_agent_enabled"`

	// AIModel overrides the model used by the AI agent.
	AIModel string `yaml:"ai_model"`

	// Workers bounds concurrent per-file analysis. 1 means strictly
	// sequential, which is the source pipeline's behavior.
	// Default: 1, Range: 1-32
	Workers int `yaml:"workers"`

	// MaxFiles caps how many candidates the planner selects per run.
	// 0 means unlimited.
	MaxFiles int `yaml:"max_files"`

	// MaxFileBytes skips candidates larger than this on disk.
	// 0 means unlimited.
	MaxFileBytes int64 `yaml:"max_file_bytes"`

	// RetryAttempts is the total invocation count per agent call,
	// including the first.
	// Default: 3, Range: 1-10
	RetryAttempts int `yaml:"retry_attempts"`

	// RetryBaseDelay is the delay before the first retry.
	// Default: 200ms
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// RetryMaxDelay caps the backoff delay.
	// Default: 1s
	RetryMaxDelay time.Duration `yaml:"retry_max_delay"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() *Config {
	return &Config{
		Patterns:       []string{"*.go"},
		DBPath:         ".fsaudit/audit.db",
		Agents:         []string{"rules"},
		Workers:        1,
		RetryAttempts:  3,
		RetryBaseDelay: 200 * time.Millisecond,
		RetryMaxDelay:  1 * time.Second,
	}
}

// Validate checks if the configuration has valid values.
func (c *Config) Validate() error {
	if len(c.Patterns) == 0 {
		return fmt.Errorf("at least one scan pattern is required")
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Workers < 1 || c.Workers > 32 {
		return fmt.Errorf("workers must be between 1 and 32 (got %d)", c.Workers)
	}
	if c.RetryAttempts < 1 || c.RetryAttempts > 10 {
		return fmt.Errorf("retry_attempts must be between 1 and 10 (got %d)", c.RetryAttempts)
	}
	if c.RetryBaseDelay < 0 || c.RetryMaxDelay < 0 {
		return fmt.Errorf("retry delays cannot be negative")
	}
	if c.MaxFiles < 0 {
		return fmt.Errorf("max_files cannot be negative (got %d)", c.MaxFiles)
	}
	if c.MaxFileBytes < 0 {
		return fmt.Errorf("max_file_bytes cannot be negative (got %d)", c.MaxFileBytes)
	}
	return nil
}

// LoadFile reads a YAML config file over the defaults. A missing file is
// not an error; the defaults apply.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv layers environment overrides on top of file/default values.
func (c *Config) applyEnv() {
	if v := os.Getenv("FSAUDIT_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := getEnvInt("FSAUDIT_WORKERS"); v > 0 {
		c.Workers = v
	}
	if v := getEnvInt("FSAUDIT_RETRY_ATTEMPTS"); v > 0 {
		c.RetryAttempts = v
	}
	if v := os.Getenv("FSAUDIT_AI_AGENT"); v == "1" || v == "true" {
		c.AIAgentEnabled = true
	}
}

func getEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
