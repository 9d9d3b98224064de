package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/edukit/coursegen/internal/generation/exec"
	"github.com/edukit/coursegen/internal/generation/retry"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.Pacing == 0 {
		cfg.Pipeline.Pacing = Duration(time.Second)
	}
	if cfg.Pipeline.MaxRetries == 0 {
		cfg.Pipeline.MaxRetries = retry.DefaultMaxRetries
	}
	if cfg.Pipeline.BaseDelay == 0 {
		cfg.Pipeline.BaseDelay = Duration(retry.DefaultBaseDelay)
	}
	if cfg.Pipeline.RepairRetries == 0 {
		cfg.Pipeline.RepairRetries = exec.DefaultRepairRetries
	}

	if cfg.Checkpoint.Dir == "" {
		cfg.Checkpoint.Dir = "data"
	}

	for i := range cfg.Providers {
		if cfg.Providers[i].Timeout == 0 {
			cfg.Providers[i].Timeout = Duration(90 * time.Second)
		}
	}

	return &cfg, nil
}
