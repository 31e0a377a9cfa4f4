// Package config loads agentrun settings from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime settings. Every field can be set through an
// AGENTRUN_* environment variable and overridden by CLI flags.
type Config struct {
	Provider         string `env:"AGENTRUN_PROVIDER"`
	Model            string `env:"AGENTRUN_MODEL"`
	MaxSteps         int    `env:"AGENTRUN_MAX_STEPS" envDefault:"70"`
	HistoryBudget    int    `env:"AGENTRUN_HISTORY_BUDGET" envDefault:"24000"`
	CompactThreshold int    `env:"AGENTRUN_COMPACT_THRESHOLD" envDefault:"1000"`
	AutoApprove      bool   `env:"AGENTRUN_AUTO_APPROVE" envDefault:"false"`
	FlowsFile        string `env:"AGENTRUN_FLOWS_FILE"`
	WorkDir          string `env:"AGENTRUN_WORKDIR"`
	TokenEncoding    string `env:"AGENTRUN_TOKEN_ENCODING" envDefault:"cl100k_base"`
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
