// Package config loads Magpie configuration from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"

	"github.com/opensegment/magpie/internal/domain"
)

// Load builds the runtime configuration. The MAGPIE_PROFILE variable
// selects the defaults (standalone or distributed); every other
// MAGPIE_* variable then overrides its field.
func Load() (*domain.Config, error) {
	cfg, err := defaults(os.Getenv("MAGPIE_PROFILE"))
	if err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

func defaults(profile string) (*domain.Config, error) {
	switch domain.Profile(profile) {
	case domain.ProfileStandalone, "":
		return domain.DefaultConfig(), nil
	case domain.ProfileDistributed:
		return domain.DistributedConfig(), nil
	default:
		return nil, fmt.Errorf("unknown profile: %s", profile)
	}
}
