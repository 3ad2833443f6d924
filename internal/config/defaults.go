package config

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed default_routing.yaml
var defaultRoutingYAML []byte

// DefaultRouting returns the built-in recipient rule table.
func DefaultRouting() (RoutingConf, error) {
	var rc RoutingConf
	if err := yaml.Unmarshal(defaultRoutingYAML, &rc); err != nil {
		return RoutingConf{}, fmt.Errorf("parse default routing: %w", err)
	}
	return rc, nil
}

// Default returns a configuration with every default applied and the
// built-in routing table.
func Default() (*Config, error) {
	cfg := &Config{Version: "v1"}
	if err := applyDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) error {
	if cfg.Engine.DefaultWorkers == 0 {
		cfg.Engine.DefaultWorkers = 4
	}
	if cfg.Engine.QueueDepth == 0 {
		cfg.Engine.QueueDepth = 10000
	}
	if cfg.Engine.JobTimeoutMs == 0 {
		cfg.Engine.JobTimeoutMs = 30000
	}
	if cfg.Engine.EmailTimeoutMs == 0 {
		cfg.Engine.EmailTimeoutMs = 60000
	}
	if cfg.Engine.BackoffBaseMs == 0 {
		cfg.Engine.BackoffBaseMs = 5000
	}
	if cfg.Engine.BackoffCapMs == 0 {
		cfg.Engine.BackoffCapMs = 120000
	}
	if len(cfg.Mail.Providers) == 0 {
		cfg.Mail.Providers = []string{"resend", "ses", "log"}
	}
	if cfg.Mail.From == "" {
		cfg.Mail.From = "alerts@opsalert.local"
	}
	if len(cfg.Routing.Scenarios) == 0 {
		rc, err := DefaultRouting()
		if err != nil {
			return err
		}
		cfg.Routing = rc
	}
	return nil
}
