package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BatchLimits bounds a single sanitize request.
type BatchLimits struct {
	MaxItems     int `yaml:"max_items"`
	MaxItemBytes int `yaml:"max_item_bytes"`
}

// LimitsProfile holds the default limits plus optional per-client overrides
// keyed by the client identifier sent in the X-Client-Id header.
type LimitsProfile struct {
	Default BatchLimits            `yaml:"default"`
	Clients map[string]BatchLimits `yaml:"clients"`
}

// For returns the limits for a client id, falling back to the defaults.
func (p LimitsProfile) For(clientID string) BatchLimits {
	if l, ok := p.Clients[clientID]; ok {
		if l.MaxItems == 0 {
			l.MaxItems = p.Default.MaxItems
		}
		if l.MaxItemBytes == 0 {
			l.MaxItemBytes = p.Default.MaxItemBytes
		}
		return l
	}
	return p.Default
}

// LoadLimits builds the limits profile: env-derived defaults, optionally
// overridden by a YAML file when LIMITS_FILE is set.
func LoadLimits(cfg Config) (LimitsProfile, error) {
	p := LimitsProfile{
		Default: BatchLimits{MaxItems: cfg.MaxBatchItems, MaxItemBytes: cfg.MaxItemBytes},
	}
	if cfg.LimitsFile == "" {
		return p, nil
	}
	// #nosec G304 -- configuration file path is operator-provided
	content, err := os.ReadFile(cfg.LimitsFile)
	if err != nil {
		return LimitsProfile{}, fmt.Errorf("op=config.LoadLimits: %w", err)
	}
	var file LimitsProfile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return LimitsProfile{}, fmt.Errorf("op=config.LoadLimits: parse: %w", err)
	}
	if file.Default.MaxItems > 0 {
		p.Default.MaxItems = file.Default.MaxItems
	}
	if file.Default.MaxItemBytes > 0 {
		p.Default.MaxItemBytes = file.Default.MaxItemBytes
	}
	p.Clients = file.Clients
	return p, nil
}
