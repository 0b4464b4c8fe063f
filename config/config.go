// Package config loads the process configuration from a JSON or YAML file
// with optional K_ environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	coremetrics "github.com/minefleet/minefleet/core/metrics"
	"github.com/minefleet/minefleet/core/sim"
	"github.com/minefleet/minefleet/infra/mqtt"
	"github.com/minefleet/minefleet/infra/relay"
)

// Config is the full configuration tree shared by every subcommand. Each
// process reads only the sections it needs.
type Config struct {
	MQTT    mqtt.Config        `json:"mqtt"`
	Sim     sim.Config         `json:"sim"`
	Relay   relay.Config       `json:"relay"`
	Metrics coremetrics.Config `json:"metrics"`
}

// Load reads the file at path, applies K_ environment overrides (for
// example K_MQTT__BROKER), fills defaults and validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := loadEnv(k); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() (*Config, error) {
	k := koanf.New(".")
	if err := loadEnv(k); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnv(k *koanf.Koanf) error {
	return k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
}

func (c *Config) finish() error {
	c.MQTT.SetDefaults()
	c.Sim.SetDefaults()
	c.Relay.SetDefaults()
	c.Metrics.SetDefaults()
	if err := c.Sim.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
