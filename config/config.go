package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/planboard/core/factory"
	"github.com/kilianp07/planboard/core/metrics"
	"github.com/kilianp07/planboard/core/model"
	"github.com/kilianp07/planboard/core/scheduler"
	"github.com/kilianp07/planboard/core/settlement"
	"github.com/kilianp07/planboard/infra/audit"
	"github.com/kilianp07/planboard/infra/mqtt"
)

const ptuDurationKey = "planboard.ptu_duration_minutes"

type Config struct {
	Planboard   PlanboardConfig      `json:"planboard"`
	GateClosure scheduler.Config     `json:"gate_closure"`
	Settlement  settlement.Config    `json:"settlement"`
	Store       factory.ModuleConfig `json:"store"`
	Audit       audit.Config         `json:"audit"`
	MQTT        mqtt.Config          `json:"mqtt"`
	Metrics     metrics.Config       `json:"metrics"`
	MeterData   MeterDataConfig      `json:"meter_data"`
	Retention   RetentionConfig      `json:"retention"`
	Logging     LoggingConfig        `json:"logging"`
}

// Load reads the configuration file at path, then applies the upper case
// deployment variables and finally the K_ prefixed overrides. An empty path
// loads from the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
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
	}
	if err := k.Load(env.Provider("", ".", deploymentKey), nil); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	// An explicit zero duration must reach validation instead of the default.
	if k.Exists(ptuDurationKey) {
		cfg.Planboard.PtuDurationMinutes = k.Int(ptuDurationKey)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section with its defaults.
func (c *Config) SetDefaults() {
	c.Planboard.SetDefaults()
	c.GateClosure.SetDefaults()
	c.Settlement.SetDefaults()
	c.MeterData.SetDefaults()
	c.Retention.SetDefaults()
	c.Logging.SetDefaults()
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
}

// Validate checks every section. Each failure wraps model.ErrConfiguration.
func (c Config) Validate() error {
	checks := []func() error{
		c.Planboard.Validate,
		c.GateClosure.Validate,
		c.Settlement.Validate,
		c.Metrics.Validate,
		c.MeterData.Validate,
		c.Retention.Validate,
		c.Logging.Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			if !errors.Is(err, model.ErrConfiguration) {
				err = fmt.Errorf("%w: %v", model.ErrConfiguration, err)
			}
			return err
		}
	}
	return nil
}
