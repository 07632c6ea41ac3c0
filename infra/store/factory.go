package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/planboard/core/factory"
	"github.com/kilianp07/planboard/core/model"
	"github.com/kilianp07/planboard/core/planboard"
)

var registry = factory.NewRegistry[planboard.Store]()

type sqlConf struct {
	DSN         string        `json:"dsn"`
	OpenTimeout time.Duration `json:"open_timeout"`
}

func sqlFactory(d Dialect) factory.Factory[planboard.Store] {
	return func(conf map[string]any) (planboard.Store, error) {
		c := sqlConf{OpenTimeout: 10 * time.Second}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.DSN == "" {
			return nil, fmt.Errorf("%w: %s store needs a dsn", model.ErrConfiguration, d)
		}
		ctx, cancel := context.WithTimeout(context.Background(), c.OpenTimeout)
		defer cancel()
		s, err := Open(ctx, d, c.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func init() {
	registry.MustRegister("memory", func(map[string]any) (planboard.Store, error) {
		return planboard.NewMemoryStore(), nil
	})
	registry.MustRegister(string(SQLite), sqlFactory(SQLite))
	registry.MustRegister(string(Postgres), sqlFactory(Postgres))
}

// New creates the store described by cfg. An empty type selects the memory
// store.
func New(cfg factory.ModuleConfig) (planboard.Store, error) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	return registry.Create(cfg)
}

// Types lists the available store types.
func Types() []string { return registry.Names() }
