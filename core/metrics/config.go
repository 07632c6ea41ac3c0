package metrics

import (
	"fmt"

	"github.com/kilianp07/planboard/core/factory"
	"github.com/kilianp07/planboard/core/model"
)

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks" yaml:"sinks"`
	// PrometheusAddr enables the /metrics endpoint when non-empty.
	PrometheusAddr string `json:"prometheus_addr" yaml:"prometheus_addr"`
}

// Validate checks that every sink names a type. Unknown types are only
// detected when the sinks are created.
func (c Config) Validate() error {
	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("%w: metrics sink %d has no type", model.ErrConfiguration, i)
		}
	}
	return nil
}
