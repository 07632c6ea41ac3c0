package settlement

import (
	"fmt"
	"time"

	"github.com/kilianp07/planboard/core/model"
)

// Config tunes a settlement run.
type Config struct {
	// Concurrency bounds the number of orders settled at once.
	Concurrency int `json:"concurrency" yaml:"concurrency"`
	// MeterTimeoutSeconds bounds each metering call.
	MeterTimeoutSeconds int `json:"meter_timeout_seconds" yaml:"meter_timeout_seconds"`
	// MeterRatePerSecond throttles metering calls. Zero disables throttling.
	MeterRatePerSecond int `json:"meter_rate_per_second" yaml:"meter_rate_per_second"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MeterTimeoutSeconds <= 0 {
		c.MeterTimeoutSeconds = 30
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MeterRatePerSecond < 0 {
		return fmt.Errorf("%w: meter rate must not be negative", model.ErrConfiguration)
	}
	return nil
}

// MeterTimeout returns the bound of a single metering call.
func (c Config) MeterTimeout() time.Duration {
	return time.Duration(c.MeterTimeoutSeconds) * time.Second
}
