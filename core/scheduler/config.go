package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/planboard/core/model"
)

// Config defines the trigger parameters.
type Config struct {
	// DayAheadClosureTime is the local time of day ("HH:MM") of the
	// day-ahead gate closure.
	DayAheadClosureTime string `json:"day_ahead_gate_closure_time" yaml:"day_ahead_gate_closure_time"`
	// DayAheadClosurePtus moves the day-ahead firing that many PTUs ahead
	// of the closure time.
	DayAheadClosurePtus int `json:"day_ahead_gate_closure_ptus" yaml:"day_ahead_gate_closure_ptus"`
	// IntradayClosurePtus is the number of PTUs after the current one that
	// are closed for intraday trading.
	IntradayClosurePtus int `json:"intraday_gate_closure_ptus" yaml:"intraday_gate_closure_ptus"`
	// OperateSkewSeconds is added to the firing instant of move-to-operate.
	OperateSkewSeconds int  `json:"operate_skew_seconds" yaml:"operate_skew_seconds"`
	Workers            int  `json:"workers" yaml:"workers"`
	Bypass             bool `json:"bypass_scheduled_events" yaml:"bypass_scheduled_events"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.DayAheadClosureTime == "" {
		c.DayAheadClosureTime = "14:00"
	}
	if c.OperateSkewSeconds == 0 {
		c.OperateSkewSeconds = 30
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
}

// Validate checks the configuration. Errors wrap model.ErrConfiguration.
func (c Config) Validate() error {
	if _, _, err := c.closureTime(); err != nil {
		return err
	}
	if c.DayAheadClosurePtus < 0 || c.IntradayClosurePtus < 0 {
		return fmt.Errorf("%w: gate closure ptus must not be negative", model.ErrConfiguration)
	}
	if c.OperateSkewSeconds < 0 {
		return fmt.Errorf("%w: operate skew must not be negative", model.ErrConfiguration)
	}
	return nil
}

// OperateSkew returns the move-to-operate skew.
func (c Config) OperateSkew() time.Duration {
	return time.Duration(c.OperateSkewSeconds) * time.Second
}

func (c Config) closureTime() (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(c.DayAheadClosureTime))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: day-ahead gate closure time %q: %v", model.ErrConfiguration, c.DayAheadClosureTime, err)
	}
	return t.Hour(), t.Minute(), nil
}

// LoadConfig reads a gate-closure file (JSON or YAML) on top of base. Keys
// absent from the file keep the value of base. The result is validated.
func LoadConfig(path string, base Config) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return base, fmt.Errorf("%w: gate closure file: %v", model.ErrConfiguration, err)
	}
	defer f.Close()
	cfg, err := decodeOnto(f, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."), base)
	if err != nil {
		return base, fmt.Errorf("%w: gate closure file %s: %v", model.ErrConfiguration, path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

func decodeOnto(r io.Reader, format string, cfg Config) (Config, error) {
	var err error
	switch format {
	case "yaml", "yml":
		err = yaml.NewDecoder(r).Decode(&cfg)
	case "json":
		err = json.NewDecoder(r).Decode(&cfg)
	default:
		return cfg, fmt.Errorf("unsupported format %q", format)
	}
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return cfg, err
}
