package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/planboard/core/model"
	"github.com/kilianp07/planboard/core/ptu"
	"github.com/kilianp07/planboard/infra/meterdata"
)

// PlanboardConfig describes the market this host takes part in.
type PlanboardConfig struct {
	PtuDurationMinutes int    `json:"ptu_duration_minutes"`
	TimeZone           string `json:"time_zone"`
	HostRole           string `json:"host_role"`
	// HostDomain is the participant domain of this host.
	HostDomain string `json:"host_domain"`
}

func (c *PlanboardConfig) SetDefaults() {
	if c.PtuDurationMinutes == 0 {
		c.PtuDurationMinutes = 15
	}
	if c.TimeZone == "" {
		c.TimeZone = "Europe/Amsterdam"
	}
	if c.HostRole == "" {
		c.HostRole = "DSO"
	}
}

func (c PlanboardConfig) Validate() error {
	if _, err := c.Calendar(); err != nil {
		return err
	}
	_, err := c.Role()
	return err
}

// Calendar builds the PTU calendar of the market.
func (c PlanboardConfig) Calendar() (*ptu.Calendar, error) {
	return ptu.NewCalendar(c.PtuDurationMinutes, c.TimeZone)
}

// Role parses HostRole.
func (c PlanboardConfig) Role() (model.Role, error) {
	return model.ParseRole(c.HostRole)
}

// MeterDataConfig selects the metering collaborator used by settlement.
type MeterDataConfig struct {
	// Type is "static" or "influx".
	Type   string                 `json:"type"`
	Influx meterdata.InfluxConfig `json:"influx"`
}

func (c *MeterDataConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "static"
	}
}

func (c MeterDataConfig) Validate() error {
	switch strings.ToLower(c.Type) {
	case "static":
		return nil
	case "influx":
		if c.Influx.URL == "" || c.Influx.Bucket == "" {
			return fmt.Errorf("%w: influx meter data needs url and bucket", model.ErrConfiguration)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown meter data type %q", model.ErrConfiguration, c.Type)
}

// RetentionConfig controls the periodic removal of old documents.
type RetentionConfig struct {
	// AfterDays removes documents created more than this many days ago.
	// Zero disables the job.
	AfterDays int `json:"after_days"`
	// Types restricts the cleanup to these document types. Empty means all.
	Types         []string `json:"types"`
	IntervalHours int      `json:"interval_hours"`
}

func (c *RetentionConfig) SetDefaults() {
	if c.IntervalHours <= 0 {
		c.IntervalHours = 24
	}
}

func (c RetentionConfig) Validate() error {
	if c.AfterDays < 0 {
		return fmt.Errorf("%w: retention days must not be negative", model.ErrConfiguration)
	}
	_, err := c.DocumentTypes()
	return err
}

// DocumentTypes parses Types.
func (c RetentionConfig) DocumentTypes() ([]model.DocumentType, error) {
	if len(c.Types) == 0 {
		return model.DocumentTypes, nil
	}
	out := make([]model.DocumentType, 0, len(c.Types))
	for _, s := range c.Types {
		t, err := model.ParseDocumentType(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrConfiguration, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Interval returns the pause between two cleanup runs.
func (c RetentionConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}
