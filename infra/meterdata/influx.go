// Package meterdata provides metering collaborators for settlement.
package meterdata

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/shopspring/decimal"

	"github.com/kilianp07/planboard/core/ptu"
	"github.com/kilianp07/planboard/core/settlement"
	"github.com/kilianp07/planboard/infra/logger"
)

// InfluxConfig locates the metered power series.
type InfluxConfig struct {
	URL           string `json:"url" yaml:"url"`
	Token         string `json:"token" yaml:"token"`
	Org           string `json:"org" yaml:"org"`
	Bucket        string `json:"bucket" yaml:"bucket"`
	Measurement   string `json:"measurement" yaml:"measurement"`
	Field         string `json:"field" yaml:"field"`
	ConnectionTag string `json:"connection_tag" yaml:"connection_tag"`
	// SubtractBaseline reports delivered flexibility as baseline minus
	// measured power for PTUs with a baseline.
	SubtractBaseline bool `json:"subtract_baseline" yaml:"subtract_baseline"`
}

func (c *InfluxConfig) setDefaults() {
	if c.Measurement == "" {
		c.Measurement = "meter_power"
	}
	if c.Field == "" {
		c.Field = "power"
	}
	if c.ConnectionTag == "" {
		c.ConnectionTag = "connection"
	}
}

// InfluxProvider reads measured power from InfluxDB and averages it per
// PTU, summing over the connections of the group.
type InfluxProvider struct {
	client influxdb2.Client
	query  api.QueryAPI
	cfg    InfluxConfig
	cal    *ptu.Calendar
	log    logger.Logger
}

var _ settlement.MeterDataProvider = (*InfluxProvider)(nil)

// NewInfluxProvider creates a provider for the given endpoint.
func NewInfluxProvider(cfg InfluxConfig, cal *ptu.Calendar) *InfluxProvider {
	cfg.setDefaults()
	client := influxdb2.NewClientWithOptions(strings.TrimSuffix(cfg.URL, "/"), cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 30 * time.Second}))
	return &InfluxProvider{
		client: client,
		query:  client.QueryAPI(cfg.Org),
		cfg:    cfg,
		cal:    cal,
		log:    logger.New("meterdata"),
	}
}

// Close releases the underlying client.
func (p *InfluxProvider) Close() { p.client.Close() }

func (p *InfluxProvider) flux(req settlement.MeterRequest) string {
	start := p.cal.Midnight(req.Period)
	stop := p.cal.Midnight(req.Period.AddDate(0, 0, 1))
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", p.cfg.Bucket)
	fmt.Fprintf(&b, "  |> range(start: %s, stop: %s)\n", start.UTC().Format(time.RFC3339), stop.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %q and r._field == %q)\n", p.cfg.Measurement, p.cfg.Field)
	conds := make([]string, len(req.Connections))
	for i, c := range req.Connections {
		conds[i] = fmt.Sprintf("r.%s == %q", p.cfg.ConnectionTag, c)
	}
	fmt.Fprintf(&b, "  |> filter(fn: (r) => %s)\n", strings.Join(conds, " or "))
	fmt.Fprintf(&b, "  |> aggregateWindow(every: %dm, fn: mean, createEmpty: false, timeSrc: \"_start\")\n", p.cal.Duration())
	return b.String()
}

// DeliveredPower returns the power of the requested PTUs. PTUs without
// measurements are left out, so a group without connections yields an
// empty map and nothing is queried.
func (p *InfluxProvider) DeliveredPower(ctx context.Context, req settlement.MeterRequest) (map[int]decimal.Decimal, error) {
	if len(req.Connections) == 0 {
		p.log.Warnf("connection group %s has no connections on %s", req.ConnectionGroupID, req.Period.Format(time.DateOnly))
		return map[int]decimal.Decimal{}, nil
	}
	result, err := p.query.Query(ctx, p.flux(req))
	if err != nil {
		return nil, fmt.Errorf("query meter data for %s: %w", req.ConnectionGroupID, err)
	}
	defer func() { _ = result.Close() }()

	wanted := make(map[int]bool, len(req.Indices))
	for _, i := range req.Indices {
		wanted[i] = true
	}
	measured := map[int]decimal.Decimal{}
	for result.Next() {
		rec := result.Record()
		idx := p.cal.Index(rec.Time())
		if !wanted[idx] {
			continue
		}
		v, ok := rec.Value().(float64)
		if !ok {
			p.log.Warnf("ignoring non numeric meter value %v at %s", rec.Value(), rec.Time().Format(time.RFC3339))
			continue
		}
		measured[idx] = measured[idx].Add(decimal.NewFromFloat(v))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read meter data for %s: %w", req.ConnectionGroupID, err)
	}
	if !p.cfg.SubtractBaseline {
		return measured, nil
	}
	out := make(map[int]decimal.Decimal, len(measured))
	for i, m := range measured {
		if base, ok := req.Baseline[i]; ok {
			out[i] = base.Sub(m)
			continue
		}
		out[i] = m
	}
	return out, nil
}
