package metrics

import (
	"fmt"

	"github.com/kilianp07/planboard/core/factory"
	coremetrics "github.com/kilianp07/planboard/core/metrics"
	"github.com/kilianp07/planboard/core/model"
)

// InfluxSinkConfig is the conf block of an "influx" metrics sink.
type InfluxSinkConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	// Strict disables the fallback to a no-op sink when the health check fails.
	Strict bool `json:"strict"`
}

func decodeInfluxSink(conf map[string]any) (InfluxSinkConfig, error) {
	var c InfluxSinkConfig
	if err := factory.Decode(conf, &c); err != nil {
		return c, err
	}
	if c.URL == "" || c.Bucket == "" {
		return c, fmt.Errorf("%w: influx sink needs url and bucket", model.ErrConfiguration)
	}
	return c, nil
}

func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterMetricsSink("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		s, err := NewPromSink()
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		c, err := decodeInfluxSink(conf)
		if err != nil {
			return nil, err
		}
		if c.Strict {
			return NewInfluxSink(c.URL, c.Token, c.Org, c.Bucket), nil
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
	})
}
