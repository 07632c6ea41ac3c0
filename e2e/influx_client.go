package e2e

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// MeterWriter seeds metered power into InfluxDB the way a metering head end
// would, one point per connection and instant.
type MeterWriter struct {
	client      influxdb2.Client
	write       api.WriteAPIBlocking
	measurement string
}

// NewMeterWriter creates a writer for an already initialised bucket.
func NewMeterWriter(url, token, org, bucket, measurement string) *MeterWriter {
	c := influxdb2.NewClient(url, token)
	return &MeterWriter{
		client:      c,
		write:       c.WriteAPIBlocking(org, bucket),
		measurement: measurement,
	}
}

// WritePower stores the power of a connection at ts.
func (w *MeterWriter) WritePower(ctx context.Context, connection string, ts time.Time, kw float64) error {
	p := influxdb2.NewPoint(w.measurement,
		map[string]string{"connection": connection},
		map[string]interface{}{"power": kw},
		ts)
	return w.write.WritePoint(ctx, p)
}

// Close releases the underlying client resources.
func (w *MeterWriter) Close() { w.client.Close() }
