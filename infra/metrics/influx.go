package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/planboard/core/metrics"
	"github.com/kilianp07/planboard/infra/logger"
)

// InfluxSink writes planboard activity to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

// RecordDocumentTransition writes one status change.
func (s *InfluxSink) RecordDocumentTransition(ev coremetrics.DocumentTransition) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("document_transition").
		AddTag("document_type", ev.DocumentType).
		AddTag("connection_group", ev.ConnectionGroupID).
		AddTag("from", ev.From).
		AddTag("to", ev.To).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSignal writes one scheduler firing.
func (s *InfluxSink) RecordSignal(ev coremetrics.SignalEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("gate_signal").
		AddTag("trigger", ev.Trigger).
		AddTag("suppressed", strconv.FormatBool(ev.Suppressed)).
		AddField("period", ev.Period.Format(time.DateOnly)).
		AddField("ptu_index", ev.PtuIndex).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordOrderSettlement writes the totals of one settled flex order.
func (s *InfluxSink) RecordOrderSettlement(ev coremetrics.OrderSettlement) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("flex_order_settlement").
		AddTag("connection_group", ev.ConnectionGroupID).
		AddTag("participant_domain", ev.ParticipantDomain).
		AddTag("flex_order", strconv.FormatInt(ev.OrderSequence, 10)).
		AddField("ordered_power", round4(ev.OrderedPower)).
		AddField("delivered_power", round4(ev.DeliveredPower)).
		AddField("price", round4(ev.Price)).
		SetTime(ev.Period)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSettlementRun writes a run summary.
func (s *InfluxSink) RecordSettlementRun(ev coremetrics.SettlementRun) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("settlement_run").
		AddTag("month", time.Date(ev.Year, ev.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")).
		AddTag("complete", strconv.FormatBool(ev.Complete)).
		AddField("settled", ev.Settled).
		AddField("skipped", ev.Skipped).
		AddField("failed", ev.Failed).
		AddField("duration_ms", round4(float64(ev.Duration)/float64(time.Millisecond))).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordMeterFetch writes the latency of one metering call.
func (s *InfluxSink) RecordMeterFetch(ev coremetrics.MeterFetch) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("meter_fetch").
		AddTag("error", strconv.FormatBool(ev.Err)).
		AddField("latency_ms", round4(float64(ev.Latency)/float64(time.Millisecond))).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
