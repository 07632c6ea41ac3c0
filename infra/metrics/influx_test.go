package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/planboard/core/metrics"
)

func recordingServer(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, strings.TrimSpace(string(b)))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), bodies...)
	}
}

func TestInfluxSink_RecordDocumentTransition(t *testing.T) {
	srv, bodies := recordingServer(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	now := time.Now()
	ev := coremetrics.DocumentTransition{DocumentType: "PROGNOSIS", ConnectionGroupID: "brp.example", From: "ACCEPTED", To: "PROCESSED", Time: now}
	if err := sink.RecordDocumentTransition(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("document_transition").
		AddTag("document_type", "PROGNOSIS").
		AddTag("connection_group", "brp.example").
		AddTag("from", "ACCEPTED").
		AddTag("to", "PROCESSED").
		AddField("count", 1).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	got := bodies()
	if len(got) != 1 || got[0] != expected {
		t.Errorf("unexpected body: %#v", got)
	}
}

func TestInfluxSink_RecordOrderSettlement(t *testing.T) {
	srv, bodies := recordingServer(t)
	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")
	defer sink.Close()
	period := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	ev := coremetrics.OrderSettlement{
		OrderSequence:     42,
		ParticipantDomain: "agr.example",
		ConnectionGroupID: "ean.1",
		Period:            period,
		OrderedPower:      10,
		DeliveredPower:    5,
		Price:             5.00004,
	}
	if err := sink.RecordOrderSettlement(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	p := write.NewPointWithMeasurement("flex_order_settlement").
		AddTag("connection_group", "ean.1").
		AddTag("participant_domain", "agr.example").
		AddTag("flex_order", "42").
		AddField("ordered_power", 10.0).
		AddField("delivered_power", 5.0).
		AddField("price", 5.0).
		SetTime(period)
	exp := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	got := bodies()
	if len(got) != 1 || got[0] != exp {
		t.Errorf("bodies: %#v", got)
	}
}

func TestInfluxSink_RecordMeterFetch(t *testing.T) {
	srv, bodies := recordingServer(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()
	if err := sink.RecordMeterFetch(coremetrics.MeterFetch{Latency: 1500 * time.Microsecond, Err: true}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got := bodies()
	if len(got) != 1 || !strings.HasPrefix(got[0], "meter_fetch,error=true latency_ms=1.5 ") {
		t.Errorf("bodies: %#v", got)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
