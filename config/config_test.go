package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kilianp07/planboard/core/model"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `planboard:
  ptu_duration_minutes: 15
  time_zone: "Europe/Amsterdam"
  host_role: "agr"
  host_domain: "agr.example.com"
gate_closure:
  day_ahead_gate_closure_time: "12:00"
  day_ahead_gate_closure_ptus: 4
  intraday_gate_closure_ptus: 2
settlement:
  concurrency: 8
  meter_rate_per_second: 5
store:
  type: "sqlite"
  conf:
    dsn: "file:planboard.db"
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "planboard"
  topic_prefix: "market"
metrics:
  sinks:
    - type: "prometheus"
  prometheus_addr: ":2112"
meter_data:
  type: "influx"
  influx:
    url: "http://localhost:8086"
    bucket: "meters"
audit:
  path: "audit/trail.jsonl"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"ptu_duration", cfg.Planboard.PtuDurationMinutes, 15},
		{"host_role", cfg.Planboard.HostRole, "agr"},
		{"host_domain", cfg.Planboard.HostDomain, "agr.example.com"},
		{"closure_time", cfg.GateClosure.DayAheadClosureTime, "12:00"},
		{"closure_ptus", cfg.GateClosure.DayAheadClosurePtus, 4},
		{"intraday_ptus", cfg.GateClosure.IntradayClosurePtus, 2},
		{"operate_skew_default", cfg.GateClosure.OperateSkewSeconds, 30},
		{"concurrency", cfg.Settlement.Concurrency, 8},
		{"meter_rate", cfg.Settlement.MeterRatePerSecond, 5},
		{"meter_timeout_default", cfg.Settlement.MeterTimeoutSeconds, 30},
		{"store", cfg.Store.Type, "sqlite"},
		{"store_dsn", cfg.Store.Conf["dsn"], "file:planboard.db"},
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"topic_prefix", cfg.MQTT.TopicPrefix, "market"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "prometheus", true},
		{"prometheus_addr", cfg.Metrics.PrometheusAddr, ":2112"},
		{"meter_data", cfg.MeterData.Type, "influx"},
		{"influx_bucket", cfg.MeterData.Influx.Bucket, "meters"},
		{"audit_path", cfg.Audit.Path, "audit/trail.jsonl"},
		{"log_level", cfg.Logging.Level, "info"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
	role, err := cfg.Planboard.Role()
	if err != nil || role != model.RoleAGR {
		t.Fatalf("role: %v %v", role, err)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"planboard":{"host_role":"MDC"},"store":{"type":"memory"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Planboard.HostRole != "MDC" || cfg.Planboard.TimeZone != "Europe/Amsterdam" {
		t.Fatalf("unexpected planboard config: %+v", cfg.Planboard)
	}
	cal, err := cfg.Planboard.Calendar()
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}
	if cal.Duration() != 15 {
		t.Fatalf("expected default ptu duration, got %d", cal.Duration())
	}
}

func TestDeploymentVariables(t *testing.T) {
	t.Setenv("PTU_DURATION_MINUTES", "5")
	t.Setenv("TIME_ZONE", "UTC")
	t.Setenv("HOST_ROLE", "BRP")
	t.Setenv("DAY_AHEAD_GATE_CLOSURE_TIME", "13:30")
	t.Setenv("DAY_AHEAD_GATE_CLOSURE_PTUS", "6")
	t.Setenv("INTRADAY_GATE_CLOSURE_PTUS", "3")
	t.Setenv("BYPASS_SCHEDULED_EVENTS", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Planboard.PtuDurationMinutes != 5 || cfg.Planboard.TimeZone != "UTC" || cfg.Planboard.HostRole != "BRP" {
		t.Fatalf("planboard variables not applied: %+v", cfg.Planboard)
	}
	g := cfg.GateClosure
	if g.DayAheadClosureTime != "13:30" || g.DayAheadClosurePtus != 6 || g.IntradayClosurePtus != 3 || !g.Bypass {
		t.Fatalf("gate closure variables not applied: %+v", g)
	}
}

func TestPrefixedOverridesWin(t *testing.T) {
	path := writeConfig(t, "config.yaml", "planboard:\n  host_role: DSO\n")
	t.Setenv("HOST_ROLE", "AGR")
	t.Setenv("K_PLANBOARD__HOST_ROLE", "CRO")
	t.Setenv("K_SETTLEMENT__CONCURRENCY", "2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Planboard.HostRole != "CRO" {
		t.Fatalf("expected K_ override, got %s", cfg.Planboard.HostRole)
	}
	if cfg.Settlement.Concurrency != 2 {
		t.Fatalf("expected concurrency 2, got %d", cfg.Settlement.Concurrency)
	}
}

func TestInvalidConfiguration(t *testing.T) {
	cases := map[string]string{
		"role":          "planboard:\n  host_role: XYZ\n",
		"zone":          "planboard:\n  time_zone: Mars/Olympus\n",
		"duration":      "planboard:\n  ptu_duration_minutes: -15\n",
		"zero_duration": "planboard:\n  ptu_duration_minutes: 0\n",
		"closure_time":  "gate_closure:\n  day_ahead_gate_closure_time: \"25:99\"\n",
		"meter_data":    "meter_data:\n  type: influx\n",
		"retention":     "retention:\n  types: [invoice]\n",
		"log_format":    "logging:\n  format: xml\n",
		"metrics_sink":  "metrics:\n  sinks:\n    - conf: {}\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", data))
			if !errors.Is(err, model.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestZeroPtuDurationFromEnvironment(t *testing.T) {
	t.Setenv("PTU_DURATION_MINUTES", "0")
	cfg, err := Load("")
	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v (config %+v)", err, cfg)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := Load(writeConfig(t, "config.toml", "")); err == nil {
		t.Fatal("expected error for toml")
	}
}

func TestRetentionTypes(t *testing.T) {
	r := RetentionConfig{Types: []string{"order", "prognosis"}}
	types, err := r.DocumentTypes()
	if err != nil {
		t.Fatalf("types: %v", err)
	}
	if len(types) != 2 || types[0] != model.FlexOrder || types[1] != model.Prognosis {
		t.Fatalf("unexpected types %v", types)
	}
	all, _ := RetentionConfig{}.DocumentTypes()
	if len(all) != len(model.DocumentTypes) {
		t.Fatalf("expected every type, got %v", all)
	}
}
