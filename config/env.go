package config

// deploymentVars maps the upper case deployment variables onto their
// configuration keys.
var deploymentVars = map[string]string{
	"PTU_DURATION_MINUTES":        "planboard.ptu_duration_minutes",
	"TIME_ZONE":                   "planboard.time_zone",
	"HOST_ROLE":                   "planboard.host_role",
	"DAY_AHEAD_GATE_CLOSURE_TIME": "gate_closure.day_ahead_gate_closure_time",
	"DAY_AHEAD_GATE_CLOSURE_PTUS": "gate_closure.day_ahead_gate_closure_ptus",
	"INTRADAY_GATE_CLOSURE_PTUS":  "gate_closure.intraday_gate_closure_ptus",
	"BYPASS_SCHEDULED_EVENTS":     "gate_closure.bypass_scheduled_events",
}

// deploymentKey returns the key for a recognized variable and "" for any
// other, which koanf skips.
func deploymentKey(name string) string {
	return deploymentVars[name]
}
