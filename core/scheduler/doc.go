// Package scheduler implements the gate-closure scheduler. Three recurring
// triggers emit day-ahead closure, intraday closure and move-to-operate
// signals to registered handlers and channel subscribers. Firings run on a
// small worker pool; each trigger can be suspended without unregistering
// its timer.
package scheduler
