// Package metrics defines the recorder interfaces used to observe the
// planboard. Sinks like PromSink and InfluxSink record document
// transitions, gate-closure signals and settlement outcomes and can be
// combined with NewMultiSink. The factory helpers return a MultiSink
// automatically when multiple sinks are configured.
package metrics
