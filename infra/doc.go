// Package infra holds the adapters of the planboard to external systems:
// SQL storage of documents and settlements, the rotating audit trail, MQTT
// publication of signals and transitions, metrics sinks and metered power
// from InfluxDB. Adapters implement interfaces declared by the core
// packages and never the other way around.
package infra
