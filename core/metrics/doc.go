// Package metrics defines the observability events emitted by the
// simulator (deposits, scheduler fires, actions, fleet status) and the sink
// interfaces that record them. Concrete Prometheus and InfluxDB sinks live
// in infra/metrics and register themselves with the factory registry so the
// configuration can list several sinks; they are then combined in a
// MultiSink.
package metrics
