package metrics

import "github.com/kilianp07/dobi/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr serves /metrics when a prometheus sink is configured.
	PrometheusAddr string `json:"prometheus_addr"`
}

// Has reports whether a sink of the given type is configured.
func (c Config) Has(typ string) bool {
	for _, s := range c.Sinks {
		if s.Type == typ {
			return true
		}
	}
	return false
}
