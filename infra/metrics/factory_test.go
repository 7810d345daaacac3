package metrics

import (
	"testing"

	"github.com/kilianp07/dobi/core/factory"
	coremetrics "github.com/kilianp07/dobi/core/metrics"
)

func TestBuiltinSinksRegistered(t *testing.T) {
	s, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "prometheus", Conf: map[string]any{"namespace": "dobi_test"}}})
	if err != nil {
		t.Fatalf("create prometheus sink: %v", err)
	}
	if _, ok := s.(*PromSink); !ok {
		t.Fatalf("expected *PromSink, got %T", s)
	}
	s, err = coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	if err != nil {
		t.Fatalf("create nop sink: %v", err)
	}
	if _, ok := s.(coremetrics.NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", s)
	}
}
