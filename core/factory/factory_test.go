package factory

import (
	"errors"
	"testing"
)

type sink struct {
	URL    string
	Bucket string
	Port   int
}

type sinkConf struct {
	URL    string `json:"url"`
	Bucket string `json:"bucket"`
	Port   int    `json:"port"`
}

func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry[*sink]()
	if err := reg.Register("influx", func(conf map[string]any) (*sink, error) {
		var c sinkConf
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		return &sink{URL: c.URL, Bucket: c.Bucket, Port: c.Port}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	inst, err := reg.Create(ModuleConfig{Type: "influx", Conf: map[string]any{
		"url": "http://localhost:8086", "bucket": "chargers", "port": "8086",
	}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inst.Bucket != "chargers" || inst.Port != 8086 {
		t.Fatalf("unexpected instance %+v", inst)
	}
}

func TestRegistry_Errors(t *testing.T) {
	reg := NewRegistry[int]()
	if err := reg.Register("nop", func(map[string]any) (int, error) { return 1, nil }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("nop", func(map[string]any) (int, error) { return 2, nil }); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := reg.Register("other", nil); err == nil {
		t.Fatal("expected nil factory error")
	}
	if _, err := reg.Create(ModuleConfig{Type: "missing"}); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if got := reg.Types(); len(got) != 1 || got[0] != "nop" {
		t.Fatalf("unexpected types %v", got)
	}
}
