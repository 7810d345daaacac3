package metrics

import (
	"errors"
	"testing"
)

type depositOnly struct{ deposits int }

func (d *depositOnly) RecordDeposit(DepositEvent) error { d.deposits++; return nil }

type recordSink struct {
	depositOnly
	fires, actions, fleets int
}

func (r *recordSink) RecordFire(FireEvent) error     { r.fires++; return nil }
func (r *recordSink) RecordAction(ActionEvent) error { r.actions++; return nil }
func (r *recordSink) RecordFleet(FleetEvent) error   { r.fleets++; return nil }

type failingSink struct{}

func (failingSink) RecordDeposit(DepositEvent) error { return errors.New("write failed") }

func TestMultiSinkForwardsOptionalRecorders(t *testing.T) {
	plain := &depositOnly{}
	full := &recordSink{}
	m := NewMultiSink(plain, full)

	if err := m.RecordDeposit(DepositEvent{ChargerID: "c1"}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := Fire(m, FireEvent{ChargerID: "c1", Outcome: "fired"}); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if err := Action(m, ActionEvent{ChargerID: "c1", Action: "turn_on"}); err != nil {
		t.Fatalf("action: %v", err)
	}
	if err := Fleet(m, FleetEvent{Total: 2}); err != nil {
		t.Fatalf("fleet: %v", err)
	}
	if plain.deposits != 1 || full.deposits != 1 {
		t.Fatalf("deposits not forwarded: %d %d", plain.deposits, full.deposits)
	}
	if full.fires != 1 || full.actions != 1 || full.fleets != 1 {
		t.Fatalf("optional events not forwarded: %+v", full)
	}
}

func TestMultiSinkStopsOnError(t *testing.T) {
	after := &depositOnly{}
	m := NewMultiSink(failingSink{}, after)
	if err := m.RecordDeposit(DepositEvent{}); err == nil {
		t.Fatal("expected error")
	}
	if after.deposits != 0 {
		t.Fatal("sink after failure should not be called")
	}
}

func TestHelpersIgnoreUnsupportedSinks(t *testing.T) {
	s := &depositOnly{}
	if err := Fire(s, FireEvent{}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

type closingSink struct {
	depositOnly
	closed bool
}

func (c *closingSink) Close() { c.closed = true }

func TestMultiSinkCloseReachesClosers(t *testing.T) {
	c := &closingSink{}
	NewMultiSink(&depositOnly{}, c).Close()
	if !c.closed {
		t.Fatal("closer not reached")
	}
}
