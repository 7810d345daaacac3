package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositKind distinguishes timer driven deposits from manual ones.
type DepositKind string

const (
	DepositScheduled DepositKind = "scheduled"
	DepositManual    DepositKind = "manual"
)

// DepositEvent is emitted after a deposit has been persisted.
type DepositEvent struct {
	ChargerID string
	Kind      DepositKind
	Amount    decimal.Decimal
	Cost      decimal.Decimal
	Balance   decimal.Decimal
	TxRef     string
	OnChain   bool
	Time      time.Time
}

// MetricsSink records deposits. It is the one event every sink must handle.
type MetricsSink interface {
	RecordDeposit(ev DepositEvent) error
}

// FireEvent captures the outcome of one scheduled timer.
type FireEvent struct {
	ChargerID string
	Outcome   string
	Reason    string
	Time      time.Time
}

// FireRecorder records scheduler fires.
type FireRecorder interface {
	RecordFire(ev FireEvent) error
}

// ActionEvent captures an executed or rejected charger action.
type ActionEvent struct {
	ChargerID string
	Action    string
	Success   bool
	Time      time.Time
}

// ActionRecorder records charger actions.
type ActionRecorder interface {
	RecordAction(ev ActionEvent) error
}

// FleetEvent is a fleet status snapshot taken after a status sweep or a
// daily reset.
type FleetEvent struct {
	Total   int
	Active  int
	Planned int
	Time    time.Time
}

// FleetRecorder records fleet snapshots.
type FleetRecorder interface {
	RecordFleet(ev FleetEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDeposit(DepositEvent) error { return nil }
func (NopSink) RecordFire(FireEvent) error       { return nil }
func (NopSink) RecordAction(ActionEvent) error   { return nil }
func (NopSink) RecordFleet(FleetEvent) error     { return nil }

// Fire records ev on s when s supports scheduler outcomes.
func Fire(s MetricsSink, ev FireEvent) error {
	if r, ok := s.(FireRecorder); ok {
		return r.RecordFire(ev)
	}
	return nil
}

// Action records ev on s when s supports action events.
func Action(s MetricsSink, ev ActionEvent) error {
	if r, ok := s.(ActionRecorder); ok {
		return r.RecordAction(ev)
	}
	return nil
}

// Fleet records ev on s when s supports fleet snapshots.
func Fleet(s MetricsSink, ev FleetEvent) error {
	if r, ok := s.(FleetRecorder); ok {
		return r.RecordFleet(ev)
	}
	return nil
}
