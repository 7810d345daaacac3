// Package economics turns deposits into charger aggregates: 40% of every
// deposit is booked as cost and the remaining 60% increases the balance.
package economics

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kilianp07/dobi/core/chain"
	"github.com/kilianp07/dobi/core/clock"
	"github.com/kilianp07/dobi/core/events"
	"github.com/kilianp07/dobi/core/ledger"
	"github.com/kilianp07/dobi/core/logger"
	"github.com/kilianp07/dobi/core/metrics"
	"github.com/kilianp07/dobi/core/model"
	"github.com/kilianp07/dobi/internal/keylock"
)

// AmountPlaces is the precision deposits are rounded to.
const AmountPlaces = 6

// SimulatedRef is the transaction reference of off-chain deposits.
const SimulatedRef = "simulated"

// CostShare is the fraction of each deposit booked as cost.
var CostShare = decimal.RequireFromString("0.4")

// ErrInvalidAmount rejects non-positive deposits.
var ErrInvalidAmount = errors.New("deposit amount must be positive")

// Split is the breakdown of one deposit.
type Split struct {
	Income decimal.Decimal
	Cost   decimal.Decimal
	Delta  decimal.Decimal
}

// SplitDeposit computes cost = amount*0.4 and delta = amount - cost.
func SplitDeposit(amount decimal.Decimal) Split {
	cost := amount.Mul(CostShare)
	return Split{Income: amount, Cost: cost, Delta: amount.Sub(cost)}
}

// Apply returns t with the split added and the transaction count bumped.
func Apply(t model.Totals, s Split) model.Totals {
	return model.Totals{
		Transactions:    t.Transactions + 1,
		IncomeGenerated: t.IncomeGenerated.Add(s.Income),
		CostGenerated:   t.CostGenerated.Add(s.Cost),
		BalanceTotal:    t.BalanceTotal.Add(s.Delta),
	}
}

// Message renders the log line of a deposit.
func Message(kind metrics.DepositKind, txRef string) string {
	if kind == metrics.DepositManual {
		return fmt.Sprintf("manual simulated deposit (%s)", txRef)
	}
	return fmt.Sprintf("completed deposit (%s)", txRef)
}

// Deps wires an Engine. Store and Locks are required.
type Deps struct {
	Store ledger.Store
	Locks *keylock.Locker
	// Chain funds the charger wallet when OnChain is set.
	Chain   chain.Chain
	OnChain bool
	Clock   clock.Clock
	Sink    metrics.MetricsSink
	Events  *events.Bus
	Log     logger.Logger
}

// Engine applies deposits.
type Engine struct {
	d Deps
}

// New returns an Engine, filling optional dependencies with no-ops.
func New(d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Sink == nil {
		d.Sink = metrics.NopSink{}
	}
	d.Log = logger.OrNop(d.Log)
	return &Engine{d: d}
}

// Result describes a persisted deposit.
type Result struct {
	Entry model.LogEntry
	Split Split
	TxRef string
}

// Deposit settles amount to the charger (on-chain when enabled) and then
// persists the new aggregates together with one log entry. Nothing is
// persisted when settlement or the store fails.
func (e *Engine) Deposit(ctx context.Context, chargerID string, amount decimal.Decimal, kind metrics.DepositKind) (Result, error) {
	amount = amount.Round(AmountPlaces)
	if !amount.IsPositive() {
		return Result{}, ErrInvalidAmount
	}
	c, err := e.d.Store.GetCharger(ctx, chargerID)
	if err != nil {
		return Result{}, err
	}

	txRef := SimulatedRef
	if e.d.OnChain && e.d.Chain != nil {
		hash, err := e.d.Chain.Fund(ctx, c.WalletAddress, amount)
		if err != nil {
			return Result{}, fmt.Errorf("fund %s: %w", chargerID, err)
		}
		txRef = hash
	}

	split := SplitDeposit(amount)
	unlock := e.d.Locks.Lock(chargerID)
	entry, err := e.persist(ctx, chargerID, split, Message(kind, txRef))
	unlock()
	if err != nil {
		return Result{}, err
	}

	if err := e.d.Sink.RecordDeposit(metrics.DepositEvent{
		ChargerID: chargerID,
		Kind:      kind,
		Amount:    split.Income,
		Cost:      split.Cost,
		Balance:   entry.BalanceTotal,
		TxRef:     txRef,
		OnChain:   txRef != SimulatedRef,
		Time:      entry.Timestamp,
	}); err != nil {
		e.d.Log.Warnf("record deposit metric: %v", err)
	}
	totals := entry.Totals
	events.Publish(e.d.Events, events.ChargerEvent{
		Kind:      events.KindDeposit,
		ChargerID: chargerID,
		Message:   entry.Message,
		Totals:    &totals,
		Time:      entry.Timestamp,
	})
	e.d.Log.Infof("charger %s +%s ETH (%s)", chargerID, split.Income.StringFixed(AmountPlaces), txRef)
	return Result{Entry: entry, Split: split, TxRef: txRef}, nil
}

// persist must run with the charger lock held so concurrent deposits never
// read the same base totals.
func (e *Engine) persist(ctx context.Context, id string, s Split, msg string) (model.LogEntry, error) {
	c, err := e.d.Store.GetCharger(ctx, id)
	if err != nil {
		return model.LogEntry{}, err
	}
	entry, err := e.d.Store.ApplyTotals(ctx, id, Apply(c.Totals, s), msg, e.d.Clock.Now())
	if err != nil {
		return model.LogEntry{}, fmt.Errorf("apply deposit %s: %w", id, err)
	}
	return entry, nil
}
