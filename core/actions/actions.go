// Package actions executes imperative charger commands: status changes,
// support tickets, payouts from the charger wallet and manual deposits.
package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kilianp07/dobi/core/chain"
	"github.com/kilianp07/dobi/core/clock"
	"github.com/kilianp07/dobi/core/economics"
	"github.com/kilianp07/dobi/core/events"
	"github.com/kilianp07/dobi/core/ledger"
	"github.com/kilianp07/dobi/core/logger"
	"github.com/kilianp07/dobi/core/metrics"
	"github.com/kilianp07/dobi/core/model"
	"github.com/kilianp07/dobi/core/monitoring"
	"github.com/kilianp07/dobi/core/scheduler"
	"github.com/kilianp07/dobi/internal/keylock"
)

// Action is a command accepted by Perform.
type Action string

const (
	TurnOn       Action = "turn_on"
	TurnOff      Action = "turn_off"
	Restart      Action = "restart"
	CreateTicket Action = "create_ticket"
	PayCosts     Action = "pay_costs"
	SendToOwner  Action = "send_to_owner"
)

// All lists the accepted actions.
var All = []Action{TurnOn, TurnOff, Restart, CreateTicket, PayCosts, SendToOwner}

// ErrUnknownAction rejects names outside All.
var ErrUnknownAction = errors.New("invalid action")

// Parse maps a wire name to an Action.
func Parse(s string) (Action, error) {
	for _, a := range All {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Log messages.
const (
	MsgTurnedOff       = "Charger turned off"
	MsgTurnedOn        = "Charger turned on"
	MsgRestarted       = "Charger restarted"
	MsgNoCostsBalance  = "Not enough balance to pay costs"
	MsgNoOwnerBalance  = "Not enough balance"
	MsgSimulatedRandom = "Simulated transaction executed"
	MsgDailyCapReached = "Daily charge limit reached"
)

// Planner is the part of the scheduler the executor drives.
type Planner interface {
	Plan(ctx context.Context, chargerID string) (int, error)
	FireNow(ctx context.Context, chargerID string) (scheduler.Result, error)
}

// Deps wires an Executor. Store, Engine and Planner are required; Chain is
// required for pay_costs and send_to_owner.
type Deps struct {
	Store   ledger.Store
	Locks   *keylock.Locker
	Engine  scheduler.Depositor
	Planner Planner
	Chain   chain.Chain
	// OnChain turns payouts into real transfers.
	OnChain      bool
	Operator     string
	GasBuffer    decimal.Decimal
	RestartDelay time.Duration
	Clock        clock.Clock
	Sink         metrics.MetricsSink
	Events       *events.Bus
	Log          logger.Logger
}

// Executor performs actions against the ledger.
type Executor struct {
	d Deps
}

// New returns an Executor with optional dependencies defaulted.
func New(d Deps) *Executor {
	if d.Locks == nil {
		d.Locks = keylock.New()
	}
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Sink == nil {
		d.Sink = metrics.NopSink{}
	}
	if d.RestartDelay <= 0 {
		d.RestartDelay = 3 * time.Second
	}
	d.Log = logger.OrNop(d.Log)
	return &Executor{d: d}
}

// Outcome is the caller facing result of an action.
type Outcome struct {
	Message string
	// TxHash is set for manual deposits and on-chain payouts.
	TxHash string
	Entry  model.LogEntry
}

// Perform runs action on the charger. Unknown chargers are rejected before
// the action name is looked at; neither rejection writes a log entry.
func (e *Executor) Perform(ctx context.Context, chargerID, action string) (Outcome, error) {
	c, err := e.d.Store.GetCharger(ctx, chargerID)
	if err != nil {
		return Outcome{}, err
	}
	a, err := Parse(action)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	switch a {
	case TurnOff:
		out, err = e.transition(ctx, c.ID, model.StatusInactive, MsgTurnedOff)
	case TurnOn:
		out, err = e.transition(ctx, c.ID, model.StatusActive, MsgTurnedOn)
		if err == nil {
			e.plan(ctx, c.ID)
		}
	case Restart:
		out, err = e.transition(ctx, c.ID, model.StatusInactive, MsgRestarted)
		if err == nil {
			e.scheduleRestart(context.WithoutCancel(ctx), c.ID)
		}
	case CreateTicket:
		out, err = e.appendLog(ctx, c.ID, fmt.Sprintf("Support ticket created (simulated): %s", uuid.NewString()), "")
	case PayCosts:
		out, err = e.payCosts(ctx, c)
	case SendToOwner:
		out, err = e.sendToOwner(ctx, c)
	}
	e.record(c.ID, string(a), err)
	if err != nil {
		return Outcome{}, err
	}
	e.d.Log.Infof("charger %s %s: %s", c.ID, a, out.Message)
	return out, nil
}

func (e *Executor) transition(ctx context.Context, id string, status model.Status, msg string) (Outcome, error) {
	unlock := e.d.Locks.Lock(id)
	entry, err := e.d.Store.Transition(ctx, id, status, msg, e.d.Clock.Now())
	unlock()
	if err != nil {
		return Outcome{}, fmt.Errorf("set %s %s: %w", id, status, err)
	}
	e.publish(events.KindStatus, entry, status)
	return Outcome{Message: msg, Entry: entry}, nil
}

func (e *Executor) appendLog(ctx context.Context, id, msg, txHash string) (Outcome, error) {
	unlock := e.d.Locks.Lock(id)
	entry, err := e.d.Store.AppendLog(ctx, id, msg, e.d.Clock.Now())
	unlock()
	if err != nil {
		return Outcome{}, fmt.Errorf("log %s: %w", id, err)
	}
	e.publish(events.KindAction, entry, "")
	return Outcome{Message: msg, TxHash: txHash, Entry: entry}, nil
}

func (e *Executor) plan(ctx context.Context, id string) {
	if _, err := e.d.Planner.Plan(ctx, id); err != nil {
		e.d.Log.Warnf("plan %s: %v", id, err)
	}
}

// scheduleRestart reactivates the charger once the restart delay elapsed.
// The "Charger restarted" entry is already written at that point.
func (e *Executor) scheduleRestart(ctx context.Context, id string) {
	e.d.Clock.AfterFunc(e.d.RestartDelay, func() {
		defer monitoring.Recover()
		err := e.d.Locks.With(id, func() error {
			return e.d.Store.SetStatus(ctx, id, model.StatusActive)
		})
		if err != nil {
			e.d.Log.Errorf("restart %s: %v", id, err)
			monitoring.Capture(err, "actions", "charger_id", id, "action", string(Restart))
			return
		}
		events.Publish(e.d.Events, events.ChargerEvent{
			Kind:      events.KindStatus,
			ChargerID: id,
			Status:    model.StatusActive,
			Time:      e.d.Clock.Now(),
		})
		e.plan(ctx, id)
	})
}

func (e *Executor) balance(ctx context.Context, c model.Charger) (decimal.Decimal, error) {
	if e.d.Chain == nil {
		return decimal.Zero, fmt.Errorf("balance of %s: %w", c.ID, chain.ErrUnavailable)
	}
	bal, err := e.d.Chain.Balance(ctx, c.WalletAddress)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of %s: %w", c.ID, err)
	}
	return bal, nil
}

func (e *Executor) payCosts(ctx context.Context, c model.Charger) (Outcome, error) {
	bal, err := e.balance(ctx, c)
	if err != nil {
		return Outcome{}, err
	}
	toPay := bal.Mul(economics.CostShare).Truncate(18)
	switch {
	case !toPay.IsPositive():
		return e.appendLog(ctx, c.ID, MsgNoCostsBalance, "")
	case !e.d.OnChain:
		return e.appendLog(ctx, c.ID, fmt.Sprintf("Simulated costs payment: %s ETH", toPay), "")
	}
	hash, err := e.d.Chain.Send(ctx, c.WalletPrivateKey, e.d.Operator, toPay)
	if err != nil {
		return Outcome{}, fmt.Errorf("pay costs for %s: %w", c.ID, err)
	}
	return e.appendLog(ctx, c.ID, fmt.Sprintf("Paid costs: %s ETH", toPay), hash)
}

func (e *Executor) sendToOwner(ctx context.Context, c model.Charger) (Outcome, error) {
	bal, err := e.balance(ctx, c)
	if err != nil {
		return Outcome{}, err
	}
	if bal.LessThanOrEqual(e.d.GasBuffer) {
		return e.appendLog(ctx, c.ID, MsgNoOwnerBalance, "")
	}
	amount := bal.Sub(e.d.GasBuffer)
	if !e.d.OnChain {
		return e.appendLog(ctx, c.ID, fmt.Sprintf("Simulated transfer to owner: %s ETH", amount), "")
	}
	hash, err := e.d.Chain.Send(ctx, c.WalletPrivateKey, c.OwnerAddress, amount)
	if err != nil {
		return Outcome{}, fmt.Errorf("send to owner of %s: %w", c.ID, err)
	}
	return e.appendLog(ctx, c.ID, fmt.Sprintf("Sent %s ETH to owner", amount), hash)
}

// SimulateTransaction deposits amount when it is positive. Otherwise it runs
// the scheduler's per-fire logic with a random amount, which honours the
// daily cap.
func (e *Executor) SimulateTransaction(ctx context.Context, chargerID string, amount *decimal.Decimal) (Outcome, error) {
	if _, err := e.d.Store.GetCharger(ctx, chargerID); err != nil {
		return Outcome{}, err
	}
	const action = "simulate_transaction"

	if amount != nil && amount.IsPositive() {
		res, err := e.d.Engine.Deposit(ctx, chargerID, *amount, metrics.DepositManual)
		e.record(chargerID, action, err)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Message: fmt.Sprintf("Simulated %s ETH deposit", res.Split.Income),
			TxHash:  res.TxRef,
			Entry:   res.Entry,
		}, nil
	}

	r, err := e.d.Planner.FireNow(ctx, chargerID)
	e.record(chargerID, action, err)
	if err != nil {
		return Outcome{}, err
	}
	if r.Outcome == scheduler.Skipped {
		return Outcome{Message: MsgDailyCapReached}, nil
	}
	return Outcome{Message: MsgSimulatedRandom, TxHash: r.TxRef}, nil
}

func (e *Executor) publish(kind events.Kind, entry model.LogEntry, status model.Status) {
	totals := entry.Totals
	events.Publish(e.d.Events, events.ChargerEvent{
		Kind:      kind,
		ChargerID: entry.ChargerID,
		Message:   entry.Message,
		Status:    status,
		Totals:    &totals,
		Time:      entry.Timestamp,
	})
}

func (e *Executor) record(id, action string, err error) {
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		monitoring.Capture(err, "actions", "charger_id", id, "action", action)
	}
	if merr := metrics.Action(e.d.Sink, metrics.ActionEvent{
		ChargerID: id,
		Action:    action,
		Success:   err == nil,
		Time:      e.d.Clock.Now(),
	}); merr != nil {
		e.d.Log.Warnf("record action metric: %v", merr)
	}
}
