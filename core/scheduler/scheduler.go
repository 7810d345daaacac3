package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kilianp07/dobi/core/clock"
	"github.com/kilianp07/dobi/core/economics"
	"github.com/kilianp07/dobi/core/events"
	"github.com/kilianp07/dobi/core/ledger"
	"github.com/kilianp07/dobi/core/logger"
	"github.com/kilianp07/dobi/core/metrics"
	"github.com/kilianp07/dobi/core/model"
	"github.com/kilianp07/dobi/core/monitoring"
	"github.com/kilianp07/dobi/internal/eventbus"
	"github.com/kilianp07/dobi/internal/keylock"
)

// Outcome is the result class of one fire attempt.
type Outcome string

const (
	Fired   Outcome = "fired"
	Skipped Outcome = "skipped"
	Failed  Outcome = "failed"
)

// Skip reasons.
const (
	ReasonInactive = "inactive"
	ReasonGone     = "charger not found"
	ReasonCap      = "daily cap reached"
)

// Result reports one fire attempt.
type Result struct {
	ChargerID string
	Outcome   Outcome
	Reason    string
	Amount    decimal.Decimal
	TxRef     string
	Err       error
	Time      time.Time
}

// Depositor applies a deposit to a charger.
type Depositor interface {
	Deposit(ctx context.Context, chargerID string, amount decimal.Decimal, kind metrics.DepositKind) (economics.Result, error)
}

// Deps wires a Scheduler. Store and Engine are required.
type Deps struct {
	Store  ledger.Store
	Engine Depositor
	Locks  *keylock.Locker
	Clock  clock.Clock
	Rand   *rand.Rand
	Sink   metrics.MetricsSink
	Events *events.Bus
	Log    logger.Logger
}

type armedTimer struct {
	chargerID string
	at        time.Time
	timer     clock.Timer
}

// Scheduler owns the armed timers and the per-day fired counters. Counters
// live in memory only: a process restart forgets today's progress.
type Scheduler struct {
	cfg Config
	d   Deps

	rngMu sync.Mutex

	mu    sync.Mutex
	ctx   context.Context
	gen   uint64
	seq   uint64
	armed map[uint64]armedTimer
	fired map[string]int
	loops []clock.Timer
	// loopGen is bumped by Stop; loop callbacks of an older generation do
	// not re-arm.
	loopGen uint64

	outcomes *eventbus.TypedBus[Result]
}

// New returns a Scheduler. Optional dependencies default to the real clock,
// a time seeded random source and no-op sinks.
func New(cfg Config, d Deps) *Scheduler {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Rand == nil {
		now := uint64(time.Now().UnixNano())
		d.Rand = rand.New(rand.NewPCG(now, now>>32))
	}
	if d.Locks == nil {
		d.Locks = keylock.New()
	}
	if d.Sink == nil {
		d.Sink = metrics.NopSink{}
	}
	d.Log = logger.OrNop(d.Log)
	return &Scheduler{
		cfg:      cfg,
		d:        d,
		ctx:      context.Background(),
		armed:    make(map[uint64]armedTimer),
		fired:    make(map[string]int),
		outcomes: eventbus.NewTyped[Result](),
	}
}

// Outcomes carries one Result per fire attempt, timer driven or manual.
func (s *Scheduler) Outcomes() *eventbus.TypedBus[Result] { return s.outcomes }

// Config returns the planning parameters.
func (s *Scheduler) Config() Config { return s.cfg }

// Start plans every active charger and arms the reset and sweep loops. Timer
// callbacks run with ctx; once it is done they stop re-arming.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	if _, err := s.planAll(ctx); err != nil {
		return err
	}
	s.every(ctx, s.cfg.ResetInterval, func(ctx context.Context) {
		if err := s.ResetDay(ctx); err != nil {
			s.d.Log.Errorf("daily reset: %v", err)
			monitoring.Capture(err, "scheduler", "op", "reset")
		}
	})
	s.every(ctx, s.cfg.FlipInterval, func(ctx context.Context) {
		if err := s.Sweep(ctx); err != nil {
			s.d.Log.Errorf("status sweep: %v", err)
			monitoring.Capture(err, "scheduler", "op", "sweep")
		}
	})
	s.d.Log.Infof("scheduler started: window %02d:00-%02d:00, cap %d/day", s.cfg.WindowStart, s.cfg.WindowEnd, s.cfg.MaxDaily)
	return nil
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop cancels every armed timer and loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.loops {
		if t != nil {
			t.Stop()
		}
	}
	s.loops = nil
	s.loopGen++
	s.clearLocked()
}

func (s *Scheduler) every(ctx context.Context, d time.Duration, f func(context.Context)) {
	s.mu.Lock()
	idx := len(s.loops)
	lg := s.loopGen
	s.loops = append(s.loops, nil)
	s.mu.Unlock()

	var arm func()
	arm = func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.loopGen != lg {
			return
		}
		s.loops[idx] = s.d.Clock.AfterFunc(d, func() {
			if ctx.Err() != nil || s.stoppedSince(lg) {
				return
			}
			f(ctx)
			arm()
		})
	}
	arm()
}

func (s *Scheduler) stoppedSince(lg uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loopGen != lg
}

// Plan draws today's slots for an active charger and arms a timer for each
// one still in the future. It returns the number of timers armed; inactive
// chargers get none.
func (s *Scheduler) Plan(ctx context.Context, chargerID string) (int, error) {
	c, err := s.d.Store.GetCharger(ctx, chargerID)
	if err != nil {
		return 0, err
	}
	if !c.Active() {
		return 0, nil
	}
	now := s.d.Clock.Now()
	slots := s.drawSlots(now)

	s.mu.Lock()
	defer s.mu.Unlock()
	gen := s.gen
	for _, at := range slots {
		s.seq++
		key := s.seq
		t := s.d.Clock.AfterFunc(at.Sub(now), func() { s.fire(gen, key, chargerID) })
		s.armed[key] = armedTimer{chargerID: chargerID, at: at, timer: t}
	}
	s.d.Log.Debugw("planned charger", map[string]any{"charger_id": chargerID, "armed": len(slots)})
	return len(slots), nil
}

// drawSlots returns the sorted future fire times of one planning pass.
func (s *Scheduler) drawSlots(now time.Time) []time.Time {
	s.rngMu.Lock()
	n := s.d.Rand.IntN(s.cfg.MaxDaily + 1)
	span := s.cfg.WindowEnd - s.cfg.WindowStart
	drawn := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		h := s.cfg.WindowStart + s.d.Rand.IntN(span)
		m := s.d.Rand.IntN(60)
		drawn = append(drawn, time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location()))
	}
	s.rngMu.Unlock()

	sort.Slice(drawn, func(i, j int) bool { return drawn[i].Before(drawn[j]) })
	future := drawn[:0]
	for _, t := range drawn {
		if t.After(now) {
			future = append(future, t)
		}
	}
	return future
}

// RandomAmount draws a deposit uniformly from [MinTx, MaxTx] at six decimal
// places.
func (s *Scheduler) RandomAmount() decimal.Decimal {
	s.rngMu.Lock()
	f := s.d.Rand.Float64()
	s.rngMu.Unlock()
	span := s.cfg.MaxTx.Sub(s.cfg.MinTx)
	return s.cfg.MinTx.Add(span.Mul(decimal.NewFromFloat(f))).Round(economics.AmountPlaces)
}

func (s *Scheduler) fire(gen, key uint64, chargerID string) {
	defer monitoring.Recover()
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	delete(s.armed, key)
	ctx := s.ctx
	s.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	s.attempt(ctx, chargerID, true)
}

// FireNow runs the per-fire logic immediately with a random amount. The
// daily cap applies; the charger status does not.
func (s *Scheduler) FireNow(ctx context.Context, chargerID string) (Result, error) {
	r := s.attempt(ctx, chargerID, false)
	return r, r.Err
}

func (s *Scheduler) attempt(ctx context.Context, chargerID string, requireActive bool) Result {
	r := Result{ChargerID: chargerID}
	if requireActive {
		c, err := s.d.Store.GetCharger(ctx, chargerID)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			return s.report(r, Skipped, ReasonGone, nil)
		case err != nil:
			return s.report(r, Failed, "", err)
		case !c.Active():
			return s.report(r, Skipped, ReasonInactive, nil)
		}
	}

	gen, ok := s.reserve(chargerID)
	if !ok {
		return s.report(r, Skipped, ReasonCap, nil)
	}
	r.Amount = s.RandomAmount()
	res, err := s.d.Engine.Deposit(ctx, chargerID, r.Amount, metrics.DepositScheduled)
	if err != nil {
		s.release(gen, chargerID)
		return s.report(r, Failed, "", err)
	}
	r.TxRef = res.TxRef
	return s.report(r, Fired, "", nil)
}

func (s *Scheduler) reserve(chargerID string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired[chargerID] >= s.cfg.MaxDaily {
		return 0, false
	}
	s.fired[chargerID]++
	return s.gen, true
}

func (s *Scheduler) release(gen uint64, chargerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.gen && s.fired[chargerID] > 0 {
		s.fired[chargerID]--
	}
}

func (s *Scheduler) report(r Result, o Outcome, reason string, err error) Result {
	r.Outcome = o
	r.Reason = reason
	r.Err = err
	r.Time = s.d.Clock.Now()
	if err != nil {
		r.Reason = err.Error()
		s.d.Log.Errorf("fire %s failed: %v", r.ChargerID, err)
		monitoring.Capture(err, "scheduler", "charger_id", r.ChargerID)
	} else if o == Skipped {
		s.d.Log.Debugf("fire %s skipped: %s", r.ChargerID, reason)
	}
	if merr := metrics.Fire(s.d.Sink, metrics.FireEvent{
		ChargerID: r.ChargerID,
		Outcome:   string(o),
		Reason:    reason,
		Time:      r.Time,
	}); merr != nil {
		s.d.Log.Warnf("record fire metric: %v", merr)
	}
	s.outcomes.Publish(r)
	return r
}

// ResetDay cancels every armed timer, zeroes the fired counters and plans
// every active charger again.
func (s *Scheduler) ResetDay(ctx context.Context) error {
	s.mu.Lock()
	s.clearLocked()
	s.fired = make(map[string]int)
	s.mu.Unlock()

	planned, err := s.planAll(ctx)
	if err != nil {
		return err
	}
	s.d.Log.Infof("daily reset: %d timers armed", planned)
	return nil
}

// clearLocked stops the armed timers and invalidates any callback already
// in flight. s.mu must be held.
func (s *Scheduler) clearLocked() {
	s.gen++
	for _, a := range s.armed {
		a.timer.Stop()
	}
	s.armed = make(map[uint64]armedTimer)
}

func (s *Scheduler) planAll(ctx context.Context) (int, error) {
	chargers, err := s.d.Store.ListChargers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list chargers: %w", err)
	}
	total := 0
	for _, c := range chargers {
		if !c.Active() {
			continue
		}
		n, err := s.Plan(ctx, c.ID)
		if err != nil {
			s.d.Log.Warnf("plan %s: %v", c.ID, err)
			continue
		}
		total += n
	}
	s.recordFleet(chargers)
	return total, nil
}

// Sweep flips every charger to active or inactive with equal odds and plans
// the ones that came out active.
func (s *Scheduler) Sweep(ctx context.Context) error {
	chargers, err := s.d.Store.ListChargers(ctx)
	if err != nil {
		return fmt.Errorf("list chargers: %w", err)
	}
	for i, c := range chargers {
		status := s.flip()
		err := s.d.Locks.With(c.ID, func() error {
			return s.d.Store.SetStatus(ctx, c.ID, status)
		})
		if err != nil {
			s.d.Log.Warnf("flip %s: %v", c.ID, err)
			continue
		}
		chargers[i].Status = status
		events.Publish(s.d.Events, events.ChargerEvent{
			Kind:      events.KindStatus,
			ChargerID: c.ID,
			Status:    status,
			Time:      s.d.Clock.Now(),
		})
		if status == model.StatusActive {
			if _, err := s.Plan(ctx, c.ID); err != nil {
				s.d.Log.Warnf("plan %s: %v", c.ID, err)
			}
		}
	}
	s.recordFleet(chargers)
	s.d.Log.Infof("status sweep over %d chargers", len(chargers))
	return nil
}

func (s *Scheduler) flip() model.Status {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	if s.d.Rand.IntN(2) == 0 {
		return model.StatusActive
	}
	return model.StatusInactive
}

func (s *Scheduler) recordFleet(chargers []model.Charger) {
	ev := metrics.FleetEvent{Total: len(chargers), Time: s.d.Clock.Now()}
	for _, c := range chargers {
		if c.Active() {
			ev.Active++
		}
	}
	ev.Planned = s.ArmedCount()
	if err := metrics.Fleet(s.d.Sink, ev); err != nil {
		s.d.Log.Warnf("record fleet metric: %v", err)
	}
}

// ArmedCount returns the number of timers waiting to fire.
func (s *Scheduler) ArmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.armed)
}

// Info is the schedule state of one charger.
type Info struct {
	FiredToday int
	Remaining  int
	Pending    int
	// NextFire is the earliest armed time, or the next window opening when
	// nothing is armed.
	NextFire time.Time
}

// Info reports the schedule state of a charger.
func (s *Scheduler) Info(chargerID string) Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	in := Info{FiredToday: s.fired[chargerID]}
	in.Remaining = max(s.cfg.MaxDaily-in.FiredToday, 0)
	for _, a := range s.armed {
		if a.chargerID != chargerID {
			continue
		}
		in.Pending++
		if in.NextFire.IsZero() || a.at.Before(in.NextFire) {
			in.NextFire = a.at
		}
	}
	if in.NextFire.IsZero() {
		now := s.d.Clock.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.WindowStart, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		in.NextFire = next
	}
	return in
}

// FiredToday returns how many deposits the charger received since the last
// reset.
func (s *Scheduler) FiredToday(chargerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired[chargerID]
}
