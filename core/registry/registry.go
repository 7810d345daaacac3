// Package registry registers chargers: it validates the request, generates
// the custodial wallet, stores the charger and plans it when it starts
// active.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/kilianp07/dobi/core/chain"
	"github.com/kilianp07/dobi/core/clock"
	"github.com/kilianp07/dobi/core/events"
	"github.com/kilianp07/dobi/core/ledger"
	"github.com/kilianp07/dobi/core/logger"
	"github.com/kilianp07/dobi/core/model"
	"github.com/kilianp07/dobi/core/monitoring"
)

var (
	// ErrMissingFields rejects requests without an id or owner.
	ErrMissingFields = errors.New("id_charger and owner_address are required")
	// ErrInvalid rejects malformed fields.
	ErrInvalid = errors.New("invalid charger")
)

// Request describes a charger to register. The owner address is an opaque
// identifier; only a send_to_owner transfer interprets it.
type Request struct {
	ID           string `json:"id_charger" yaml:"id_charger"`
	OwnerAddress string `json:"owner_address" yaml:"owner_address"`
	Status       string `json:"status,omitempty" yaml:"status,omitempty"`
}

// Validate checks the request and returns the parsed status.
func (r Request) Validate() (model.Status, error) {
	if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.OwnerAddress) == "" {
		return "", ErrMissingFields
	}
	status, err := model.ParseStatus(r.Status)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return status, nil
}

// SeedEntry is one charger of the seed file. Aggregates carried over from a
// previous run are optional and default to zero.
type SeedEntry struct {
	Request         `yaml:",inline"`
	Transactions    int64           `json:"transactions" yaml:"transactions"`
	IncomeGenerated decimal.Decimal `json:"income_generated" yaml:"income_generated"`
	CostGenerated   decimal.Decimal `json:"cost_generated" yaml:"cost_generated"`
	BalanceTotal    decimal.Decimal `json:"balance_total" yaml:"balance_total"`
}

func (e SeedEntry) totals() (model.Totals, error) {
	t := model.Totals{
		Transactions:    e.Transactions,
		IncomeGenerated: e.IncomeGenerated,
		CostGenerated:   e.CostGenerated,
		BalanceTotal:    e.BalanceTotal,
	}
	if t.Transactions < 0 || t.IncomeGenerated.IsNegative() || t.CostGenerated.IsNegative() {
		return model.Totals{}, fmt.Errorf("%w: negative aggregates", ErrInvalid)
	}
	return t, nil
}

// Planner arms the daily schedule of a charger.
type Planner interface {
	Plan(ctx context.Context, chargerID string) (int, error)
}

// Registry creates chargers.
type Registry struct {
	store   ledger.Store
	wallets chain.Chain
	planner Planner
	bus     *events.Bus
	clock   clock.Clock
	log     logger.Logger
}

// New returns a Registry. planner, bus and log may be nil.
func New(store ledger.Store, wallets chain.Chain, planner Planner, bus *events.Bus, clk clock.Clock, log logger.Logger) *Registry {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Registry{store: store, wallets: wallets, planner: planner, bus: bus, clock: clk, log: logger.OrNop(log)}
}

// Register validates req, generates a wallet and stores the charger. An
// active charger is planned right away.
func (r *Registry) Register(ctx context.Context, req Request) (model.Charger, error) {
	return r.register(ctx, req, model.Totals{})
}

func (r *Registry) register(ctx context.Context, req Request, totals model.Totals) (model.Charger, error) {
	status, err := req.Validate()
	if err != nil {
		return model.Charger{}, err
	}
	w, err := r.wallets.NewWallet()
	if err != nil {
		return model.Charger{}, fmt.Errorf("generate wallet: %w", err)
	}
	c := model.Charger{
		ID:               strings.TrimSpace(req.ID),
		OwnerAddress:     req.OwnerAddress,
		WalletAddress:    w.Address,
		WalletPrivateKey: w.PrivateKey,
		Status:           status,
		Totals:           totals,
	}
	if err := r.store.CreateCharger(ctx, c); err != nil {
		return model.Charger{}, err
	}
	events.Publish(r.bus, events.ChargerEvent{
		Kind:      events.KindCreated,
		ChargerID: c.ID,
		Status:    c.Status,
		Time:      r.clock.Now(),
	})
	if c.Active() && r.planner != nil {
		if _, err := r.planner.Plan(ctx, c.ID); err != nil {
			r.log.Warnf("plan %s: %v", c.ID, err)
		}
	}
	r.log.Infof("registered charger %s (%s) wallet %s", c.ID, c.Status, c.WalletAddress)
	return c, nil
}

// Seed registers every entry whose id is not stored yet. Existing chargers
// are left untouched. A missing owner defaults to the zero address. A failed
// entry is logged and reported, and the remaining entries are still seeded;
// the failures come back joined with the number of chargers created.
func (r *Registry) Seed(ctx context.Context, entries []SeedEntry) (int, error) {
	created := 0
	var errs []error
	for _, e := range entries {
		if strings.TrimSpace(e.OwnerAddress) == "" {
			e.OwnerAddress = common.Address{}.Hex()
		}
		totals, err := e.totals()
		if err == nil {
			_, err = r.register(ctx, e.Request, totals)
		}
		switch {
		case err == nil:
			created++
		case errors.Is(err, ledger.ErrExists):
		default:
			err = fmt.Errorf("seed %q: %w", e.ID, err)
			r.log.Errorf("%v", err)
			monitoring.Capture(err, "registry", "charger_id", e.ID, "op", "seed")
			errs = append(errs, err)
		}
	}
	return created, errors.Join(errs...)
}
