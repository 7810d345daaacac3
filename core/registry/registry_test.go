package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/dobi/core/chain"
	"github.com/kilianp07/dobi/core/events"
	"github.com/kilianp07/dobi/core/ledger"
	"github.com/kilianp07/dobi/core/model"
)

const owner = "0x57e56B49dcF7540a991ac6B4C9597eBa892A7168"

type walletGen struct {
	mu sync.Mutex
	n  int
}

func (w *walletGen) NewWallet() (chain.Wallet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.n++
	return chain.Wallet{Address: "0x000000000000000000000000000000000000000" + string(rune('0'+w.n)), PrivateKey: "0xsecret"}, nil
}
func (w *walletGen) Balance(context.Context, string) (decimal.Decimal, error) { return decimal.Zero, nil }
func (w *walletGen) Fund(context.Context, string, decimal.Decimal) (string, error) {
	return "", nil
}
func (w *walletGen) Send(context.Context, string, string, decimal.Decimal) (string, error) {
	return "", nil
}
func (w *walletGen) History(context.Context, []string, int) ([]chain.Tx, error) { return nil, nil }

type planner struct{ ids []string }

func (p *planner) Plan(_ context.Context, id string) (int, error) {
	p.ids = append(p.ids, id)
	return 2, nil
}

func newRegistry() (*Registry, *ledger.MemoryStore, *planner, *events.Bus) {
	st := ledger.NewMemoryStore()
	p := &planner{}
	bus := events.NewBus()
	return New(st, &walletGen{}, p, bus, nil, nil), st, p, bus
}

func TestRegisterDefaultsInactive(t *testing.T) {
	r, st, p, _ := newRegistry()
	c, err := r.Register(context.Background(), Request{ID: "C1", OwnerAddress: owner})
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, c.Status)
	assert.NotEmpty(t, c.WalletAddress)
	assert.Empty(t, p.ids)

	stored, err := st.GetCharger(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, "0xsecret", stored.WalletPrivateKey)
	assert.Zero(t, stored.Transactions)
}

func TestRegisterActivePlansAndPublishes(t *testing.T) {
	r, _, p, bus := newRegistry()
	sub := bus.Subscribe()
	_, err := r.Register(context.Background(), Request{ID: "C1", OwnerAddress: owner, Status: "active"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C1"}, p.ids)
	ev := <-sub
	assert.Equal(t, events.KindCreated, ev.Kind)
	assert.Equal(t, model.StatusActive, ev.Status)
}

func TestRegisterValidation(t *testing.T) {
	r, _, _, _ := newRegistry()
	ctx := context.Background()

	_, err := r.Register(ctx, Request{OwnerAddress: owner})
	assert.ErrorIs(t, err, ErrMissingFields)
	_, err = r.Register(ctx, Request{ID: "C1"})
	assert.ErrorIs(t, err, ErrMissingFields)
	_, err = r.Register(ctx, Request{ID: "C1", OwnerAddress: owner, Status: "paused"})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = r.Register(ctx, Request{ID: "C1", OwnerAddress: owner})
	require.NoError(t, err)
	_, err = r.Register(ctx, Request{ID: "C1", OwnerAddress: owner})
	assert.ErrorIs(t, err, ledger.ErrExists)
}

func TestRegisterKeepsOpaqueOwner(t *testing.T) {
	r, st, _, _ := newRegistry()
	_, err := r.Register(context.Background(), Request{ID: "C1", OwnerAddress: "station-owner-1"})
	require.NoError(t, err)

	c, err := st.GetCharger(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, "station-owner-1", c.OwnerAddress)
}

func TestSeedIsIdempotent(t *testing.T) {
	r, st, _, _ := newRegistry()
	ctx := context.Background()
	reqs := []SeedEntry{
		{Request: Request{ID: "C1", OwnerAddress: owner, Status: "active"}},
		{Request: Request{ID: "C2", OwnerAddress: owner}},
	}
	n, err := r.Seed(ctx, reqs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, st.SetStatus(ctx, "C1", model.StatusInactive))
	n, err = r.Seed(ctx, reqs)
	require.NoError(t, err)
	assert.Zero(t, n)

	c, err := st.GetCharger(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInactive, c.Status)
}

func TestSeedSkipsFailedEntries(t *testing.T) {
	r, st, p, _ := newRegistry()
	ctx := context.Background()
	n, err := r.Seed(ctx, []SeedEntry{
		{Request: Request{ID: "S1", OwnerAddress: "station-owner-1", Status: "paused"}},
		{Request: Request{ID: "S2", OwnerAddress: owner, Status: "active"}},
		{Request: Request{OwnerAddress: owner}},
		{Request: Request{ID: "S3", OwnerAddress: owner}},
	})
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, ErrMissingFields)
	assert.Equal(t, []string{"S2"}, p.ids)

	list, err := st.ListChargers(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "S2", list[0].ID)
	assert.Equal(t, "S3", list[1].ID)
}

func TestSeedCarriesAggregatesAndDefaultsOwner(t *testing.T) {
	r, st, _, _ := newRegistry()
	ctx := context.Background()
	n, err := r.Seed(ctx, []SeedEntry{{
		Request:         Request{ID: "C1"},
		Transactions:    3,
		IncomeGenerated: decimal.RequireFromString("1.5"),
		CostGenerated:   decimal.RequireFromString("0.6"),
		BalanceTotal:    decimal.RequireFromString("0.9"),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	c, err := st.GetCharger(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000000", c.OwnerAddress)
	assert.Equal(t, int64(3), c.Transactions)
	assert.Equal(t, "1.5", c.IncomeGenerated.String())
	assert.Equal(t, "0.6", c.CostGenerated.String())
	assert.Equal(t, "0.9", c.BalanceTotal.String())

	_, err = r.Seed(ctx, []SeedEntry{{Request: Request{ID: "C2"}, Transactions: -1}})
	assert.ErrorIs(t, err, ErrInvalid)
}
