package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	corechain "github.com/kilianp07/dobi/core/chain"
)

// ErrInsufficientFunds is returned by Offline.Send when the sender's
// balance does not cover the amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Offline keeps balances in memory. It generates real key pairs so
// wallets stay valid if the process is later pointed at a node.
type Offline struct {
	mu       sync.Mutex
	master   string
	balances map[string]decimal.Decimal
	txs      []corechain.Tx
	block    uint64
	now      func() time.Time
}

var _ corechain.Chain = (*Offline)(nil)

// NewOffline returns an empty ledger. masterAddress, when set, is used as
// the sender of Fund transfers.
func NewOffline(masterAddress string) *Offline {
	return &Offline{master: masterAddress, balances: make(map[string]decimal.Decimal), now: time.Now}
}

func addrKey(addr string) string { return strings.ToLower(addr) }

func (o *Offline) NewWallet() (corechain.Wallet, error) { return GenerateWallet() }

// Credit adds amount to address without recording a transfer.
func (o *Offline) Credit(address string, amount decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.balances[addrKey(address)] = o.balances[addrKey(address)].Add(amount)
}

func (o *Offline) Balance(_ context.Context, address string) (decimal.Decimal, error) {
	if _, err := parseAddress(address); err != nil {
		return decimal.Zero, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.balances[addrKey(address)], nil
}

func (o *Offline) Fund(_ context.Context, to string, amount decimal.Decimal) (string, error) {
	if _, err := parseAddress(to); err != nil {
		return "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.balances[addrKey(to)] = o.balances[addrKey(to)].Add(amount)
	return o.record(o.master, to, amount), nil
}

func (o *Offline) Send(_ context.Context, privateKey, to string, amount decimal.Decimal) (string, error) {
	k, err := ParseKey(privateKey)
	if err != nil {
		return "", err
	}
	if _, err := parseAddress(to); err != nil {
		return "", err
	}
	from := AddressOf(k).Hex()
	o.mu.Lock()
	defer o.mu.Unlock()
	bal := o.balances[addrKey(from)]
	if bal.LessThan(amount) {
		return "", fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, bal, amount)
	}
	o.balances[addrKey(from)] = bal.Sub(amount)
	o.balances[addrKey(to)] = o.balances[addrKey(to)].Add(amount)
	return o.record(from, to, amount), nil
}

func (o *Offline) record(from, to string, amount decimal.Decimal) string {
	o.block++
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%d:%s:%s:%s", o.block, from, to, amount))).Hex()
	o.txs = append(o.txs, corechain.Tx{
		Hash:        hash,
		BlockNumber: o.block,
		Timestamp:   o.now().UTC(),
		From:        from,
		To:          to,
		ValueETH:    amount,
		GasUsed:     transferGas,
		Status:      "success",
	})
	return hash
}

func (o *Offline) History(_ context.Context, addresses []string, limit int) ([]corechain.Tx, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []corechain.Tx
	for _, tx := range o.txs {
		for _, a := range addresses {
			switch {
			case sameAddress(tx.To, a):
				tx.Type, tx.Wallet = corechain.Incoming, tx.To
			case sameAddress(tx.From, a):
				tx.Type, tx.Wallet = corechain.Outgoing, tx.From
			default:
				continue
			}
			out = append(out, tx)
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BlockNumber > out[j].BlockNumber })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
