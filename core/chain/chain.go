// Package chain describes the blockchain collaborator: custodial wallet
// creation, balance reads, value transfers and recent history.
package chain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable wraps failures reaching the chain backend.
var ErrUnavailable = errors.New("chain unavailable")

// Wallet is a freshly generated key pair. PrivateKey is hex encoded with a
// 0x prefix.
type Wallet struct {
	Address    string
	PrivateKey string
}

// Direction of a transaction relative to the watched wallet.
const (
	Incoming = "incoming"
	Outgoing = "outgoing"
)

// Tx is one transfer touching a watched wallet.
type Tx struct {
	Hash        string          `json:"tx_hash"`
	BlockNumber uint64          `json:"block_number"`
	Timestamp   time.Time       `json:"timestamp"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	ValueETH    decimal.Decimal `json:"value_eth"`
	GasUsed     uint64          `json:"gas_used"`
	Status      string          `json:"status"`
	Type        string          `json:"type"`
	Wallet      string          `json:"wallet"`
}

// Chain is implemented by infra/chain. Amounts are in ETH.
type Chain interface {
	NewWallet() (Wallet, error)
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
	// Fund sends amount from the master wallet to address and waits for the
	// receipt. It returns the transaction hash.
	Fund(ctx context.Context, to string, amount decimal.Decimal) (string, error)
	// Send transfers amount from the wallet owning privateKey and waits for
	// the receipt.
	Send(ctx context.Context, privateKey, to string, amount decimal.Decimal) (string, error)
	// History returns recent transfers touching any of the addresses,
	// newest first, at most limit entries.
	History(ctx context.Context, addresses []string, limit int) ([]Tx, error)
}
