// Package model holds the charger ledger types shared by the store, the
// economics engine and the HTTP layer.
package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Status is the operational state of a charger.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus accepts "active" or "inactive". An empty string maps to
// inactive, the default for newly registered chargers.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case "":
		return StatusInactive, nil
	case StatusActive, StatusInactive:
		return Status(s), nil
	default:
		return "", fmt.Errorf("invalid status %q", s)
	}
}

// Totals are the economic aggregates of a charger. Log entries carry a
// snapshot of them.
type Totals struct {
	Transactions    int64           `json:"transactions"`
	IncomeGenerated decimal.Decimal `json:"income_generated"`
	CostGenerated   decimal.Decimal `json:"cost_generated"`
	BalanceTotal    decimal.Decimal `json:"balance_total"`
}

// Charger is a registered charger and its custodial wallet.
type Charger struct {
	ID               string `json:"id_charger"`
	OwnerAddress     string `json:"owner_address"`
	WalletAddress    string `json:"wallet_address"`
	WalletPrivateKey string `json:"-"`
	Status           Status `json:"status"`
	Totals
}

// Active reports whether deposits may be applied to the charger.
func (c Charger) Active() bool { return c.Status == StatusActive }
