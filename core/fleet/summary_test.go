package fleet

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/dobi/core/model"
)

func charger(id string, status model.Status, income string) model.Charger {
	in := decimal.RequireFromString(income)
	cost := in.Mul(decimal.RequireFromString("0.4"))
	return model.Charger{ID: id, Status: status, Totals: model.Totals{
		Transactions:    1,
		IncomeGenerated: in,
		CostGenerated:   cost,
		BalanceTotal:    in.Sub(cost),
	}}
}

func TestSummarize(t *testing.T) {
	chargers := []model.Charger{
		charger("C1", model.StatusActive, "1"),
		charger("C2", model.StatusInactive, "3"),
		charger("C3", model.StatusActive, "2"),
	}
	fired := map[string]int{"C1": 2, "C3": 1}

	s := Summarize(chargers, func(id string) int { return fired[id] })

	assert.Equal(t, 3, s.TotalChargers)
	assert.Equal(t, 2, s.ActiveChargers)
	assert.Equal(t, 1, s.InactiveChargers)
	assert.Equal(t, int64(3), s.TotalTransactions)
	assert.Equal(t, "6", s.TotalIncome.String())
	assert.Equal(t, "2.4", s.TotalCosts.String())
	assert.Equal(t, "3.6", s.TotalBalance.String())
	assert.Equal(t, 3, s.ChargesScheduledToday)
	assert.InDelta(t, 2.0, s.IncomeMean, 1e-9)
	assert.InDelta(t, 1.0, s.IncomeStdDev, 1e-9)
	assert.Equal(t, "C2", s.TopEarner)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, nil)
	assert.Zero(t, s.TotalChargers)
	assert.True(t, s.TotalIncome.IsZero())
	assert.Zero(t, s.IncomeStdDev)
	assert.Empty(t, s.TopEarner)
}
