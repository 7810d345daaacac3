// Package fleet aggregates charger totals into fleet wide statistics.
package fleet

import (
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/dobi/core/model"
)

// Summary is the fleet overview served with the detailed charger listing.
type Summary struct {
	TotalChargers         int             `json:"total_chargers"`
	ActiveChargers        int             `json:"active_chargers"`
	InactiveChargers      int             `json:"inactive_chargers"`
	TotalTransactions     int64           `json:"total_transactions"`
	TotalIncome           decimal.Decimal `json:"total_income"`
	TotalCosts            decimal.Decimal `json:"total_costs"`
	TotalBalance          decimal.Decimal `json:"total_balance"`
	ChargesScheduledToday int             `json:"charges_scheduled_today"`
	// IncomeMean and IncomeStdDev describe the per-charger income spread.
	IncomeMean   float64 `json:"income_mean"`
	IncomeStdDev float64 `json:"income_stddev"`
	TopEarner    string  `json:"top_earner,omitempty"`
}

// Summarize folds chargers into a Summary. firedToday returns the deposits a
// charger received since the last daily reset.
func Summarize(chargers []model.Charger, firedToday func(id string) int) Summary {
	s := Summary{
		TotalChargers: len(chargers),
		TotalIncome:   decimal.Zero,
		TotalCosts:    decimal.Zero,
		TotalBalance:  decimal.Zero,
	}
	incomes := make([]float64, 0, len(chargers))
	var top decimal.Decimal
	for _, c := range chargers {
		if c.Active() {
			s.ActiveChargers++
		} else {
			s.InactiveChargers++
		}
		s.TotalTransactions += c.Transactions
		s.TotalIncome = s.TotalIncome.Add(c.IncomeGenerated)
		s.TotalCosts = s.TotalCosts.Add(c.CostGenerated)
		s.TotalBalance = s.TotalBalance.Add(c.BalanceTotal)
		if firedToday != nil {
			s.ChargesScheduledToday += firedToday(c.ID)
		}
		incomes = append(incomes, c.IncomeGenerated.InexactFloat64())
		if c.IncomeGenerated.GreaterThan(top) {
			top = c.IncomeGenerated
			s.TopEarner = c.ID
		}
	}
	switch len(incomes) {
	case 0:
	case 1:
		s.IncomeMean = incomes[0]
	default:
		s.IncomeMean, s.IncomeStdDev = stat.MeanStdDev(incomes, nil)
	}
	return s
}
