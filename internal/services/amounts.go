package services

import (
	"github.com/shopspring/decimal"

	"r2r/internal/core"
)

func sumAmounts(txs []core.Transaction, keep func(core.Transaction) bool) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txs {
		if keep(t) {
			total = total.Add(t.Amount)
		}
	}
	return total
}
