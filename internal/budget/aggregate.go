package budget

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/treasury/internal/ledger"
)

// Aggregate partitions the tagged transactions of each cost center by sign.
// Negative amounts are earnings (summed as absolute values), positive amounts are
// costs. Transactions tagged with unknown cost centers are ignored.
func Aggregate(centers []CostCenter, txs []ledger.Transaction) []Actuals {
	lookup := make(map[int64]*Actuals, len(centers))
	for _, cc := range centers {
		lookup[cc.ID] = &Actuals{CostCenterID: cc.ID, EarningsActual: decimal.Zero, CostsActual: decimal.Zero}
	}
	for _, t := range txs {
		if t.CostCenterID == nil {
			continue
		}
		row, ok := lookup[*t.CostCenterID]
		if !ok {
			continue
		}
		if t.IsEarning() {
			row.EarningsActual = row.EarningsActual.Add(t.Amount.Abs())
		} else {
			row.CostsActual = row.CostsActual.Add(t.Amount)
		}
	}
	out := make([]Actuals, 0, len(lookup))
	for _, row := range lookup {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CostCenterID < out[j].CostCenterID })
	return out
}
