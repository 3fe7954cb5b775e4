package engine

import (
	"github.com/shopspring/decimal"

	"worktally/internal/domain"
)

// Totals are the derived sums over a task list. Both values are exact
// decimals; rounding happens at the presentation boundary only.
type Totals struct {
	HoursWorked decimal.Decimal `json:"total_hours_worked"`
	Cost        decimal.Decimal `json:"total_cost"`
}

// Aggregate sums hours and cost over completed tasks. Cost uses the
// attribution recorded at completion time; a completed task without one
// (possible only under the zero-rate policy before attribution existed)
// contributes hours but no cost.
func Aggregate(tasks []domain.Task) Totals {
	hours := decimal.Zero
	cost := decimal.Zero
	for _, t := range tasks {
		if !t.Completed {
			continue
		}
		hours = hours.Add(t.HoursWorked)
		if t.Attribution != nil {
			cost = cost.Add(t.HoursWorked.Mul(t.Attribution.HourlyRate))
		}
	}
	return Totals{HoursWorked: hours, Cost: cost}
}
