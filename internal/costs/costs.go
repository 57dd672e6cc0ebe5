// Package costs computes estimate-versus-actual variance for construction work.
package costs

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Variance returns (actual - estimated) / estimated * 100 rounded to two places.
// A zero estimate yields zero.
func Variance(actual, estimated decimal.Decimal) decimal.Decimal {
	if estimated.IsZero() {
		return decimal.Zero
	}
	return actual.Sub(estimated).Div(estimated).Mul(hundred).Round(2)
}

// Summary aggregates estimated and actual figures for one unit of work.
type Summary struct {
	EstimatedCost  decimal.Decimal `json:"estimated_cost"`
	ActualCost     decimal.Decimal `json:"actual_cost"`
	EstimatedHours decimal.Decimal `json:"estimated_hours"`
	ActualHours    decimal.Decimal `json:"actual_hours"`
}

// Add accumulates another summary into s.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		EstimatedCost:  s.EstimatedCost.Add(o.EstimatedCost),
		ActualCost:     s.ActualCost.Add(o.ActualCost),
		EstimatedHours: s.EstimatedHours.Add(o.EstimatedHours),
		ActualHours:    s.ActualHours.Add(o.ActualHours),
	}
}

func (s Summary) CostVariance() decimal.Decimal {
	return Variance(s.ActualCost, s.EstimatedCost)
}

func (s Summary) TimeVariance() decimal.Decimal {
	return Variance(s.ActualHours, s.EstimatedHours)
}

// Mean returns the arithmetic mean of values rounded to two places, or zero for none.
func Mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(values[0], values[1:]...).Div(decimal.NewFromInt(int64(len(values)))).Round(2)
}

// Hours converts a duration in seconds to hours rounded to two places.
func Hours(seconds int64) decimal.Decimal {
	return decimal.NewFromInt(seconds).Div(decimal.NewFromInt(3600)).Round(2)
}
