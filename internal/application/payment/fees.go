package payment

import (
	"github.com/shopspring/decimal"
)

// FeeItem is one line of the fee schedule
type FeeItem struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// FeeSchedule is the fixed set of fees charged per application
type FeeSchedule struct {
	Items []FeeItem `json:"items"`
}

// DefaultFeeSchedule returns the municipal business permit fees
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{Items: []FeeItem{
		{Name: "Business Permit Fee", Amount: decimal.NewFromInt(1500)},
		{Name: "Mayor's Permit Fee", Amount: decimal.NewFromInt(2500)},
		{Name: "Sanitary Permit Fee", Amount: decimal.NewFromInt(500)},
		{Name: "Fire Safety Inspection Fee", Amount: decimal.NewFromInt(300)},
		{Name: "Environmental Fee", Amount: decimal.NewFromInt(200)},
		{Name: "Signage Fee", Amount: decimal.NewFromInt(150)},
	}}
}

// Total sums the line items exactly
func (s FeeSchedule) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.Amount)
	}
	return total
}

// IsEmpty reports whether no schedule is configured, in which case any non-negative amount is accepted
func (s FeeSchedule) IsEmpty() bool {
	return len(s.Items) == 0
}
