package domain

import "github.com/shopspring/decimal"

// YieldOption selects when yield is paid out.
type YieldOption string

const (
	YieldAtMaturity YieldOption = "Maturity"
	YieldFlexible   YieldOption = "Flexible"
)

// HoldingStatus is the lifecycle state of a holding.
type HoldingStatus string

const (
	HoldingActive    HoldingStatus = "Active"
	HoldingSold      HoldingStatus = "Sold"
	HoldingMatured   HoldingStatus = "Matured"
	HoldingCancelled HoldingStatus = "Cancelled"
)

// Holding is a buyer's fractional position in a bill.
type Holding struct {
	ID                    uint64        `json:"id"`
	Owner                 string        `json:"owner"`
	BillID                uint64        `json:"bill_id"`
	TokensOwned           int64         `json:"tokens_owned"`
	PurchasePricePerToken int64         `json:"purchase_price_per_token"`
	PurchaseDate          int64         `json:"purchase_date"`
	YieldOption           YieldOption   `json:"yield_option"`
	Status                HoldingStatus `json:"status"`
	CurrentValue          int64         `json:"current_value"`
	ProjectedYield        int64         `json:"projected_yield"`
}

// AccruedYield returns floor(tokens * price * rate / 365 * days).
func (h *Holding) AccruedYield(annualRate float64, daysHeld int64) int64 {
	if daysHeld <= 0 {
		return 0
	}

	num := decimal.NewFromInt(h.TokensOwned).
		Mul(decimal.NewFromInt(h.PurchasePricePerToken)).
		Mul(decimal.NewFromFloat(annualRate)).
		Mul(decimal.NewFromInt(daysHeld))

	return floorDiv(num, daysPerYear)
}

// DaysHeld returns whole days since purchase.
func (h *Holding) DaysHeld(now int64) int64 {
	if now <= h.PurchaseDate {
		return 0
	}

	return (now - h.PurchaseDate) / secondsPerDay
}

// YieldProjection is the read-only yield outlook of a holding.
type YieldProjection struct {
	HoldingID       uint64  `json:"holding_id"`
	CurrentValue    int64   `json:"current_value"`
	ProjectedYield  int64   `json:"projected_yield"`
	YieldPercentage float64 `json:"yield_percentage"`
	DaysToMaturity  int64   `json:"days_to_maturity"`
	AnnualYieldRate float64 `json:"annual_yield_rate"`
}
