package domain

import "github.com/shopspring/decimal"

var daysPerYear = decimal.NewFromInt(365)

// floorDiv returns floor(num/den) for non-negative operands using exact integer division.
func floorDiv(num, den decimal.Decimal) int64 {
	q, _ := num.QuoRem(den, 0)
	return q.IntPart()
}

// CalculatePurchaseCost prices tokenAmount tokens at the floored per-token price.
func CalculatePurchaseCost(b *Bill, tokenAmount int64) (int64, error) {
	if tokenAmount <= 0 {
		return 0, ErrInvalidTokenAmount
	}
	if b.TotalTokens <= 0 {
		return 0, ErrInternal.Withf("bill %d has no tokens", b.ID)
	}

	perToken := b.PurchasePrice / b.TotalTokens

	return perToken * tokenAmount, nil
}

// CalculateFees returns floor(cost * feePercentage).
func CalculateFees(cost int64, feePercentage float64) int64 {
	return decimal.NewFromInt(cost).Mul(decimal.NewFromFloat(feePercentage)).Floor().IntPart()
}

// CalculateProjectedYield returns floor(investment * annual_yield * days_to_maturity / 365).
func CalculateProjectedYield(b *Bill, investment, now int64) int64 {
	days := b.DaysToMaturity(now)
	if days == 0 || investment <= 0 {
		return 0
	}

	num := decimal.NewFromInt(investment).
		Mul(decimal.NewFromFloat(b.AnnualYield)).
		Mul(decimal.NewFromInt(days))

	return floorDiv(num, daysPerYear)
}

// YieldPercentage returns projected / current * 100, or 0 for an empty position.
func YieldPercentage(projected, current int64) float64 {
	if current == 0 {
		return 0
	}

	return decimal.NewFromInt(projected).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(current)).
		InexactFloat64()
}

// MaturedYield returns face-adjusted value minus purchase cost; negative when bought above par.
func MaturedYield(b *Bill, h *Holding) int64 {
	faceShare := floorDiv(
		decimal.NewFromInt(b.FaceValue).Mul(decimal.NewFromInt(h.TokensOwned)),
		decimal.NewFromInt(b.TotalTokens),
	)

	return faceShare - h.TokensOwned*h.PurchasePricePerToken
}
