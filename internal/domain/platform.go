package domain

import "github.com/shopspring/decimal"

// PlatformConfig holds the trading limits and schedules.
type PlatformConfig struct {
	FeePercentage                  float64 `json:"fee_percentage"`
	MinimumInvestment              int64   `json:"minimum_investment"`
	MaximumInvestment              int64   `json:"maximum_investment"`
	YieldDistributionFrequencyDays int64   `json:"yield_distribution_frequency_days"`
	KYCExpiryDays                  int64   `json:"kyc_expiry_days"`
	ExternalRateRefreshSeconds     int64   `json:"external_rate_refresh_seconds"`
}

// DefaultPlatformConfig returns the limits a fresh store starts with.
func DefaultPlatformConfig() PlatformConfig {
	return PlatformConfig{
		FeePercentage:                  0.005,
		MinimumInvestment:              100,       // $1
		MaximumInvestment:              1_000_000, // $10,000
		YieldDistributionFrequencyDays: 1,
		KYCExpiryDays:                  365,
		ExternalRateRefreshSeconds:     3600,
	}
}

// Validate checks the configuration bounds.
func (c PlatformConfig) Validate() error {
	if c.FeePercentage < 0 || c.FeePercentage > 1 {
		return NewValidationError("fee percentage must be between 0 and 1")
	}
	if c.MinimumInvestment <= 0 {
		return NewValidationError("minimum investment must be greater than zero")
	}
	if c.MaximumInvestment < c.MinimumInvestment {
		return NewValidationError("maximum investment must not be below minimum investment")
	}
	if c.YieldDistributionFrequencyDays <= 0 || c.KYCExpiryDays <= 0 || c.ExternalRateRefreshSeconds <= 0 {
		return NewValidationError("schedule values must be greater than zero")
	}

	return nil
}

// TradingMetrics is the streaming aggregate over all purchases.
type TradingMetrics struct {
	TotalVolume       int64 `json:"total_volume"`
	TotalTransactions int64 `json:"total_transactions"`
	AveragePrice      int64 `json:"average_price"`
	HighestPrice      int64 `json:"highest_price"`
	LowestPrice       int64 `json:"lowest_price"`
	LastUpdated       int64 `json:"last_updated"`
}

// Record folds one purchase into the aggregate.
// Volume is added first; the average is then weighted by the updated volume.
func (m *TradingMetrics) Record(cost, pricePerToken, now int64) {
	m.TotalVolume += cost
	m.TotalTransactions++

	if pricePerToken > 0 {
		if m.HighestPrice == 0 || pricePerToken > m.HighestPrice {
			m.HighestPrice = pricePerToken
		}
		if m.LowestPrice == 0 || pricePerToken < m.LowestPrice {
			m.LowestPrice = pricePerToken
		}
	}

	if m.TotalVolume > 0 {
		weighted := decimal.NewFromInt(m.AveragePrice).
			Mul(decimal.NewFromInt(m.TotalVolume)).
			Add(decimal.NewFromInt(pricePerToken))
		m.AveragePrice = floorDiv(weighted, decimal.NewFromInt(m.TotalVolume+1))
	} else {
		m.AveragePrice = pricePerToken
	}

	m.LastUpdated = now
}
