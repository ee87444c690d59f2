package trading

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tbills/internal/domain"
	"github.com/vadiminshakov/tbills/internal/storage/records"
	"go.uber.org/zap"
)

// PlatformConfig returns the current trading limits.
func (s *Service) PlatformConfig(ctx context.Context) (domain.PlatformConfig, error) {
	if err := checkContext(ctx); err != nil {
		return domain.PlatformConfig{}, err
	}

	return s.store.Config.Get()
}

// UpdatePlatformConfig validates and replaces the trading limits.
func (s *Service) UpdatePlatformConfig(ctx context.Context, cfg domain.PlatformConfig) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Config.Set(cfg); err != nil {
		return err
	}

	s.logger.Info("platform config updated",
		zap.Float64("fee_percentage", cfg.FeePercentage),
		zap.Int64("minimum_investment", cfg.MinimumInvestment),
		zap.Int64("maximum_investment", cfg.MaximumInvestment))

	return nil
}

// TradingMetrics returns the purchase aggregate.
func (s *Service) TradingMetrics(ctx context.Context) (domain.TradingMetrics, error) {
	if err := checkContext(ctx); err != nil {
		return domain.TradingMetrics{}, err
	}

	return s.store.Metrics.Get()
}

// AddBrokerPurchase appends a verified off-system purchase to the broker ledger.
func (s *Service) AddBrokerPurchase(ctx context.Context, amount, price int64, brokerTxnID, billType string) (*domain.VerifiedBrokerPurchase, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if amount <= 0 || price <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if strings.TrimSpace(brokerTxnID) == "" {
		return nil, domain.NewValidationError("broker transaction id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := domain.VerifiedBrokerPurchase{
		Sequence:    uint64(s.store.BrokerPurchases.Count()),
		Amount:      amount,
		Price:       price,
		Timestamp:   s.unixNow(),
		BrokerTxnID: brokerTxnID,
		BillType:    billType,
	}
	if err := s.store.BrokerPurchases.Insert(p); err != nil {
		return nil, err
	}

	s.logger.Info("broker purchase recorded",
		zap.Uint64("sequence", p.Sequence),
		zap.String("broker_txn_id", brokerTxnID),
		zap.Int64("amount", amount))

	return &p, nil
}

// BrokerPurchases returns the broker ledger in insertion order.
func (s *Service) BrokerPurchases(ctx context.Context) ([]domain.VerifiedBrokerPurchase, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	return s.store.BrokerPurchases.List()
}

// Stats returns entity counts per table.
func (s *Service) Stats(ctx context.Context) (map[string]int, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	return s.store.Stats(), nil
}

// ReplaceRates swaps the whole rate table for rates in one batch.
func (s *Service) ReplaceRates(ctx context.Context, rates []domain.TreasuryRate) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := records.NewBatch()
	s.store.Rates.StageClear(b)
	for _, r := range rates {
		s.store.Rates.StageInsert(b, r)
	}
	if err := s.store.Commit(b); err != nil {
		return errors.Wrap(err, "replace treasury rates")
	}

	return nil
}

// Rates returns the stored treasury rates in key order, optionally limited to one CUSIP.
func (s *Service) Rates(ctx context.Context, cusip string) ([]domain.TreasuryRate, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if cusip != "" {
		return s.store.RatesByCUSIP(cusip)
	}

	return s.store.Rates.List()
}
