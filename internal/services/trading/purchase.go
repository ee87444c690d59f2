package trading

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tbills/internal/domain"
	"github.com/vadiminshakov/tbills/internal/metrics"
	"github.com/vadiminshakov/tbills/internal/storage/records"
	"go.uber.org/zap"
)

// quote is the outcome of the purchase precondition checks.
type quote struct {
	account domain.Account
	bill    domain.Bill
	config  domain.PlatformConfig
	cost    int64
	fees    int64
}

// Purchase buys tokenAmount tokens of billID for buyer and returns the new holding.
// All preconditions are checked before anything is written; the effects are committed as one batch.
func (s *Service) Purchase(ctx context.Context, billID uint64, tokenAmount int64, buyer string) (*domain.Holding, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.quote(billID, tokenAmount, buyer)
	if err != nil {
		metrics.RecordPurchase(resultLabel(err), 0, 0)
		s.logger.Info("purchase rejected",
			zap.Uint64("bill_id", billID),
			zap.Int64("tokens", tokenAmount),
			zap.String("buyer", buyer),
			zap.Error(err))
		return nil, err
	}

	holding, err := s.settle(q, tokenAmount)
	if err != nil {
		metrics.RecordPurchase(resultLabel(err), 0, 0)
		s.logger.Error("purchase settlement failed",
			zap.Uint64("bill_id", billID),
			zap.String("buyer", buyer),
			zap.Error(err))
		return nil, err
	}

	metrics.RecordPurchase(metrics.ResultOK, q.cost, q.fees)
	s.logger.Info("purchase settled",
		zap.Uint64("bill_id", billID),
		zap.Uint64("holding_id", holding.ID),
		zap.String("buyer", buyer),
		zap.Int64("tokens", tokenAmount),
		zap.Int64("cost", q.cost),
		zap.Int64("fees", q.fees))

	return holding, nil
}

// quote runs the ordered purchase preconditions; the first failure wins.
func (s *Service) quote(billID uint64, tokenAmount int64, buyer string) (quote, error) {
	account, err := s.store.Accounts.Get(buyer)
	if err != nil {
		return quote{}, err
	}
	if !account.IsTradingEligible() {
		return quote{}, domain.ErrTradingNotAllowed
	}

	bill, err := s.store.Bills.Get(billID)
	if err != nil {
		return quote{}, err
	}
	if !bill.IsPurchasable() {
		return quote{}, domain.ErrSoldOut
	}
	if bill.AvailableTokens() < tokenAmount {
		return quote{}, domain.ErrInsufficientTokens
	}

	cost, err := domain.CalculatePurchaseCost(&bill, tokenAmount)
	if err != nil {
		return quote{}, err
	}

	cfg, err := s.store.Config.Get()
	if err != nil {
		return quote{}, errors.Wrap(err, "load platform config")
	}
	if cost < cfg.MinimumInvestment {
		return quote{}, domain.ErrMinimumInvestmentNotMet
	}
	if cost > cfg.MaximumInvestment {
		return quote{}, domain.ErrMaximumInvestmentExceeded
	}

	fees := domain.CalculateFees(cost, cfg.FeePercentage)
	if account.WalletBalance < cost+fees {
		return quote{}, domain.ErrInsufficientFunds
	}

	return quote{account: account, bill: bill, config: cfg, cost: cost, fees: fees}, nil
}

// settle stages every effect of a validated purchase and commits them together.
func (s *Service) settle(q quote, tokenAmount int64) (*domain.Holding, error) {
	tradeMetrics, err := s.store.Metrics.Get()
	if err != nil {
		return nil, errors.Wrap(err, "load trading metrics")
	}

	holdingID, err := s.store.NextID()
	if err != nil {
		return nil, err
	}
	purchaseTxID, err := s.store.NextID()
	if err != nil {
		return nil, err
	}
	feeTxID, err := s.store.NextID()
	if err != nil {
		return nil, err
	}

	now := s.unixNow()
	account, bill := q.account, q.bill

	account.WalletBalance -= q.cost + q.fees
	account.TotalInvested += q.cost
	account.UpdatedAt = now

	bill.TokensSold += tokenAmount
	if bill.TokensSold >= bill.TotalTokens {
		bill.Status = domain.BillSoldOut
	}
	bill.UpdatedAt = now

	pricePerToken := q.cost / tokenAmount
	holding := domain.Holding{
		ID:                    holdingID,
		Owner:                 account.Identity,
		BillID:                bill.ID,
		TokensOwned:           tokenAmount,
		PurchasePricePerToken: pricePerToken,
		PurchaseDate:          now,
		YieldOption:           domain.YieldAtMaturity,
		Status:                domain.HoldingActive,
		CurrentValue:          q.cost,
		ProjectedYield:        domain.CalculateProjectedYield(&bill, q.cost, now),
	}

	billRef, holdingRef := bill.ID, holding.ID
	purchaseTx := domain.Transaction{
		ID:          purchaseTxID,
		Owner:       account.Identity,
		Type:        domain.TxPurchase,
		Amount:      q.cost,
		Fees:        q.fees,
		BillID:      &billRef,
		HoldingID:   &holdingRef,
		Timestamp:   now,
		Status:      domain.TxCompleted,
		Description: domain.PurchaseDescription(tokenAmount, bill.ID),
	}
	feeTx := domain.Transaction{
		ID:          feeTxID,
		Owner:       account.Identity,
		Type:        domain.TxFee,
		Amount:      q.fees,
		BillID:      &billRef,
		HoldingID:   &holdingRef,
		Timestamp:   now,
		Status:      domain.TxCompleted,
		Description: "Platform fee",
	}

	tradeMetrics.Record(q.cost, pricePerToken, now)

	b := records.NewBatch()
	s.store.Accounts.StageUpdate(b, account)
	s.store.Bills.StageUpdate(b, bill)
	s.store.Holdings.StageInsert(b, holding)
	s.store.Transactions.StageInsert(b, purchaseTx)
	s.store.Transactions.StageInsert(b, feeTx)
	s.store.Metrics.StageSet(b, tradeMetrics)

	if err := s.store.Commit(b); err != nil {
		return nil, errors.Wrap(err, "commit purchase")
	}

	return &holding, nil
}

// CalculatePurchaseCost prices tokenAmount tokens of billID without buying them.
func (s *Service) CalculatePurchaseCost(ctx context.Context, billID uint64, tokenAmount int64) (int64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}

	bill, err := s.store.Bills.Get(billID)
	if err != nil {
		return 0, err
	}

	return domain.CalculatePurchaseCost(&bill, tokenAmount)
}
