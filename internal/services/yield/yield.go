// Package yield derives read-only yield figures for holdings.
package yield

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tbills/internal/domain"
	"github.com/vadiminshakov/tbills/internal/storage/records"
	"go.uber.org/zap"
)

// Engine computes projections from the holding and bill records. It never writes.
type Engine struct {
	store  *records.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a yield engine. A nil clock uses time.Now.
func NewEngine(store *records.Store, logger *zap.Logger, now func() time.Time) (*Engine, error) {
	if store == nil {
		return nil, errors.New("record store is required for yield engine")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}

	return &Engine{store: store, logger: logger, now: now}, nil
}

func (e *Engine) load(ctx context.Context, holdingID uint64) (domain.Holding, domain.Bill, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return domain.Holding{}, domain.Bill{}, err
		}
	}

	h, err := e.store.Holdings.Get(holdingID)
	if err != nil {
		return domain.Holding{}, domain.Bill{}, err
	}

	b, err := e.store.Bills.Get(h.BillID)
	if err != nil {
		return domain.Holding{}, domain.Bill{}, errors.Wrapf(err, "bill of holding %d", holdingID)
	}

	return h, b, nil
}

// Projection returns the yield outlook of a holding at the current time.
func (e *Engine) Projection(ctx context.Context, holdingID uint64) (*domain.YieldProjection, error) {
	h, b, err := e.load(ctx, holdingID)
	if err != nil {
		return nil, err
	}

	now := e.now().Unix()
	projected := domain.CalculateProjectedYield(&b, h.CurrentValue, now)

	return &domain.YieldProjection{
		HoldingID:       h.ID,
		CurrentValue:    h.CurrentValue,
		ProjectedYield:  projected,
		YieldPercentage: domain.YieldPercentage(projected, h.CurrentValue),
		DaysToMaturity:  b.DaysToMaturity(now),
		AnnualYieldRate: b.AnnualYield,
	}, nil
}

// CurrentValue returns the holding value plus yield accrued since purchase.
func (e *Engine) CurrentValue(ctx context.Context, holdingID uint64) (int64, error) {
	h, b, err := e.load(ctx, holdingID)
	if err != nil {
		return 0, err
	}

	return h.CurrentValue + h.AccruedYield(b.AnnualYield, h.DaysHeld(e.now().Unix())), nil
}

// MaturedYield returns the face-value gain of a holding once its bill has matured.
// The result is negative when the tokens were bought above par.
func (e *Engine) MaturedYield(ctx context.Context, holdingID uint64) (int64, error) {
	h, b, err := e.load(ctx, holdingID)
	if err != nil {
		return 0, err
	}

	if !b.HasMatured(e.now().Unix()) {
		return 0, domain.ErrMaturityDatePassed
	}

	gain := domain.MaturedYield(&b, &h)
	if gain < 0 {
		e.logger.Warn("holding matured at a loss",
			zap.Uint64("holding_id", h.ID),
			zap.Uint64("bill_id", b.ID),
			zap.Int64("yield", gain))
	}

	return gain, nil
}
