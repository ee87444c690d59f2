package trading

import (
	"context"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tbills/internal/domain"
	"github.com/vadiminshakov/tbills/internal/storage/records"
	"go.uber.org/zap"
)

// Availability is the token supply snapshot of one bill.
type Availability struct {
	BillID      uint64            `json:"bill_id"`
	TotalTokens int64             `json:"total_tokens"`
	TokensSold  int64             `json:"tokens_sold"`
	Available   int64             `json:"available"`
	Status      domain.BillStatus `json:"status"`
	Purchasable bool              `json:"purchasable"`
}

// CreateBill validates req and lists a new active bill.
func (s *Service) CreateBill(ctx context.Context, req domain.BillCreateRequest) (*domain.Bill, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.unixNow()
	if err := req.Validate(now); err != nil {
		return nil, err
	}

	id, err := s.store.NextID()
	if err != nil {
		return nil, err
	}

	bill := domain.NewBill(id, req, now)
	if err := s.store.Bills.Insert(bill); err != nil {
		return nil, errors.Wrap(err, "insert bill")
	}

	s.logger.Info("bill created",
		zap.Uint64("bill_id", bill.ID),
		zap.String("cusip", bill.CUSIP),
		zap.Int64("total_tokens", bill.TotalTokens),
		zap.Int64("purchase_price", bill.PurchasePrice))

	return &bill, nil
}

// Bill returns the bill stored under id.
func (s *Service) Bill(ctx context.Context, id uint64) (*domain.Bill, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	bill, err := s.store.Bills.Get(id)
	if err != nil {
		return nil, err
	}

	return &bill, nil
}

// ActiveBills returns bills with Active status in id order.
func (s *Service) ActiveBills(ctx context.Context) ([]domain.Bill, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	return s.store.ActiveBills()
}

// BillsPage returns one page of all bills in id order.
func (s *Service) BillsPage(ctx context.Context, page, perPage int) (domain.Page[domain.Bill], error) {
	if err := checkContext(ctx); err != nil {
		return domain.Page[domain.Bill]{}, err
	}

	bills, err := s.store.Bills.List()
	if err != nil {
		return domain.Page[domain.Bill]{}, err
	}

	return domain.Paginate(bills, page, perPage), nil
}

// BillAvailability reports how many tokens of id remain.
func (s *Service) BillAvailability(ctx context.Context, id uint64) (*Availability, error) {
	bill, err := s.Bill(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Availability{
		BillID:      bill.ID,
		TotalTokens: bill.TotalTokens,
		TokensSold:  bill.TokensSold,
		Available:   bill.AvailableTokens(),
		Status:      bill.Status,
		Purchasable: bill.IsPurchasable(),
	}, nil
}

// MatureBills moves every active or sold out bill past its maturity date to Matured
// and returns how many bills changed. Holdings keep their status so the bill's
// sold tokens still equal the tokens held in active holdings.
func (s *Service) MatureBills(ctx context.Context) (int, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.unixNow()
	due, err := s.store.Bills.Filter(func(b domain.Bill) bool {
		return (b.Status == domain.BillActive || b.Status == domain.BillSoldOut) && b.HasMatured(now)
	})
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	b := records.NewBatch()
	for _, bill := range due {
		bill.Status = domain.BillMatured
		bill.UpdatedAt = now
		s.store.Bills.StageUpdate(b, bill)
	}

	if err := s.store.Commit(b); err != nil {
		return 0, errors.Wrap(err, "commit maturity sweep")
	}

	s.logger.Info("bills matured", zap.Int("bills", len(due)))

	return len(due), nil
}
