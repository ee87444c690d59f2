// Package trading executes token purchases, wallet movements and bill administration
// against the record store.
package trading

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tbills/internal/domain"
	"github.com/vadiminshakov/tbills/internal/metrics"
	"github.com/vadiminshakov/tbills/internal/storage/records"
	"go.uber.org/zap"
)

// Service is the trading engine. Every mutating operation holds mu for its whole
// read-validate-write sequence, so operations never interleave their store writes.
type Service struct {
	mu     sync.Mutex
	store  *records.Store
	logger *zap.Logger
	now    func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a trading engine over store.
func NewService(store *records.Store, logger *zap.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("record store is required for trading service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Service) unixNow() int64 {
	return s.now().Unix()
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}

	return ctx.Err()
}

// resultLabel maps an operation outcome to a metrics label.
func resultLabel(err error) string {
	if err == nil {
		return metrics.ResultOK
	}

	return domain.CodeOf(err)
}
