// Package rates refreshes the external treasury rate reference table.
package rates

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tbills/internal/domain"
	"github.com/vadiminshakov/tbills/internal/metrics"
	"github.com/vadiminshakov/tbills/pkg/retrier"
	"go.uber.org/zap"
)

const defaultFetchTimeout = 10 * time.Second

// Fetcher retrieves the current treasury rates from an external source.
type Fetcher interface {
	Fetch(ctx context.Context) ([]domain.TreasuryRate, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]domain.TreasuryRate, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]domain.TreasuryRate, error) {
	return f(ctx)
}

// StubFetcher serves the fixed 13-week bill record until a live feed is configured.
type StubFetcher struct{}

func (StubFetcher) Fetch(ctx context.Context) ([]domain.TreasuryRate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return []domain.TreasuryRate{{
		RecordDate:   "2024-01-01",
		SecurityType: "T-Bill",
		SecurityDesc: "13-Week Treasury Bill",
		RateDate:     "2024-01-01",
		Rate:         5.26,
		CUSIP:        "912796RF6",
	}}, nil
}

// Sink stores a complete rate set, replacing the previous one.
type Sink interface {
	ReplaceRates(ctx context.Context, rates []domain.TreasuryRate) error
}

// Refresher pulls rates from a Fetcher and hands them to a Sink.
type Refresher struct {
	fetcher Fetcher
	sink    Sink
	timeout time.Duration
	retry   *retrier.Retrier
	logger  *zap.Logger
}

// RefresherOption customizes a Refresher.
type RefresherOption func(*Refresher)

// WithRetrier repeats failed fetches according to r. Each attempt gets its own timeout.
func WithRetrier(r *retrier.Retrier) RefresherOption {
	return func(rf *Refresher) { rf.retry = r }
}

// NewRefresher creates a Refresher. A non-positive timeout falls back to ten seconds.
// Without WithRetrier a failed fetch is not repeated.
func NewRefresher(fetcher Fetcher, sink Sink, timeout time.Duration, logger *zap.Logger, opts ...RefresherOption) *Refresher {
	if fetcher == nil {
		fetcher = StubFetcher{}
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Refresher{fetcher: fetcher, sink: sink, timeout: timeout, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	if r.retry == nil {
		r.retry = retrier.New(retrier.WithMaxRetries(0))
	}

	return r
}

func (r *Refresher) fetch(ctx context.Context) ([]domain.TreasuryRate, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.fetcher.Fetch(fetchCtx)
}

// Refresh fetches the current rates and replaces the stored table with them.
// The fetch runs without any engine lock held; a failed fetch leaves the stored rates as they were.
func (r *Refresher) Refresh(ctx context.Context) ([]domain.TreasuryRate, error) {
	fetched, err := retrier.DoWithData(r.retry, ctx, r.fetch)
	if err != nil {
		metrics.RecordRateRefresh(false)
		r.logger.Warn("treasury rate fetch failed", zap.Error(err))
		return nil, errors.Wrap(domain.ErrTreasuryDataFetch.Withf("fetch treasury rates: %v", err), "refresh rates")
	}

	rates := dedupe(fetched)
	if err := r.sink.ReplaceRates(ctx, rates); err != nil {
		metrics.RecordRateRefresh(false)
		return nil, errors.Wrap(err, "store treasury rates")
	}

	metrics.RecordRateRefresh(true)
	r.logger.Info("treasury rates refreshed", zap.Int("count", len(rates)))

	return rates, nil
}

// dedupe keeps the last record per key, preserving first-seen order.
func dedupe(in []domain.TreasuryRate) []domain.TreasuryRate {
	pos := make(map[string]int, len(in))
	out := make([]domain.TreasuryRate, 0, len(in))
	for _, rate := range in {
		if i, ok := pos[rate.Key()]; ok {
			out[i] = rate
			continue
		}
		pos[rate.Key()] = len(out)
		out = append(out, rate)
	}

	return out
}
