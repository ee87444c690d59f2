// Package app wires the record store, services, scheduler and HTTP server into one process.
package app

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/vadiminshakov/tbills/config"
	"github.com/vadiminshakov/tbills/internal/guard"
	"github.com/vadiminshakov/tbills/internal/metrics"
	"github.com/vadiminshakov/tbills/internal/services/rates"
	"github.com/vadiminshakov/tbills/internal/services/trading"
	"github.com/vadiminshakov/tbills/internal/services/yield"
	"github.com/vadiminshakov/tbills/internal/storage/records"
	"github.com/vadiminshakov/tbills/internal/storage/snapshot"
	"github.com/vadiminshakov/tbills/internal/web"
	"github.com/vadiminshakov/tbills/pkg/retrier"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	jobRateRefresh   = "rate_refresh"
	jobMaturitySweep = "maturity_sweep"
	jobCheckpoint    = "checkpoint"
)

// App is a running platform instance.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  func() time.Time

	store     *records.Store
	snapshots *snapshot.Store
	admins    *guard.Set

	Trading   *trading.Service
	Yields    *yield.Engine
	Refresher *rates.Refresher
	Server    *web.Server

	scheduler *cron.Cron
	saveMu    sync.Mutex
	closeOnce sync.Once
}

// Option customizes an App.
type Option func(*options)

type options struct {
	fetcher rates.Fetcher
	clock   func() time.Time
}

// WithFetcher replaces the treasury rate source.
func WithFetcher(f rates.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithClock overrides the time source of the engines.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// New restores state from the data directory and builds every component.
// Restore order: snapshot import, journal replay, then authorized set and config seeding.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{fetcher: rates.StubFetcher{}, clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	journal, err := records.NewWALJournal(records.JournalConfig{
		Dir:              filepath.Join(cfg.DataDir, "wal"),
		SegmentThreshold: cfg.WALSegmentThreshold,
		MaxSegments:      cfg.WALMaxSegments,
		SyncWrites:       cfg.WALSyncWrites,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open records journal")
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  o.clock,
		store:  records.New(journal, logger.Named("records")),
		admins: guard.New(),
	}

	if err := a.restore(); err != nil {
		_ = a.store.Close()
		return nil, err
	}

	if a.Trading, err = trading.NewService(a.store, logger.Named("trading"), trading.WithClock(o.clock)); err != nil {
		_ = a.store.Close()
		return nil, err
	}
	if a.Yields, err = yield.NewEngine(a.store, logger.Named("yield"), o.clock); err != nil {
		_ = a.store.Close()
		return nil, err
	}
	rateLogger := logger.Named("rates")
	retry := retrier.New(
		retrier.WithMaxRetries(cfg.RateFetchRetries),
		retrier.WithOnRetry(func(attempt int, wait time.Duration, err error) {
			rateLogger.Warn("retrying treasury rate fetch",
				zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(err))
		}),
	)
	a.Refresher = rates.NewRefresher(o.fetcher, a.Trading, cfg.RateFetchTimeout, rateLogger, rates.WithRetrier(retry))
	a.Server = web.NewServer(cfg.HTTPAddr, a.Trading, a.Yields, a.Refresher, a.admins, logger.Named("http"))

	if err := a.schedule(); err != nil {
		_ = a.store.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) restore() error {
	snapshots, err := snapshot.NewStore(a.cfg.DataDir)
	if err != nil {
		return err
	}
	a.snapshots = snapshots

	blob, err := snapshots.Load()
	if err != nil {
		return errors.Wrap(err, "load snapshot")
	}
	if blob != nil {
		if err := a.store.Import(blob.State); err != nil {
			return errors.Wrap(err, "import snapshot")
		}
		a.admins.Replace(blob.Authorized)
		a.logger.Info("snapshot loaded",
			zap.String("path", snapshots.Path()),
			zap.Uint64("seq", blob.State.Seq),
			zap.Int("admins", len(blob.Authorized)))
	}

	applied, err := a.store.Recover()
	if err != nil {
		return errors.Wrap(err, "replay records journal")
	}

	for _, id := range a.cfg.Admins {
		a.admins.Add(id)
	}

	if !a.store.ConfigInitialized() {
		if err := a.store.Config.Set(a.cfg.Platform); err != nil {
			return errors.Wrap(err, "seed platform config")
		}
	}

	a.logger.Info("state restored",
		zap.Int("journal_records", applied),
		zap.Any("tables", a.store.Stats()),
		zap.Strings("admins", a.admins.List()))

	return nil
}

func (a *App) schedule() error {
	a.scheduler = cron.New()

	if _, err := a.scheduler.AddFunc(a.cfg.RateRefreshSpec, a.job(jobRateRefresh, func(ctx context.Context) error {
		_, err := a.Refresher.Refresh(ctx)
		return err
	})); err != nil {
		return errors.Wrapf(err, "schedule %s %q", jobRateRefresh, a.cfg.RateRefreshSpec)
	}

	if a.cfg.MaturitySweepInterval > 0 {
		if _, err := a.scheduler.AddFunc(every(a.cfg.MaturitySweepInterval), a.job(jobMaturitySweep, func(ctx context.Context) error {
			_, err := a.Trading.MatureBills(ctx)
			return err
		})); err != nil {
			return errors.Wrapf(err, "schedule %s", jobMaturitySweep)
		}
	}

	if a.cfg.CheckpointInterval > 0 {
		if _, err := a.scheduler.AddFunc(every(a.cfg.CheckpointInterval), a.job(jobCheckpoint, func(context.Context) error {
			return a.Checkpoint()
		})); err != nil {
			return errors.Wrapf(err, "schedule %s", jobCheckpoint)
		}
	}

	return nil
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// job adapts fn to a cron callback that logs and records its outcome.
func (a *App) job(name string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		start := time.Now()
		err := fn(ctx)
		metrics.RecordJob(name, time.Since(start), err == nil)
		if err != nil {
			a.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
			return
		}
		a.logger.Debug("scheduled job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}
}

// Checkpoint writes the full store and authorized set to the snapshot file.
func (a *App) Checkpoint() error {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	state, err := a.store.Export()
	if err != nil {
		return errors.Wrap(err, "export store")
	}

	blob := snapshot.Blob{
		SavedAt:    a.clock().Unix(),
		State:      state,
		Authorized: a.admins.List(),
	}
	if err := a.snapshots.Save(blob); err != nil {
		return err
	}

	a.logger.Info("snapshot saved", zap.Uint64("seq", state.Seq), zap.String("path", a.snapshots.Path()))

	return nil
}

// Admins returns the authorized identity set.
func (a *App) Admins() *guard.Set {
	return a.admins
}

// Run serves HTTP and runs the scheduled jobs until ctx is cancelled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	a.scheduler.Start()
	a.logger.Info("scheduler started", zap.Int("jobs", len(a.scheduler.Entries())))

	g.Go(func() error {
		return a.Server.Start(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		stopped := a.scheduler.Stop()
		<-stopped.Done()
		return nil
	})

	runErr := g.Wait()
	if err := a.Shutdown(); err != nil {
		if runErr == nil {
			return err
		}
		a.logger.Error("shutdown", zap.Error(err))
	}

	return runErr
}

// Shutdown saves a final snapshot and closes the journal. It is safe to call more than once.
func (a *App) Shutdown() error {
	var err error
	a.closeOnce.Do(func() {
		if cpErr := a.Checkpoint(); cpErr != nil {
			err = errors.Wrap(cpErr, "final checkpoint")
		}
		if closeErr := a.store.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "close records journal")
		}
		a.logger.Info("platform stopped")
	})

	return err
}
