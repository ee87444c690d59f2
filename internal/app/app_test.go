package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tbills/config"
	"github.com/vadiminshakov/tbills/internal/domain"
	"github.com/vadiminshakov/tbills/internal/services/rates"
	"github.com/vadiminshakov/tbills/internal/storage/snapshot"
)

const testNow = int64(1_700_000_000)

func testConfig(t *testing.T, dir string) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.DataDir = dir
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.Admins = []string{"root"}

	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, opts ...Option) *App {
	t.Helper()

	opts = append([]Option{WithClock(func() time.Time { return time.Unix(testNow, 0) })}, opts...)
	a, err := New(cfg, nil, opts...)
	require.NoError(t, err)

	return a
}

// seed lists a bill and lets alice buy 10 tokens of it.
func seed(t *testing.T, a *App) (domain.Bill, *domain.Holding) {
	t.Helper()

	ctx := context.Background()
	bill, err := a.Trading.CreateBill(ctx, domain.BillCreateRequest{
		CUSIP:         "037833100",
		FaceValue:     100000,
		PurchasePrice: 95000,
		MaturityDate:  testNow + 91*86400,
		AnnualYield:   0.0526,
		TotalTokens:   1000,
	})
	require.NoError(t, err)

	_, err = a.Trading.RegisterAccount(ctx, "alice", domain.RegistrationRequest{Email: "alice@example.com", Country: "US"})
	require.NoError(t, err)
	_, err = a.Trading.UpdateKYCStatus(ctx, "alice", domain.KYCVerified)
	require.NoError(t, err)
	_, err = a.Trading.Deposit(ctx, "alice", 1000)
	require.NoError(t, err)

	holding, err := a.Trading.Purchase(ctx, bill.ID, 10, "alice")
	require.NoError(t, err)

	return *bill, holding
}

func TestApp_RestartRestoresSnapshot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a := newTestApp(t, testConfig(t, dir))
	bill, holding := seed(t, a)
	a.Admins().Add("ops")

	custom := domain.DefaultPlatformConfig()
	custom.FeePercentage = 0.01
	require.NoError(t, a.Trading.UpdatePlatformConfig(ctx, custom))

	require.NoError(t, a.Shutdown())
	require.NoError(t, a.Shutdown())
	require.FileExists(t, filepath.Join(dir, "snapshot.json"))

	cfg := testConfig(t, dir)
	cfg.Admins = nil
	restarted := newTestApp(t, cfg)
	t.Cleanup(func() { _ = restarted.Shutdown() })

	account, err := restarted.Trading.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(46), account.WalletBalance)

	holdings, err := restarted.Trading.HoldingsByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, holding.ID, holdings[0].ID)

	stored, err := restarted.Trading.Bill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), stored.TokensSold)

	platform, err := restarted.Trading.PlatformConfig(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, platform.FeePercentage, 1e-9)

	assert.Equal(t, []string{"ops", "root"}, restarted.Admins().List())

	txs, err := restarted.Trading.TransactionsByOwner(ctx, "alice")
	require.NoError(t, err)
	var maxID uint64
	for _, tx := range txs {
		maxID = max(maxID, tx.ID)
	}

	next, err := restarted.Trading.CreateBill(ctx, domain.BillCreateRequest{
		CUSIP:         "594918104",
		FaceValue:     100000,
		PurchasePrice: 97000,
		MaturityDate:  testNow + 182*86400,
		AnnualYield:   0.05,
		TotalTokens:   500,
	})
	require.NoError(t, err)
	assert.Greater(t, next.ID, maxID)
}

func TestApp_ReplaysJournalWithoutSnapshot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a := newTestApp(t, testConfig(t, dir))
	seed(t, a)
	// crash: the journal is closed but no checkpoint is taken
	require.NoError(t, a.store.Close())

	_, err := os.Stat(filepath.Join(dir, "snapshot.json"))
	require.True(t, os.IsNotExist(err))

	restarted := newTestApp(t, testConfig(t, dir))
	t.Cleanup(func() { _ = restarted.Shutdown() })

	account, err := restarted.Trading.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(46), account.WalletBalance)

	m, err := restarted.Trading.TradingMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(950), m.TotalVolume)
	assert.Equal(t, int64(1), m.TotalTransactions)
}

func TestApp_CheckpointStoresAuthorizedSet(t *testing.T) {
	dir := t.TempDir()

	a := newTestApp(t, testConfig(t, dir))
	t.Cleanup(func() { _ = a.Shutdown() })
	a.Admins().Add("auditor")

	require.NoError(t, a.Checkpoint())

	snapshots, err := snapshot.NewStore(dir)
	require.NoError(t, err)
	blob, err := snapshots.Load()
	require.NoError(t, err)
	require.NotNil(t, blob)

	assert.Equal(t, snapshot.CurrentVersion, blob.Version)
	assert.Equal(t, testNow, blob.SavedAt)
	assert.Equal(t, []string{"auditor", "root"}, blob.Authorized)
}

func TestApp_RefreshJobUsesFetcher(t *testing.T) {
	calls := 0
	fetcher := rates.FetcherFunc(func(ctx context.Context) ([]domain.TreasuryRate, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("upstream down")
		}
		return rates.StubFetcher{}.Fetch(ctx)
	})

	cfg := testConfig(t, t.TempDir())
	cfg.RateFetchRetries = 0
	a := newTestApp(t, cfg, WithFetcher(fetcher))
	t.Cleanup(func() { _ = a.Shutdown() })

	run := a.job(jobRateRefresh, func(ctx context.Context) error {
		_, err := a.Refresher.Refresh(ctx)
		return err
	})

	run()
	stored, err := a.Trading.Rates(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, stored)

	run()
	stored, err = a.Trading.Rates(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "912796RF6", stored[0].CUSIP)
}

func TestApp_MaturitySweepJob(t *testing.T) {
	ctx := context.Background()
	clock := testNow

	a, err := New(testConfig(t, t.TempDir()), nil, WithClock(func() time.Time { return time.Unix(clock, 0) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown() })

	bill, _ := seed(t, a)

	clock = bill.MaturityDate
	a.job(jobMaturitySweep, func(ctx context.Context) error {
		_, err := a.Trading.MatureBills(ctx)
		return err
	})()

	stored, err := a.Trading.Bill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BillMatured, stored.Status)
}

func TestNew_RejectsBadRefreshSpec(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.RateRefreshSpec = "every sometimes"

	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestEvery(t *testing.T) {
	assert.Equal(t, "@every 5m0s", every(5*time.Minute))
}
