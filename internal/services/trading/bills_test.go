package trading

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tbills/internal/domain"
)

func TestCreateBill_Validation(t *testing.T) {
	valid := domain.BillCreateRequest{
		CUSIP:         "594918104",
		FaceValue:     100000,
		PurchasePrice: 98000,
		MaturityDate:  testNow + 180*day,
		AnnualYield:   0.05,
		TotalTokens:   500,
	}

	tests := []struct {
		name    string
		mutate  func(r *domain.BillCreateRequest)
		wantErr error
	}{
		{"bad check digit", func(r *domain.BillCreateRequest) { r.CUSIP = "594918105" }, domain.ErrInvalidCUSIP},
		{"short cusip", func(r *domain.BillCreateRequest) { r.CUSIP = "5949" }, domain.ErrInvalidCUSIP},
		{"yield above one", func(r *domain.BillCreateRequest) { r.AnnualYield = 1.5 }, domain.ErrInvalidYieldRate},
		{"no tokens", func(r *domain.BillCreateRequest) { r.TotalTokens = 0 }, domain.ErrInvalidTokenAmount},
		{"zero price", func(r *domain.BillCreateRequest) { r.PurchasePrice = 0 }, domain.ErrInvalidAmount},
		{"past maturity", func(r *domain.BillCreateRequest) { r.MaturityDate = testNow - 1 }, domain.ErrInvalidDate},
		{"too far out", func(r *domain.BillCreateRequest) { r.MaturityDate = testNow + 6*365*day }, domain.ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := valid
			tt.mutate(&req)

			_, err := f.svc.CreateBill(context.Background(), req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, f.store.Bills.Count())
		})
	}

	f := newFixture(t)
	bill, err := f.svc.CreateBill(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, domain.BillActive, bill.Status)
	assert.Equal(t, int64(500), bill.AvailableTokens())
}

func TestBillsPageAndActiveBills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		f.listBill(t)
	}

	page, err := f.svc.BillsPage(ctx, 2, 10)
	require.NoError(t, err)
	assert.Len(t, page.Data, 5)
	assert.Equal(t, 25, page.Total)
	assert.False(t, page.HasNext)
	assert.Equal(t, uint64(20), page.Data[0].ID)

	page, err = f.svc.BillsPage(ctx, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.False(t, page.HasNext)

	active, err := f.svc.ActiveBills(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 25)
}

func TestMatureBills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	early := f.listBill(t)
	f.verifiedAccount(t, "alice", 1000)
	holding, err := f.svc.Purchase(ctx, early.ID, 10, "alice")
	require.NoError(t, err)

	f.clock += 30 * day
	late := f.listBill(t)

	n, err := f.svc.MatureBills(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// past the first maturity only
	f.clock = early.MaturityDate
	n, err = f.svc.MatureBills(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Bill(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BillMatured, got.Status)

	got, err = f.svc.Bill(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BillActive, got.Status)

	h, err := f.store.Holdings.Get(holding.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldingActive, h.Status)

	// sold tokens stay backed by active holdings after maturity
	got, err = f.svc.Bill(ctx, early.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), got.TokensSold)
	held, err := f.store.HoldingsByBill(early.ID)
	require.NoError(t, err)
	var owned int64
	for _, h := range held {
		if h.Status == domain.HoldingActive {
			owned += h.TokensOwned
		}
	}
	assert.Equal(t, got.TokensSold, owned)

	n, err = f.svc.MatureBills(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdminOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.UpdatePlatformConfig(ctx, domain.PlatformConfig{FeePercentage: 2})
	require.ErrorIs(t, err, domain.ErrValidation)

	cfg := domain.DefaultPlatformConfig()
	cfg.FeePercentage = 0.01
	require.NoError(t, f.svc.UpdatePlatformConfig(ctx, cfg))

	got, err := f.svc.PlatformConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	first, err := f.svc.AddBrokerPurchase(ctx, 1_000_000, 98_500, "BRK-1", "13-week")
	require.NoError(t, err)
	second, err := f.svc.AddBrokerPurchase(ctx, 500_000, 98_600, "BRK-2", "26-week")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first.Sequence)
	assert.Equal(t, uint64(1), second.Sequence)

	_, err = f.svc.AddBrokerPurchase(ctx, 0, 1, "BRK-3", "")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	ledger, err := f.svc.BrokerPurchases(ctx)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, "BRK-2", ledger[1].BrokerTxnID)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats["verified_purchases"])
	assert.Equal(t, 0, stats["bills"])
}

func TestReplaceRates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := []domain.TreasuryRate{
		{CUSIP: "912796RF6", RateDate: "2024-01-01", Rate: 5.26},
		{CUSIP: "912796RF6", RateDate: "2024-01-02", Rate: 5.27},
	}
	require.NoError(t, f.svc.ReplaceRates(ctx, first))

	second := []domain.TreasuryRate{{CUSIP: "912796RG4", RateDate: "2024-02-01", Rate: 5.1}}
	require.NoError(t, f.svc.ReplaceRates(ctx, second))

	rates, err := f.svc.Rates(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, second, rates)

	rates, err = f.svc.Rates(ctx, "912796RF6")
	require.NoError(t, err)
	assert.Empty(t, rates)
}
