package trading

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tbills/internal/domain"
	"github.com/vadiminshakov/tbills/internal/storage/records"
)

const (
	testNow = int64(1_700_000_000)
	day     = int64(86400)
)

type fixture struct {
	svc   *Service
	store *records.Store
	clock int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{store: records.New(nil, nil), clock: testNow}
	svc, err := NewService(f.store, nil, WithClock(func() time.Time { return time.Unix(f.clock, 0) }))
	require.NoError(t, err)
	f.svc = svc

	return f
}

// listBill creates the reference bill: 95000 cents for 1000 tokens, maturing in 91 days.
func (f *fixture) listBill(t *testing.T) domain.Bill {
	t.Helper()

	bill, err := f.svc.CreateBill(context.Background(), domain.BillCreateRequest{
		CUSIP:         "037833100",
		FaceValue:     100000,
		PurchasePrice: 95000,
		MaturityDate:  f.clock + 91*day,
		AnnualYield:   0.0526,
		TotalTokens:   1000,
		Issuer:        "US Treasury",
		BillType:      "13-week",
	})
	require.NoError(t, err)

	return *bill
}

// verifiedAccount registers identity, verifies it and funds its wallet with balance.
func (f *fixture) verifiedAccount(t *testing.T, identity string, balance int64) {
	t.Helper()

	ctx := context.Background()
	_, err := f.svc.RegisterAccount(ctx, identity, domain.RegistrationRequest{
		Email:   identity + "@example.com",
		Country: "US",
	})
	require.NoError(t, err)

	_, err = f.svc.UpdateKYCStatus(ctx, identity, domain.KYCVerified)
	require.NoError(t, err)

	if balance > 0 {
		_, err = f.svc.Deposit(ctx, identity, balance)
		require.NoError(t, err)
	}
}

func TestNewService_RequiresStore(t *testing.T) {
	_, err := NewService(nil, nil)
	require.Error(t, err)
}

func TestPurchase_ReferenceScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bill := f.listBill(t)
	f.verifiedAccount(t, "alice", 1000)

	holding, err := f.svc.Purchase(ctx, bill.ID, 10, "alice")
	require.NoError(t, err)

	assert.Equal(t, "alice", holding.Owner)
	assert.Equal(t, bill.ID, holding.BillID)
	assert.Equal(t, int64(10), holding.TokensOwned)
	assert.Equal(t, int64(95), holding.PurchasePricePerToken)
	assert.Equal(t, int64(950), holding.CurrentValue)
	assert.Equal(t, domain.HoldingActive, holding.Status)
	assert.Equal(t, domain.YieldAtMaturity, holding.YieldOption)
	// floor(950 * 0.0526 * 91 / 365)
	assert.Equal(t, int64(12), holding.ProjectedYield)

	account, err := f.svc.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(46), account.WalletBalance)
	assert.Equal(t, int64(950), account.TotalInvested)

	updated, err := f.svc.Bill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), updated.TokensSold)
	assert.Equal(t, domain.BillActive, updated.Status)

	txs, err := f.svc.TransactionsByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, txs, 3)

	assert.Equal(t, domain.TxDeposit, txs[0].Type)

	purchase := txs[1]
	assert.Equal(t, domain.TxPurchase, purchase.Type)
	assert.Equal(t, int64(950), purchase.Amount)
	assert.Equal(t, int64(4), purchase.Fees)
	assert.Equal(t, "Purchase of 10 tokens from UST Bill "+strconv.FormatUint(bill.ID, 10), purchase.Description)
	require.NotNil(t, purchase.HoldingID)
	assert.Equal(t, holding.ID, *purchase.HoldingID)

	fee := txs[2]
	assert.Equal(t, domain.TxFee, fee.Type)
	assert.Equal(t, int64(4), fee.Amount)
	assert.Equal(t, "Platform fee", fee.Description)
	assert.Equal(t, domain.TxCompleted, fee.Status)

	m, err := f.svc.TradingMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TradingMetrics{
		TotalVolume:       950,
		TotalTransactions: 1,
		AveragePrice:      0,
		HighestPrice:      95,
		LowestPrice:       95,
		LastUpdated:       testNow,
	}, m)
}

func TestPurchase_PreconditionFailuresLeaveStateUntouched(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, f *fixture, bill domain.Bill)
		buyer   string
		billID  func(bill domain.Bill) uint64
		tokens  int64
		wantErr error
	}{
		{
			name:    "unknown account",
			buyer:   "nobody",
			tokens:  10,
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name: "kyc pending",
			prepare: func(t *testing.T, f *fixture, _ domain.Bill) {
				_, err := f.svc.UpdateKYCStatus(context.Background(), "alice", domain.KYCPending)
				require.NoError(t, err)
			},
			buyer:   "alice",
			tokens:  10,
			wantErr: domain.ErrTradingNotAllowed,
		},
		{
			name:    "unknown bill",
			buyer:   "alice",
			billID:  func(domain.Bill) uint64 { return 9999 },
			tokens:  10,
			wantErr: domain.ErrBillNotFound,
		},
		{
			name:    "more tokens than available",
			buyer:   "alice",
			tokens:  1001,
			wantErr: domain.ErrInsufficientTokens,
		},
		{
			name:    "zero tokens",
			buyer:   "alice",
			tokens:  0,
			wantErr: domain.ErrInvalidTokenAmount,
		},
		{
			name:    "below minimum investment",
			buyer:   "alice",
			tokens:  1,
			wantErr: domain.ErrMinimumInvestmentNotMet,
		},
		{
			name: "above maximum investment",
			prepare: func(t *testing.T, f *fixture, _ domain.Bill) {
				cfg := domain.DefaultPlatformConfig()
				cfg.MaximumInvestment = 500
				require.NoError(t, f.svc.UpdatePlatformConfig(context.Background(), cfg))
			},
			buyer:   "alice",
			tokens:  10,
			wantErr: domain.ErrMaximumInvestmentExceeded,
		},
		{
			name: "fees push cost over balance",
			prepare: func(t *testing.T, f *fixture, _ domain.Bill) {
				_, err := f.svc.Withdraw(context.Background(), "alice", 47)
				require.NoError(t, err)
			},
			buyer:   "alice",
			tokens:  10,
			wantErr: domain.ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			bill := f.listBill(t)
			f.verifiedAccount(t, "alice", 1000)
			if tt.prepare != nil {
				tt.prepare(t, f, bill)
			}

			billID := bill.ID
			if tt.billID != nil {
				billID = tt.billID(bill)
			}

			before, err := f.store.Export()
			require.NoError(t, err)

			_, err = f.svc.Purchase(context.Background(), billID, tt.tokens, tt.buyer)
			require.ErrorIs(t, err, tt.wantErr)

			after, err := f.store.Export()
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestPurchase_LastTokensSellOutBill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bill := f.listBill(t)
	f.verifiedAccount(t, "alice", 95475)
	f.verifiedAccount(t, "bob", 10_000)

	_, err := f.svc.Purchase(ctx, bill.ID, 1000, "alice")
	require.NoError(t, err)

	updated, err := f.svc.Bill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BillSoldOut, updated.Status)
	assert.Equal(t, int64(0), updated.AvailableTokens())

	account, err := f.svc.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.WalletBalance)

	_, err = f.svc.Purchase(ctx, bill.ID, 1, "bob")
	require.ErrorIs(t, err, domain.ErrSoldOut)

	availability, err := f.svc.BillAvailability(ctx, bill.ID)
	require.NoError(t, err)
	assert.False(t, availability.Purchasable)
	assert.Equal(t, int64(1000), availability.TokensSold)
}

func TestPurchase_ConcurrentBuyersConserveTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bill := f.listBill(t)

	buyers := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7", "a8"}
	for _, b := range buyers {
		f.verifiedAccount(t, b, 20_000)
	}

	var wg sync.WaitGroup
	for _, b := range buyers {
		wg.Add(1)
		go func(buyer string) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				// failures (sold out, insufficient funds) are expected once supply or cash runs out
				_, _ = f.svc.Purchase(ctx, bill.ID, 10, buyer)
			}
		}(b)
	}
	wg.Wait()

	updated, err := f.svc.Bill(ctx, bill.ID)
	require.NoError(t, err)

	holdings, err := f.store.HoldingsByBill(bill.ID)
	require.NoError(t, err)

	var owned int64
	for _, h := range holdings {
		owned += h.TokensOwned
	}
	assert.Equal(t, updated.TokensSold, owned)
	assert.LessOrEqual(t, updated.TokensSold, updated.TotalTokens)

	for _, b := range buyers {
		account, err := f.svc.Account(ctx, b)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, account.WalletBalance, int64(0))
	}

	m, err := f.svc.TradingMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(holdings)), m.TotalTransactions)
	assert.Equal(t, updated.TokensSold*95, m.TotalVolume)
}

func TestCalculatePurchaseCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bill := f.listBill(t)

	cost, err := f.svc.CalculatePurchaseCost(ctx, bill.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(950), cost)

	_, err = f.svc.CalculatePurchaseCost(ctx, bill.ID, -1)
	require.ErrorIs(t, err, domain.ErrInvalidTokenAmount)

	_, err = f.svc.CalculatePurchaseCost(ctx, 404, 1)
	require.ErrorIs(t, err, domain.ErrBillNotFound)
}

func TestCanceledContext(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Deposit(ctx, "alice", 10)
	require.ErrorIs(t, err, context.Canceled)
}
