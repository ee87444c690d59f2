package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPath(t *testing.T) {
	assert.Equal(t, "/", canonicalPath("/"))
	assert.Equal(t, "/bills/:id", canonicalPath("/bills/42"))
	assert.Equal(t, "/bills/:id/availability", canonicalPath("/bills/42/availability"))
	assert.Equal(t, "/accounts/:identity/holdings", canonicalPath("/accounts/alice/holdings"))
	assert.Equal(t, "/admin/admins/:identity", canonicalPath("/admin/admins/root"))
}

func scrape(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(InstrumentHandler(Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(body)
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordPurchase(ResultOK, 950, 4)
	RecordPurchase("InsufficientFunds", 10_000, 50)
	RecordWalletOp("deposit", ResultOK)
	RecordRateRefresh(true)

	out := scrape(t)
	assert.Contains(t, out, `tbills_trading_purchases_total{result="InsufficientFunds"}`)
	assert.Contains(t, out, `tbills_trading_purchases_total{result="ok"}`)
	assert.Contains(t, out, "tbills_trading_purchase_volume_cents_total")
	assert.Contains(t, out, `tbills_wallet_operations_total{op="deposit",result="ok"}`)
	assert.Contains(t, out, `tbills_rates_refresh_total{result="true"}`)
}
