package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tbills/internal/domain"
	"github.com/vadiminshakov/tbills/internal/storage/records"
)

func TestStore_LoadMissing(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	blob, err := s.Load()
	require.NoError(t, err)
	assert.Nil(t, blob)
}

func TestStore_SaveLoad(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	cfg := domain.DefaultPlatformConfig()
	cfg.FeePercentage = 0.01
	blob := Blob{
		SavedAt: 1_700_000_000,
		State: records.State{
			Seq:      12,
			NextID:   4,
			Bills:    []domain.Bill{{ID: 1, CUSIP: "037833100", TotalTokens: 1000, Status: domain.BillActive}},
			Accounts: []domain.Account{{Identity: "alice", Email: "alice@example.com", IsActive: true}},
			Config:   &cfg,
			Metrics:  domain.TradingMetrics{TotalVolume: 950, TotalTransactions: 1},
		},
		Authorized: []string{"admin-1", "admin-2"},
	}
	require.NoError(t, s.Save(blob))

	_, err = os.Stat(s.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))

	got, err := s.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, CurrentVersion, got.Version)
	assert.Equal(t, blob.State, got.State)
	assert.Equal(t, blob.Authorized, got.Authorized)
}

func TestDecode_MigratesLegacyLayout(t *testing.T) {
	legacy := []byte(`{"data":{"bob":"bob@example.com","alice":"alice@example.com"},"guard":["root"]}`)

	blob, err := Decode(legacy)
	require.NoError(t, err)

	assert.Equal(t, CurrentVersion, blob.Version)
	assert.Equal(t, []string{"root"}, blob.Authorized)
	require.Len(t, blob.State.Accounts, 2)
	assert.Equal(t, "alice", blob.State.Accounts[0].Identity)
	assert.Equal(t, "alice@example.com", blob.State.Accounts[0].Email)
	assert.Equal(t, domain.KYCPending, blob.State.Accounts[0].KYCStatus)
	assert.True(t, blob.State.Accounts[1].IsActive)
}

func TestDecode_RejectsUnknownVersion(t *testing.T) {
	_, err := Decode([]byte(`{"version":99}`))
	require.ErrorIs(t, err, domain.ErrSerialization)

	_, err = Decode([]byte(`not json`))
	require.ErrorIs(t, err, domain.ErrSerialization)
}

func TestStore_LoadLegacyFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, defaultFileName),
		[]byte(`{"version":1,"data":{"carol":"carol@example.com"},"guard":[]}`), 0o644))

	blob, err := s.Load()
	require.NoError(t, err)
	require.Len(t, blob.State.Accounts, 1)
	assert.Empty(t, blob.Authorized)
}
