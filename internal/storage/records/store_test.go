package records

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/tbills/internal/domain"
	"go.uber.org/zap"
)

type failingJournal struct {
	records []Record
	fail    bool
}

func (j *failingJournal) Append(rec Record) error {
	if j.fail {
		return errors.New("disk full")
	}
	j.records = append(j.records, rec)
	return nil
}

func (j *failingJournal) Replay(fn func(Record) error) error {
	for _, rec := range j.records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (j *failingJournal) Close() error { return nil }

func bill(id uint64) domain.Bill {
	return domain.Bill{
		ID:            id,
		CUSIP:         "037833100",
		FaceValue:     100000,
		PurchasePrice: 95000,
		MaturityDate:  1_800_000_000,
		AnnualYield:   0.05,
		TotalTokens:   1000,
		Status:        domain.BillActive,
	}
}

func TestTable_InsertGetUpdateRemove(t *testing.T) {
	s := New(nil, zap.NewNop())

	require.NoError(t, s.Bills.Insert(bill(1)))
	err := s.Bills.Insert(bill(1))
	require.ErrorIs(t, err, domain.ErrRecordExists)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	got, err := s.Bills.Get(1)
	require.NoError(t, err)
	assert.Equal(t, bill(1), got)

	got.TokensSold = 10
	require.NoError(t, s.Bills.Update(got))

	again, err := s.Bills.Get(1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), again.TokensSold)

	// update is not upsert
	err = s.Bills.Update(bill(2))
	require.ErrorIs(t, err, domain.ErrBillNotFound)
	assert.False(t, s.Bills.Has(2))

	removed, err := s.Bills.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), removed.ID)

	_, err = s.Bills.Get(1)
	require.ErrorIs(t, err, domain.ErrBillNotFound)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	_, err = s.Bills.Remove(1)
	require.ErrorIs(t, err, domain.ErrBillNotFound)
}

func TestTable_ReturnsCopies(t *testing.T) {
	s := New(nil, nil)
	require.NoError(t, s.Bills.Insert(bill(1)))

	got, err := s.Bills.Get(1)
	require.NoError(t, err)
	got.TokensSold = 999

	stored, err := s.Bills.Get(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.TokensSold)
}

func TestTable_KeyOrderAndFilter(t *testing.T) {
	s := New(nil, nil)

	for _, id := range []uint64{5, 1, 3, 4, 2} {
		require.NoError(t, s.Bills.Insert(bill(id)))
	}

	all, err := s.Bills.List()
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, b := range all {
		assert.Equal(t, uint64(i+1), b.ID)
	}
	assert.Equal(t, 5, s.Bills.Count())

	sold := bill(3)
	sold.Status = domain.BillSoldOut
	require.NoError(t, s.Bills.Update(sold))

	active, err := s.ActiveBills()
	require.NoError(t, err)
	assert.Len(t, active, 4)
}

func TestCell_DefaultAndSet(t *testing.T) {
	s := New(nil, nil)

	cfg, err := s.Config.Get()
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPlatformConfig(), cfg)
	assert.False(t, s.ConfigInitialized())

	cfg.FeePercentage = 0.01
	require.NoError(t, s.Config.Set(cfg))

	got, err := s.Config.Get()
	require.NoError(t, err)
	assert.Equal(t, 0.01, got.FeePercentage)
	assert.True(t, s.ConfigInitialized())
}

func TestCommit_ValidatesWholeBatchFirst(t *testing.T) {
	s := New(nil, nil)
	require.NoError(t, s.Bills.Insert(bill(1)))

	b := NewBatch()
	s.Bills.StageInsert(b, bill(2))
	s.Metrics.StageSet(b, domain.TradingMetrics{TotalVolume: 10})
	s.Holdings.StageUpdate(b, domain.Holding{ID: 42})

	err := s.Commit(b)
	require.ErrorIs(t, err, domain.ErrHoldingNotFound)

	assert.False(t, s.Bills.Has(2))
	m, err := s.Metrics.Get()
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.TotalVolume)
}

func TestCommit_SeesEarlierOpsInBatch(t *testing.T) {
	s := New(nil, nil)

	b := NewBatch()
	s.Bills.StageInsert(b, bill(1))
	updated := bill(1)
	updated.TokensSold = 5
	s.Bills.StageUpdate(b, updated)
	require.NoError(t, s.Commit(b))

	got, err := s.Bills.Get(1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.TokensSold)

	b = NewBatch()
	s.Bills.StageRemove(b, 1)
	s.Bills.StageUpdate(b, updated)
	require.ErrorIs(t, s.Commit(b), domain.ErrBillNotFound)
	assert.True(t, s.Bills.Has(1))
}

func TestCommit_ClearThenInsert(t *testing.T) {
	s := New(nil, nil)
	rate := domain.TreasuryRate{CUSIP: "912796RF6", RateDate: "2024-01-01", Rate: 5.26}
	require.NoError(t, s.Rates.Insert(rate))

	b := NewBatch()
	s.Rates.StageClear(b)
	s.Rates.StageInsert(b, rate)
	require.NoError(t, s.Commit(b))

	assert.Equal(t, 1, s.Rates.Count())
}

func TestCommit_JournalFailureLeavesStoreUntouched(t *testing.T) {
	j := &failingJournal{}
	s := New(j, nil)
	require.NoError(t, s.Bills.Insert(bill(1)))

	j.fail = true
	err := s.Bills.Insert(bill(2))
	require.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.False(t, s.Bills.Has(2))

	_, err = s.NextID()
	require.ErrorIs(t, err, domain.ErrStorage)

	j.fail = false
	id, err := s.NextID()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
}

func TestNextID_StrictlyIncreasingAcrossRestart(t *testing.T) {
	j := &failingJournal{}
	s := New(j, nil)

	var last uint64
	for i := 0; i < 5; i++ {
		id, err := s.NextID()
		require.NoError(t, err)
		if i > 0 {
			assert.Greater(t, id, last)
		}
		last = id
	}
	assert.Equal(t, uint64(4), last)

	restarted := New(j, nil)
	applied, err := restarted.Recover()
	require.NoError(t, err)
	assert.Equal(t, 5, applied)

	id, err := restarted.NextID()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), id)
}

func TestExportImport_ThenReplaySkipsSnapshotted(t *testing.T) {
	j := &failingJournal{}
	s := New(j, nil)

	require.NoError(t, s.Bills.Insert(bill(1)))
	require.NoError(t, s.Accounts.Insert(domain.Account{Identity: "alice", Email: "alice@example.com", IsActive: true}))
	_, err := s.NextID()
	require.NoError(t, err)

	snap, err := s.Export()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Seq)
	assert.Nil(t, snap.Config)

	// written after the snapshot, must come back from the journal
	require.NoError(t, s.Bills.Insert(bill(2)))

	restored := New(j, nil)
	require.NoError(t, restored.Import(snap))
	applied, err := restored.Recover()
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	assert.Equal(t, 2, restored.Bills.Count())
	assert.Equal(t, 1, restored.Accounts.Count())
	assert.Equal(t, s.Seq(), restored.Seq())

	id, err := restored.NextID()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
}

func TestStats(t *testing.T) {
	s := New(nil, nil)
	require.NoError(t, s.Bills.Insert(bill(1)))
	require.NoError(t, s.Bills.Insert(bill(2)))
	require.NoError(t, s.Transactions.Insert(domain.Transaction{ID: 3, Owner: "bob"}))

	stats := s.Stats()
	assert.Equal(t, 2, stats[TableBills])
	assert.Equal(t, 1, stats[TableTransactions])
	assert.Equal(t, 0, stats[TableHoldings])
	assert.Len(t, stats, 6)
}
