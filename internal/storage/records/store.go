package records

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/tbills/internal/domain"
	"go.uber.org/zap"
)

const (
	TableBills           = "bills"
	TableAccounts        = "accounts"
	TableHoldings        = "holdings"
	TableTransactions    = "transactions"
	TableRates           = "rates"
	TableBrokerPurchases = "verified_purchases"
	CellConfig           = "config"
	CellMetrics          = "metrics"
)

// Store owns every entity table and singleton cell of the platform.
// Mutations are committed in batches that are journaled before they become visible.
type Store struct {
	mu      sync.RWMutex
	journal Journal
	logger  *zap.Logger
	seq     uint64
	nextID  uint64
	tables  map[string]tableOps

	Bills           *Table[uint64, domain.Bill]
	Accounts        *Table[string, domain.Account]
	Holdings        *Table[uint64, domain.Holding]
	Transactions    *Table[uint64, domain.Transaction]
	Rates           *Table[string, domain.TreasuryRate]
	BrokerPurchases *Table[uint64, domain.VerifiedBrokerPurchase]
	Config          *Cell[domain.PlatformConfig]
	Metrics         *Cell[domain.TradingMetrics]
}

// New creates an empty store. A nil journal keeps the store in memory only.
func New(journal Journal, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		journal: journal,
		logger:  logger,
		tables:  make(map[string]tableOps),
	}

	s.Bills = newTable(s, TableBills, func(b domain.Bill) uint64 { return b.ID },
		domain.ErrBillNotFound, domain.ErrRecordExists)
	s.Accounts = newTable(s, TableAccounts, func(a domain.Account) string { return a.Identity },
		domain.ErrAccountNotFound, domain.ErrAccountAlreadyExists)
	s.Holdings = newTable(s, TableHoldings, func(h domain.Holding) uint64 { return h.ID },
		domain.ErrHoldingNotFound, domain.ErrRecordExists)
	s.Transactions = newTable(s, TableTransactions, func(t domain.Transaction) uint64 { return t.ID },
		domain.ErrTransactionNotFound, domain.ErrRecordExists)
	s.Rates = newTable(s, TableRates, func(r domain.TreasuryRate) string { return r.Key() },
		domain.ErrRateNotFound, domain.ErrRecordExists)
	s.BrokerPurchases = newTable(s, TableBrokerPurchases, func(p domain.VerifiedBrokerPurchase) uint64 { return p.Sequence },
		domain.ErrRecordNotFound, domain.ErrRecordExists)
	s.Config = newCell(s, CellConfig, domain.DefaultPlatformConfig())
	s.Metrics = newCell(s, CellMetrics, domain.TradingMetrics{})

	return s
}

// NextID returns the next unique identifier. The advanced counter is journaled before it is returned.
func (s *Store) NextID() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	rec := Record{Seq: s.seq + 1, Batch: uuid.NewString(), NextID: id + 1}
	if err := s.append(rec); err != nil {
		return 0, err
	}

	s.seq = rec.Seq
	s.nextID = id + 1

	return id, nil
}

// Commit validates every staged mutation against current state, journals the batch
// and applies it. On any error nothing is applied.
func (s *Store) Commit(b *Batch) error {
	if b == nil {
		return nil
	}
	if b.err != nil {
		return b.err
	}
	if len(b.ops) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validate(b.ops); err != nil {
		return err
	}

	rec := Record{Seq: s.seq + 1, Batch: uuid.NewString(), NextID: s.nextID, Ops: b.ops}
	if err := s.append(rec); err != nil {
		return err
	}

	for _, m := range b.ops {
		if err := s.tables[m.Table].apply(m); err != nil {
			// validate accepted the batch, so this means the journal and memory diverged
			s.logger.Error("apply committed batch", zap.Uint64("seq", rec.Seq), zap.Error(err))
			return errors.Wrap(domain.ErrStorage, err.Error())
		}
	}
	s.seq = rec.Seq

	s.logger.Debug("batch committed",
		zap.Uint64("seq", rec.Seq),
		zap.String("batch", rec.Batch),
		zap.Int("ops", len(rec.Ops)))

	return nil
}

func (s *Store) validate(ops []Mutation) error {
	// per table view of keys touched earlier in the batch
	present := make(map[string]map[string]bool)
	cleared := make(map[string]bool)

	for _, m := range ops {
		t, ok := s.tables[m.Table]
		if !ok {
			return domain.ErrStorage.Withf("unknown table %q", m.Table)
		}
		if !t.accepts(m.Kind) {
			return domain.ErrStorage.Withf("%s does not accept %s", m.Table, m.Kind)
		}

		switch m.Kind {
		case OpClear:
			cleared[m.Table] = true
			present[m.Table] = make(map[string]bool)
			continue
		case OpSet:
			continue
		}

		seen := present[m.Table]
		if seen == nil {
			seen = make(map[string]bool)
			present[m.Table] = seen
		}

		exists, touched := seen[string(m.Key)]
		if !touched && !cleared[m.Table] {
			var err error
			if exists, err = t.contains(m.Key); err != nil {
				return err
			}
		}

		switch m.Kind {
		case OpInsert:
			if exists {
				return t.conflict(m.Key)
			}
		case OpUpdate, OpRemove:
			if !exists {
				return t.missing(m.Key)
			}
		}

		seen[string(m.Key)] = m.Kind != OpRemove
	}

	return nil
}

func (s *Store) append(rec Record) error {
	if s.journal == nil {
		return nil
	}
	if err := s.journal.Append(rec); err != nil {
		s.logger.Error("journal append failed", zap.Uint64("seq", rec.Seq), zap.Error(err))
		return errors.Wrap(domain.ErrStorage, err.Error())
	}

	return nil
}

// Recover replays journal records newer than the current sequence and returns how many were applied.
func (s *Store) Recover() (int, error) {
	if s.journal == nil {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	err := s.journal.Replay(func(rec Record) error {
		if rec.Seq <= s.seq {
			return nil
		}

		for _, m := range rec.Ops {
			t, ok := s.tables[m.Table]
			if !ok {
				return domain.ErrStorage.Withf("journal record %d references unknown table %q", rec.Seq, m.Table)
			}
			if err := t.apply(m); err != nil {
				return errors.Wrapf(err, "replay journal record %d", rec.Seq)
			}
		}

		s.seq = rec.Seq
		if rec.NextID > s.nextID {
			s.nextID = rec.NextID
		}
		applied++

		return nil
	})
	if err != nil {
		return applied, err
	}

	s.logger.Info("records journal replayed",
		zap.Int("applied", applied),
		zap.Uint64("seq", s.seq),
		zap.Uint64("next_id", s.nextID))

	return applied, nil
}

// Seq returns the sequence number of the last committed record.
func (s *Store) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.seq
}

// Stats returns entity counts per table.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int, len(s.tables))
	for name, t := range s.tables {
		if name == CellConfig || name == CellMetrics {
			continue
		}
		out[name] = t.count()
	}

	return out
}

// Close closes the journal.
func (s *Store) Close() error {
	if s.journal == nil {
		return nil
	}

	return s.journal.Close()
}
