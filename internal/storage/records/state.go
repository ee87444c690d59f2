package records

import (
	"github.com/pkg/errors"
	"github.com/vadiminshakov/tbills/internal/domain"
)

// State is a full copy of the store used for snapshots.
type State struct {
	Seq             uint64                          `json:"seq"`
	NextID          uint64                          `json:"next_id"`
	Bills           []domain.Bill                   `json:"bills"`
	Accounts        []domain.Account                `json:"accounts"`
	Holdings        []domain.Holding                `json:"holdings"`
	Transactions    []domain.Transaction            `json:"transactions"`
	Rates           []domain.TreasuryRate           `json:"rates"`
	BrokerPurchases []domain.VerifiedBrokerPurchase `json:"verified_purchases"`
	Config          *domain.PlatformConfig          `json:"config,omitempty"`
	Metrics         domain.TradingMetrics           `json:"metrics"`
}

// Export copies every table and cell out of the store.
func (s *Store) Export() (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := State{Seq: s.seq, NextID: s.nextID}

	var err error
	if st.Bills, err = s.Bills.scan(nil); err != nil {
		return State{}, err
	}
	if st.Accounts, err = s.Accounts.scan(nil); err != nil {
		return State{}, err
	}
	if st.Holdings, err = s.Holdings.scan(nil); err != nil {
		return State{}, err
	}
	if st.Transactions, err = s.Transactions.scan(nil); err != nil {
		return State{}, err
	}
	if st.Rates, err = s.Rates.scan(nil); err != nil {
		return State{}, err
	}
	if st.BrokerPurchases, err = s.BrokerPurchases.scan(nil); err != nil {
		return State{}, err
	}

	if s.Config.value != nil {
		cfg, err := s.Config.current()
		if err != nil {
			return State{}, errors.Wrap(err, "export config")
		}
		st.Config = &cfg
	}
	if st.Metrics, err = s.Metrics.current(); err != nil {
		return State{}, errors.Wrap(err, "export metrics")
	}

	return st, nil
}

// Import replaces the store contents with st without journaling it.
// It is meant to run once at startup, before Recover.
func (s *Store) Import(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Bills.load(st.Bills); err != nil {
		return errors.Wrap(err, "import bills")
	}
	if err := s.Accounts.load(st.Accounts); err != nil {
		return errors.Wrap(err, "import accounts")
	}
	if err := s.Holdings.load(st.Holdings); err != nil {
		return errors.Wrap(err, "import holdings")
	}
	if err := s.Transactions.load(st.Transactions); err != nil {
		return errors.Wrap(err, "import transactions")
	}
	if err := s.Rates.load(st.Rates); err != nil {
		return errors.Wrap(err, "import rates")
	}
	if err := s.BrokerPurchases.load(st.BrokerPurchases); err != nil {
		return errors.Wrap(err, "import verified purchases")
	}

	s.Config.value = nil
	if st.Config != nil {
		if err := s.Config.load(*st.Config); err != nil {
			return errors.Wrap(err, "import config")
		}
	}
	if err := s.Metrics.load(st.Metrics); err != nil {
		return errors.Wrap(err, "import metrics")
	}

	s.seq = st.Seq
	s.nextID = st.NextID

	return nil
}

// ConfigInitialized reports whether the platform config was ever written.
func (s *Store) ConfigInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.Config.value != nil
}
