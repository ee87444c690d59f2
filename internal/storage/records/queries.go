package records

import "github.com/vadiminshakov/tbills/internal/domain"

// ActiveBills returns bills open for purchase by status.
func (s *Store) ActiveBills() ([]domain.Bill, error) {
	return s.Bills.Filter(func(b domain.Bill) bool {
		return b.Status == domain.BillActive
	})
}

// HoldingsByOwner returns every holding of owner.
func (s *Store) HoldingsByOwner(owner string) ([]domain.Holding, error) {
	return s.Holdings.Filter(func(h domain.Holding) bool {
		return h.Owner == owner
	})
}

// HoldingsByBill returns every holding in billID.
func (s *Store) HoldingsByBill(billID uint64) ([]domain.Holding, error) {
	return s.Holdings.Filter(func(h domain.Holding) bool {
		return h.BillID == billID
	})
}

// ActiveHoldings returns holdings with Active status.
func (s *Store) ActiveHoldings() ([]domain.Holding, error) {
	return s.Holdings.Filter(func(h domain.Holding) bool {
		return h.Status == domain.HoldingActive
	})
}

// TransactionsByOwner returns owner's ledger entries in id order.
func (s *Store) TransactionsByOwner(owner string) ([]domain.Transaction, error) {
	return s.Transactions.Filter(func(t domain.Transaction) bool {
		return t.Owner == owner
	})
}

// TransactionsByType returns ledger entries of typ.
func (s *Store) TransactionsByType(typ domain.TransactionType) ([]domain.Transaction, error) {
	return s.Transactions.Filter(func(t domain.Transaction) bool {
		return t.Type == typ
	})
}

// TransactionsFrom returns owner's ledger entries with id at or above from.
func (s *Store) TransactionsFrom(owner string, from uint64) ([]domain.Transaction, error) {
	return s.Transactions.Filter(func(t domain.Transaction) bool {
		return t.Owner == owner && t.ID >= from
	})
}

// RatesByCUSIP returns stored rates for cusip.
func (s *Store) RatesByCUSIP(cusip string) ([]domain.TreasuryRate, error) {
	return s.Rates.Filter(func(r domain.TreasuryRate) bool {
		return r.CUSIP == cusip
	})
}
