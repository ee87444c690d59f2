package trading

import (
	"context"

	"github.com/vadiminshakov/tbills/internal/domain"
	"go.uber.org/zap"
)

// RegisterAccount creates a pending account for identity.
func (s *Service) RegisterAccount(ctx context.Context, identity string, req domain.RegistrationRequest) (*domain.Account, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if domain.IsAnonymous(identity) {
		return nil, domain.ErrAnonymousCaller
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store.Accounts.Has(identity) {
		return nil, domain.ErrAccountAlreadyExists
	}

	account := domain.NewAccount(identity, req, s.unixNow())
	if err := s.store.Accounts.Insert(account); err != nil {
		return nil, err
	}

	s.logger.Info("account registered", zap.String("identity", identity), zap.String("country", account.Country))

	return &account, nil
}

// UpdateKYCStatus sets the verification state of identity's account.
func (s *Service) UpdateKYCStatus(ctx context.Context, identity string, status domain.KYCStatus) (*domain.Account, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if _, err := domain.ParseKYCStatus(string(status)); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.store.Accounts.Get(identity)
	if err != nil {
		return nil, err
	}

	account.KYCStatus = status
	account.UpdatedAt = s.unixNow()
	if err := s.store.Accounts.Update(account); err != nil {
		return nil, err
	}

	s.logger.Info("kyc status updated", zap.String("identity", identity), zap.String("status", string(status)))

	return &account, nil
}

// Account returns identity's account.
func (s *Service) Account(ctx context.Context, identity string) (*domain.Account, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	account, err := s.store.Accounts.Get(identity)
	if err != nil {
		return nil, err
	}

	return &account, nil
}

// HoldingsByOwner returns owner's holdings in id order.
func (s *Service) HoldingsByOwner(ctx context.Context, owner string) ([]domain.Holding, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	return s.store.HoldingsByOwner(owner)
}

// TransactionsByOwner returns owner's ledger in id order.
func (s *Service) TransactionsByOwner(ctx context.Context, owner string) ([]domain.Transaction, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	return s.store.TransactionsByOwner(owner)
}

// TransactionsFrom returns owner's ledger entries starting at id from.
func (s *Service) TransactionsFrom(ctx context.Context, owner string, from uint64) ([]domain.Transaction, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	return s.store.TransactionsFrom(owner, from)
}

// TransactionsByType returns every ledger entry of typ.
func (s *Service) TransactionsByType(ctx context.Context, typ domain.TransactionType) ([]domain.Transaction, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	return s.store.TransactionsByType(typ)
}
