package trading

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tbills/internal/domain"
	"github.com/vadiminshakov/tbills/internal/metrics"
	"github.com/vadiminshakov/tbills/internal/storage/records"
	"go.uber.org/zap"
)

const (
	opDeposit  = "deposit"
	opWithdraw = "withdraw"
)

// Deposit credits amount to identity's wallet and returns the new balance.
func (s *Service) Deposit(ctx context.Context, identity string, amount int64) (int64, error) {
	return s.moveFunds(ctx, opDeposit, identity, amount)
}

// Withdraw debits amount from identity's wallet and returns the new balance.
func (s *Service) Withdraw(ctx context.Context, identity string, amount int64) (int64, error) {
	return s.moveFunds(ctx, opWithdraw, identity, amount)
}

func (s *Service) moveFunds(ctx context.Context, op, identity string, amount int64) (int64, error) {
	if err := checkContext(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	balance, err := s.applyWalletMove(op, identity, amount)
	metrics.RecordWalletOp(op, resultLabel(err))
	if err != nil {
		s.logger.Info("wallet operation rejected",
			zap.String("op", op),
			zap.String("identity", identity),
			zap.Int64("amount", amount),
			zap.Error(err))
		return 0, err
	}

	s.logger.Info("wallet operation completed",
		zap.String("op", op),
		zap.String("identity", identity),
		zap.Int64("amount", amount),
		zap.Int64("balance", balance))

	return balance, nil
}

func (s *Service) applyWalletMove(op, identity string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	account, err := s.store.Accounts.Get(identity)
	if err != nil {
		return 0, err
	}

	typ := domain.TxDeposit
	if op == opWithdraw {
		if account.WalletBalance < amount {
			return 0, domain.ErrInsufficientFunds
		}
		typ = domain.TxWithdrawal
		account.WalletBalance -= amount
	} else {
		if amount > math.MaxInt64-account.WalletBalance {
			return 0, domain.ErrInvalidAmount.Withf("deposit of %d overflows wallet balance %d", amount, account.WalletBalance)
		}
		account.WalletBalance += amount
	}

	txID, err := s.store.NextID()
	if err != nil {
		return 0, err
	}

	now := s.unixNow()
	account.UpdatedAt = now

	b := records.NewBatch()
	s.store.Accounts.StageUpdate(b, account)
	s.store.Transactions.StageInsert(b, domain.NewWalletTransaction(txID, identity, typ, amount, now))
	if err := s.store.Commit(b); err != nil {
		return 0, errors.Wrapf(err, "commit %s", op)
	}

	return account.WalletBalance, nil
}
