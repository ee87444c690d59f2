package domain

import "fmt"

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxDeposit           TransactionType = "Deposit"
	TxWithdrawal        TransactionType = "Withdrawal"
	TxPurchase          TransactionType = "Purchase"
	TxSale              TransactionType = "Sale"
	TxYieldDistribution TransactionType = "YieldDistribution"
	TxFee               TransactionType = "Fee"
)

// TransactionStatus is the settlement state of a ledger entry.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "Pending"
	TxCompleted TransactionStatus = "Completed"
	TxFailed    TransactionStatus = "Failed"
	TxCancelled TransactionStatus = "Cancelled"
)

// Transaction is an append-only audit record of a money movement.
type Transaction struct {
	ID          uint64            `json:"id"`
	Owner       string            `json:"owner"`
	Type        TransactionType   `json:"type"`
	Amount      int64             `json:"amount"`
	Fees        int64             `json:"fees"`
	BillID      *uint64           `json:"bill_id,omitempty"`
	HoldingID   *uint64           `json:"holding_id,omitempty"`
	Timestamp   int64             `json:"timestamp"`
	Status      TransactionStatus `json:"status"`
	Description string            `json:"description"`
}

// NewWalletTransaction builds a completed deposit or withdrawal entry.
func NewWalletTransaction(id uint64, owner string, typ TransactionType, amount, now int64) Transaction {
	desc := "Wallet deposit"
	if typ == TxWithdrawal {
		desc = "Wallet withdrawal"
	}

	return Transaction{
		ID:          id,
		Owner:       owner,
		Type:        typ,
		Amount:      amount,
		Timestamp:   now,
		Status:      TxCompleted,
		Description: desc,
	}
}

// PurchaseDescription is the ledger text of a token purchase.
func PurchaseDescription(tokens int64, billID uint64) string {
	return fmt.Sprintf("Purchase of %d tokens from UST Bill %d", tokens, billID)
}
