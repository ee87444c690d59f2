package domain

import "strings"

// AnonymousIdentity is the identity reported for unauthenticated callers.
const AnonymousIdentity = "anonymous"

// KYCStatus is the identity verification state of an account.
type KYCStatus string

const (
	KYCPending  KYCStatus = "Pending"
	KYCVerified KYCStatus = "Verified"
	KYCRejected KYCStatus = "Rejected"
	KYCExpired  KYCStatus = "Expired"
)

// ParseKYCStatus validates a textual KYC status.
func ParseKYCStatus(s string) (KYCStatus, error) {
	switch st := KYCStatus(s); st {
	case KYCPending, KYCVerified, KYCRejected, KYCExpired:
		return st, nil
	default:
		return "", NewValidationError("unknown KYC status " + s)
	}
}

// Account is a registered identity with a custodial wallet.
type Account struct {
	Identity         string    `json:"identity"`
	Email            string    `json:"email"`
	KYCStatus        KYCStatus `json:"kyc_status"`
	WalletBalance    int64     `json:"wallet_balance"`
	TotalInvested    int64     `json:"total_invested"`
	TotalYieldEarned int64     `json:"total_yield_earned"`
	CreatedAt        int64     `json:"created_at"`
	UpdatedAt        int64     `json:"updated_at"`
	IsActive         bool      `json:"is_active"`
	PhoneNumber      *string   `json:"phone_number,omitempty"`
	Country          string    `json:"country"`
}

// IsTradingEligible reports whether the account may buy tokens.
func (a *Account) IsTradingEligible() bool {
	return a.KYCStatus == KYCVerified && a.IsActive
}

// RegistrationRequest carries the profile supplied at sign-up.
type RegistrationRequest struct {
	Email       string  `json:"email"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	Country     string  `json:"country"`
}

// Validate checks the profile fields.
func (r RegistrationRequest) Validate() error {
	if err := ValidateEmail(r.Email); err != nil {
		return err
	}
	if strings.TrimSpace(r.Country) == "" {
		return NewValidationError("country is required")
	}
	if r.PhoneNumber != nil {
		return ValidatePhoneNumber(*r.PhoneNumber)
	}

	return nil
}

// NewAccount creates a pending, active account with an empty wallet.
func NewAccount(identity string, r RegistrationRequest, now int64) Account {
	return Account{
		Identity:    identity,
		Email:       r.Email,
		KYCStatus:   KYCPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		IsActive:    true,
		PhoneNumber: r.PhoneNumber,
		Country:     r.Country,
	}
}

// IsAnonymous reports whether identity carries no caller.
func IsAnonymous(identity string) bool {
	identity = strings.TrimSpace(identity)
	return identity == "" || identity == AnonymousIdentity
}
