package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind groups errors by how a caller is expected to react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindValidation
	KindAuthorization
	KindInsufficientResource
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindInsufficientResource:
		return "insufficient_resource"
	case KindExternal:
		return "external"
	default:
		return "internal"
	}
}

// Error is a typed platform error. Two errors match under errors.Is when their codes are equal.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Code == e.Code
}

// Withf returns a copy of e with a more specific message.
func (e *Error) Withf(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrAccountNotFound     = newError(KindNotFound, "UserNotFound", "account not found")
	ErrBillNotFound        = newError(KindNotFound, "USTBillNotFound", "bill not found")
	ErrHoldingNotFound     = newError(KindNotFound, "HoldingNotFound", "holding not found")
	ErrTransactionNotFound = newError(KindNotFound, "TransactionNotFound", "transaction not found")
	ErrRateNotFound        = newError(KindNotFound, "TreasuryRateNotFound", "treasury rate not found")
	ErrRecordNotFound      = newError(KindNotFound, "RecordNotFound", "record not found")

	ErrAccountAlreadyExists = newError(KindConflict, "UserAlreadyExists", "account already exists")
	ErrRecordExists         = newError(KindConflict, "RecordAlreadyExists", "record already exists")
	ErrSoldOut              = newError(KindConflict, "USTBillSoldOut", "bill is sold out or not available for purchase")

	ErrValidation                = newError(KindValidation, "ValidationError", "validation failed")
	ErrInvalidAmount             = newError(KindValidation, "InvalidAmount", "amount must be greater than zero")
	ErrInvalidTokenAmount        = newError(KindValidation, "InvalidTokenAmount", "token amount must be greater than zero")
	ErrInvalidCUSIP              = newError(KindValidation, "InvalidCUSIP", "invalid CUSIP")
	ErrInvalidDate               = newError(KindValidation, "InvalidDate", "invalid date")
	ErrInvalidYieldRate          = newError(KindValidation, "InvalidYieldRate", "yield rate must be between 0 and 1")
	ErrMinimumInvestmentNotMet   = newError(KindValidation, "MinimumInvestmentNotMet", "purchase cost is below the minimum investment")
	ErrMaximumInvestmentExceeded = newError(KindValidation, "MaximumInvestmentExceeded", "purchase cost exceeds the maximum investment")

	// ErrMaturityDatePassed keeps its historical code; it is returned while maturity is still ahead.
	ErrMaturityDatePassed = newError(KindValidation, "MaturityDatePassed", "bill has not reached maturity yet")

	ErrTradingNotAllowed = newError(KindAuthorization, "TradingNotAllowed", "account is not eligible for trading")
	ErrUnauthorized      = newError(KindAuthorization, "Unauthorized", "caller is not authorized")
	ErrAnonymousCaller   = newError(KindAuthorization, "AnonymousCaller", "anonymous caller")

	ErrInsufficientFunds  = newError(KindInsufficientResource, "InsufficientFunds", "insufficient wallet balance")
	ErrInsufficientTokens = newError(KindInsufficientResource, "InsufficientTokens", "not enough tokens available")

	ErrExternalAPI       = newError(KindExternal, "ExternalAPIError", "external API error")
	ErrTreasuryDataFetch = newError(KindExternal, "TreasuryDataFetchError", "treasury data fetch failed")
	ErrSerialization     = newError(KindInternal, "SerializationError", "serialization failed")
	ErrStorage           = newError(KindInternal, "StorageError", "storage failure")
	ErrInternal          = newError(KindInternal, "InternalError", "internal error")
)

// NewValidationError returns a validation error with a custom message.
func NewValidationError(msg string) *Error {
	return ErrValidation.Withf("%s", msg)
}

// KindOf extracts the error kind, defaulting to KindInternal for foreign errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}

	return KindInternal
}

// CodeOf extracts the error code, or "InternalError" for foreign errors.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}

	return ErrInternal.Code
}
