package domain

import (
	"math"
	"strings"
	"unicode"
)

const maxMaturityHorizon = 5 * 365 * secondsPerDay

// ValidateCUSIP checks length, alphabet and the modulus-10 check digit.
func ValidateCUSIP(cusip string) error {
	if len(cusip) != 9 {
		return ErrInvalidCUSIP.Withf("CUSIP %q must be 9 characters", cusip)
	}

	check := cusip[8]
	if check < '0' || check > '9' {
		return ErrInvalidCUSIP.Withf("CUSIP %q check digit must be numeric", cusip)
	}

	want, ok := CUSIPCheckDigit(cusip[:8])
	if !ok {
		return ErrInvalidCUSIP.Withf("CUSIP %q contains invalid characters", cusip)
	}
	if int(check-'0') != want {
		return ErrInvalidCUSIP.Withf("CUSIP %q has wrong check digit", cusip)
	}

	return nil
}

// CUSIPCheckDigit computes the check digit of an 8-character CUSIP base.
func CUSIPCheckDigit(base string) (int, bool) {
	if len(base) != 8 {
		return 0, false
	}

	sum := 0
	for i := 0; i < len(base); i++ {
		v, ok := cusipValue(base[i])
		if !ok {
			return 0, false
		}
		// every second character is doubled
		if i%2 == 1 {
			v *= 2
		}
		sum += v/10 + v%10
	}

	return (10 - sum%10) % 10, true
}

func cusipValue(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10, true
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10, true
	case c == '*':
		return 36, true
	case c == '@':
		return 37, true
	case c == '#':
		return 38, true
	default:
		return 0, false
	}
}

// ValidateEmail performs a structural check of an email address.
func ValidateEmail(email string) error {
	if email == "" {
		return NewValidationError("email cannot be empty")
	}

	local, domainPart, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domainPart, "@") || local == "" || domainPart == "" {
		return NewValidationError("invalid email format")
	}
	if !strings.Contains(domainPart, ".") {
		return NewValidationError("invalid email domain")
	}

	return nil
}

// ValidatePhoneNumber accepts 10 to 15 digits, optionally prefixed with '+'.
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return nil
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '+' {
			return r
		}
		return -1
	}, phone)

	if len(cleaned) < 10 || len(cleaned) > 15 {
		return NewValidationError("invalid phone number length")
	}
	if strings.HasPrefix(cleaned, "+") && len(cleaned) < 11 {
		return NewValidationError("invalid international phone number")
	}

	return nil
}

// ValidateYieldRate checks that rate is a fraction in [0, 1].
func ValidateYieldRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return ErrInvalidYieldRate
	}

	return nil
}

// ValidateMaturityDate requires a maturity in the future and within five years of now.
func ValidateMaturityDate(maturity, now int64) error {
	if maturity <= now {
		return ErrInvalidDate.Withf("maturity date must be in the future")
	}
	if maturity > now+maxMaturityHorizon {
		return ErrInvalidDate.Withf("maturity date must be within five years")
	}

	return nil
}
