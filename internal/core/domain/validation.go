package domain

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MinNameLength = 3
	MaxNameLength = 32

	maxAccountLength = 128
)

var (
	validNameRegex   = regexp.MustCompile(`^[0-9A-Za-z-]+$`)
	zeroAddressRegex = regexp.MustCompile(`^0x0{40}$`)
)

// ValidateName checks length and alphabet. Names are case-sensitive and never normalized.
func ValidateName(name string) error {
	if len(name) < MinNameLength || len(name) > MaxNameLength {
		return NewError(CodeInvalidName, "name %q must be %d-%d characters", name, MinNameLength, MaxNameLength)
	}
	if !validNameRegex.MatchString(name) {
		return NewError(CodeInvalidName, "name %q contains characters outside [0-9A-Za-z-]", name)
	}
	return nil
}

// ValidateAccount rejects the null account and malformed identifiers.
func ValidateAccount(a Account) error {
	if a.IsZero() {
		return NewError(CodeInvalidAddress, "account must not be the zero account")
	}
	if len(a) > maxAccountLength {
		return NewError(CodeInvalidAddress, "account exceeds %d characters", maxAccountLength)
	}
	if strings.ContainsAny(string(a), " \t\r\n/") {
		return NewError(CodeInvalidAddress, "account %q contains invalid characters", a)
	}
	return nil
}

// ValidateAmount rejects negative payments and fees.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return NewError(CodeInvalidAmount, "amount %s must not be negative", amount)
	}
	return nil
}
