package domain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a ledger rejection. The set is closed.
type ErrorCode string

const (
	CodeInvalidName           ErrorCode = "InvalidName"
	CodeInvalidAddress        ErrorCode = "InvalidAddress"
	CodeInvalidAmount         ErrorCode = "InvalidAmount"
	CodeInsufficientPayment   ErrorCode = "InsufficientPayment"
	CodeNameAlreadyRegistered ErrorCode = "NameAlreadyRegistered"
	CodeNameNotRegistered     ErrorCode = "NameNotRegistered"
	CodeNotNameOwner          ErrorCode = "NotNameOwner"
	CodeNameExpired           ErrorCode = "NameExpired"
	CodePaused                ErrorCode = "Paused"
	CodeUnauthorized          ErrorCode = "Unauthorized"
	CodeSettlementFailed      ErrorCode = "SettlementFailed"
)

// LedgerError is a synchronous rejection of a whole ledger operation.
type LedgerError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// Is matches on code so detailed errors compare equal to the sentinels below.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidName           = &LedgerError{Code: CodeInvalidName, Message: "invalid name"}
	ErrInvalidAddress        = &LedgerError{Code: CodeInvalidAddress, Message: "invalid address"}
	ErrInvalidAmount         = &LedgerError{Code: CodeInvalidAmount, Message: "invalid amount"}
	ErrInsufficientPayment   = &LedgerError{Code: CodeInsufficientPayment, Message: "insufficient payment"}
	ErrNameAlreadyRegistered = &LedgerError{Code: CodeNameAlreadyRegistered, Message: "name already registered"}
	ErrNameNotRegistered     = &LedgerError{Code: CodeNameNotRegistered, Message: "name not registered"}
	ErrNotNameOwner          = &LedgerError{Code: CodeNotNameOwner, Message: "caller is not the name owner"}
	ErrNameExpired           = &LedgerError{Code: CodeNameExpired, Message: "name expired"}
	ErrPaused                = &LedgerError{Code: CodePaused, Message: "registry is paused"}
	ErrUnauthorized          = &LedgerError{Code: CodeUnauthorized, Message: "caller is not the admin"}
	ErrSettlementFailed      = &LedgerError{Code: CodeSettlementFailed, Message: "settlement failed"}
)

// NewError builds a LedgerError with a formatted message.
func NewError(code ErrorCode, format string, args ...any) *LedgerError {
	return &LedgerError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a cause to a LedgerError.
func WrapError(err error, code ErrorCode, msg string) *LedgerError {
	return &LedgerError{Code: code, Message: msg, Err: err}
}

// CodeOf extracts the ledger code from err, if any.
func CodeOf(err error) (ErrorCode, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Code, true
	}
	return "", false
}
