// Package domain contains the core business logic and entities for the name registry.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultRegistrationDuration is the lifetime granted by a register or renew call.
	DefaultRegistrationDuration = 365 * 24 * time.Hour
	// DefaultGracePeriod is the window after ExpiresAt during which a name stays owned.
	DefaultGracePeriod = 30 * 24 * time.Hour
)

// DefaultFee is the registration fee used when none is configured.
var DefaultFee = decimal.RequireFromString("0.01")

// Account identifies a ledger participant (payer, owner, admin).
type Account string

// IsZero reports whether the account is the null account.
func (a Account) IsZero() bool {
	return a == "" || zeroAddressRegex.MatchString(string(a))
}

func (a Account) String() string {
	return string(a)
}

// Policy carries the time constants that drive the registration lifecycle.
type Policy struct {
	RegistrationDuration time.Duration
	GracePeriod          time.Duration
}

// DefaultPolicy returns the 365 day registration / 30 day grace policy.
func DefaultPolicy() Policy {
	return Policy{
		RegistrationDuration: DefaultRegistrationDuration,
		GracePeriod:          DefaultGracePeriod,
	}
}

// Registration is the ledger record for a name.
type Registration struct {
	Name         string    `json:"name"`
	Owner        Account   `json:"owner"`
	RegisteredAt time.Time `json:"registered_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// GraceDeadline is the last instant at which the registration is still live.
func (r *Registration) GraceDeadline(grace time.Duration) time.Time {
	return r.ExpiresAt.Add(grace)
}

// IsExpired is the single expiry rule: now > expiresAt + grace.
// A registration exactly at its grace deadline is still live.
func (r *Registration) IsExpired(now time.Time, grace time.Duration) bool {
	return now.After(r.GraceDeadline(grace))
}

// InGrace reports whether the registration has passed ExpiresAt but not its grace deadline.
func (r *Registration) InGrace(now time.Time, grace time.Duration) bool {
	return now.After(r.ExpiresAt) && !r.IsExpired(now, grace)
}

// View pairs the raw record with its derived expiry status.
func (r *Registration) View(now time.Time, grace time.Duration) RegistrationView {
	return RegistrationView{
		Name:         r.Name,
		Owner:        r.Owner,
		RegisteredAt: r.RegisteredAt,
		ExpiresAt:    r.ExpiresAt,
		IsExpired:    r.IsExpired(now, grace),
		InGrace:      r.InGrace(now, grace),
	}
}

// RegistrationView is the getRegistration result.
type RegistrationView struct {
	Name         string    `json:"name"`
	Owner        Account   `json:"owner"`
	RegisteredAt time.Time `json:"registered_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	IsExpired    bool      `json:"is_expired"`
	InGrace      bool      `json:"in_grace"`
}

// Settings is the administrative state of the ledger.
type Settings struct {
	Fee       decimal.Decimal `json:"fee"`
	Paused    bool            `json:"paused"`
	Treasury  decimal.Decimal `json:"treasury"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Balance is the settlement credit held by an account.
type Balance struct {
	Account Account         `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}
