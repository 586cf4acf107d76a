package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistration_ExpiryBoundary(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	policy := DefaultPolicy()
	reg := &Registration{
		Name:         "alice",
		Owner:        "acct-1",
		RegisteredAt: t0,
		ExpiresAt:    t0.Add(policy.RegistrationDuration),
	}
	deadline := reg.GraceDeadline(policy.GracePeriod)

	assert.False(t, reg.IsExpired(reg.ExpiresAt, policy.GracePeriod), "at expiresAt")
	assert.False(t, reg.IsExpired(deadline, policy.GracePeriod), "exactly at grace deadline")
	assert.True(t, reg.IsExpired(deadline.Add(time.Nanosecond), policy.GracePeriod), "one unit past deadline")
	assert.True(t, reg.IsExpired(deadline.Add(time.Second), policy.GracePeriod))
}

func TestRegistration_InGrace(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := &Registration{Name: "bob", Owner: "acct-2", RegisteredAt: t0, ExpiresAt: t0.Add(time.Hour)}
	grace := 30 * time.Minute

	assert.False(t, reg.InGrace(t0, grace))
	assert.False(t, reg.InGrace(reg.ExpiresAt, grace))
	assert.True(t, reg.InGrace(reg.ExpiresAt.Add(time.Minute), grace))
	assert.True(t, reg.InGrace(reg.GraceDeadline(grace), grace))
	assert.False(t, reg.InGrace(reg.GraceDeadline(grace).Add(time.Second), grace))
}

func TestRegistration_View(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := &Registration{Name: "carol", Owner: "acct-3", RegisteredAt: t0, ExpiresAt: t0.Add(time.Hour)}

	view := reg.View(t0.Add(3*time.Hour), time.Hour)
	assert.Equal(t, "carol", view.Name)
	assert.Equal(t, Account("acct-3"), view.Owner)
	assert.True(t, view.IsExpired)
	assert.False(t, view.InGrace)
}

func TestAccount_IsZero(t *testing.T) {
	assert.True(t, Account("").IsZero())
	assert.True(t, Account("0x0000000000000000000000000000000000000000").IsZero())
	assert.False(t, Account("0x0000000000000000000000000000000000000001").IsZero())
	assert.False(t, Account("alice").IsZero())
}

func TestLedgerError_IsMatchesByCode(t *testing.T) {
	err := NewError(CodeNameExpired, "name %q expired", "bob")
	assert.True(t, errors.Is(err, ErrNameExpired))
	assert.False(t, errors.Is(err, ErrPaused))

	wrapped := fmt.Errorf("transfer: %w", err)
	assert.True(t, errors.Is(wrapped, ErrNameExpired))

	code, ok := CodeOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeNameExpired, code)

	_, ok = CodeOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestLedgerError_WrapKeepsCause(t *testing.T) {
	cause := errors.New("bank offline")
	err := WrapError(cause, CodeSettlementFailed, "refund failed")
	assert.ErrorIs(t, err, ErrSettlementFailed)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "bank offline")
}

func TestAPIKey_IsUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.False(t, (*APIKey)(nil).IsUsable(now))
	assert.False(t, (&APIKey{Active: false}).IsUsable(now))
	assert.True(t, (&APIKey{Active: true}).IsUsable(now))
	assert.True(t, (&APIKey{Active: true, ExpiresAt: &future}).IsUsable(now))
	assert.False(t, (&APIKey{Active: true, ExpiresAt: &past}).IsUsable(now))
}
