package domain

import (
	"time"
)

type Role string

const (
	RoleAdmin Role = "admin" // Fee, pause and withdraw operations
	RoleUser  Role = "user"  // Register, renew, transfer and release own names
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

type APIKey struct {
	ID        string     `json:"id"`
	Account   Account    `json:"account"`
	Name      string     `json:"name"`       // Human-readable label, e.g. "wallet-bridge"
	KeyHash   string     `json:"-"`          // SHA-256 hash of the key (never store raw)
	KeyPrefix string     `json:"key_prefix"` // First 8 chars for identification
	Role      Role       `json:"role"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IsUsable reports whether the key may authenticate a request at now.
func (k *APIKey) IsUsable(now time.Time) bool {
	if k == nil || !k.Active {
		return false
	}
	return k.ExpiresAt == nil || !k.ExpiresAt.Before(now)
}
