package ports

import (
	"context"
	"time"

	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/shopspring/decimal"
)

// LedgerReader is the read side of the ledger store. Absent registrations are
// reported as (nil, nil).
type LedgerReader interface {
	GetRegistration(ctx context.Context, name string) (*domain.Registration, error)
	ListOwnerNames(ctx context.Context, owner domain.Account) ([]string, error)
	GetSettings(ctx context.Context) (*domain.Settings, error)
	GetBalance(ctx context.Context, account domain.Account) (decimal.Decimal, error)
	ListEvents(ctx context.Context, afterSeq int64, limit int) ([]domain.Event, error)
}

// LedgerTx is a serialized unit of work. Nothing written through it is visible
// to other callers until the enclosing RunInTx returns nil.
type LedgerTx interface {
	LedgerReader
	PutRegistration(ctx context.Context, reg *domain.Registration) error
	DeleteRegistration(ctx context.Context, name string) error
	AppendOwnerName(ctx context.Context, owner domain.Account, name string) error
	RemoveOwnerName(ctx context.Context, owner domain.Account, name string) error
	PutSettings(ctx context.Context, settings *domain.Settings) error
	CreditAccount(ctx context.Context, account domain.Account, amount decimal.Decimal) error
	AppendEvent(ctx context.Context, event *domain.Event) error
}

// LedgerRepository owns the registration table and the owner index. RunInTx
// runs fn with exclusive write access; a non-nil error from fn discards every
// write made through the tx.
type LedgerRepository interface {
	LedgerReader
	RunInTx(ctx context.Context, fn func(tx LedgerTx) error) error
	Ping(ctx context.Context) error
}

type APIKeyRepository interface {
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	ListAPIKeys(ctx context.Context, account domain.Account) ([]domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, account domain.Account, id string) error
}

// Clock supplies the timestamp a ledger call is evaluated against.
type Clock interface {
	Now() time.Time
}

// Settlement moves value out of the ledger. It runs inside the caller's
// transaction so a failure rolls the whole operation back.
type Settlement interface {
	Refund(ctx context.Context, tx LedgerTx, to domain.Account, amount decimal.Decimal) error
	Payout(ctx context.Context, tx LedgerTx, to domain.Account, amount decimal.Decimal) error
}

// EventPublisher forwards committed observations to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, events []domain.Event) error
}

// CacheTicket records the invalidation generation of a name. Take it before
// reading the store so a fill with an outdated record can be refused.
type CacheTicket struct {
	Local  uint64
	Shared int64
}

// RegistrationCache holds raw registration records. Derived state (expiry,
// availability) is never cached.
type RegistrationCache interface {
	Get(ctx context.Context, name string) (*domain.Registration, bool)
	// Ticket reports false when no fill may follow, e.g. the shared tier is down.
	Ticket(ctx context.Context, name string) (CacheTicket, bool)
	// Fill stores reg unless name was invalidated after ticket was taken.
	Fill(ctx context.Context, reg *domain.Registration, ticket CacheTicket)
	Invalidate(ctx context.Context, names ...string) error
	Ping(ctx context.Context) error
}

type RegistryService interface {
	Register(ctx context.Context, name string, payer domain.Account, payment decimal.Decimal) (*domain.Registration, error)
	Renew(ctx context.Context, name string, payer domain.Account, payment decimal.Decimal) (time.Time, error)
	TransferName(ctx context.Context, name string, caller, newOwner domain.Account) error
	ReleaseName(ctx context.Context, name string, caller domain.Account) error

	IsNameAvailable(ctx context.Context, name string) (bool, error)
	GetNameOwner(ctx context.Context, name string) (domain.Account, error)
	GetRegistration(ctx context.Context, name string) (*domain.RegistrationView, error)
	GetOwnerNames(ctx context.Context, owner domain.Account) ([]string, error)
	GetActiveOwnerNames(ctx context.Context, owner domain.Account) ([]string, error)

	GetSettings(ctx context.Context) (*domain.Settings, error)
	GetBalance(ctx context.Context, account domain.Account) (decimal.Decimal, error)
	ListEvents(ctx context.Context, afterSeq int64, limit int) ([]domain.Event, error)

	SetFee(ctx context.Context, caller domain.Account, fee decimal.Decimal) error
	Pause(ctx context.Context, caller domain.Account) error
	Unpause(ctx context.Context, caller domain.Account) error
	Withdraw(ctx context.Context, caller domain.Account) (decimal.Decimal, error)

	HealthCheck(ctx context.Context) map[string]error
}

// RoutingEngine announces the API VIP over BGP.
type RoutingEngine interface {
	Start(ctx context.Context, localASN, peerASN uint32, peerIP string) error
	Announce(ctx context.Context, vip string) error
	Withdraw(ctx context.Context, vip string) error
	Stop() error
}

// VIPManager binds the anycast VIP to a local interface.
type VIPManager interface {
	Bind(ctx context.Context, vip, iface string) error
	Unbind(ctx context.Context, vip, iface string) error
}

// HealthChecker is the subset of the registry the anycast manager watches.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
}
