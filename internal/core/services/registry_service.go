package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/poyrazK/nameregistry/internal/infrastructure/metrics"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultEventPage = 100
	maxEventPage     = 1000
)

// RegistryService implements the registration ledger on top of a LedgerRepository.
// Every mutation runs inside repo.RunInTx; cache invalidation and event
// publication happen only after the transaction commits.
type RegistryService struct {
	repo       ports.LedgerRepository
	settlement ports.Settlement
	clock      ports.Clock
	cache      ports.RegistrationCache
	publisher  ports.EventPublisher
	policy     domain.Policy
	admin      domain.Account
	initialFee decimal.Decimal
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures optional collaborators of the RegistryService.
type Option func(*RegistryService)

func WithClock(c ports.Clock) Option {
	return func(s *RegistryService) { s.clock = c }
}

func WithCache(c ports.RegistrationCache) Option {
	return func(s *RegistryService) { s.cache = c }
}

func WithPublisher(p ports.EventPublisher) Option {
	return func(s *RegistryService) { s.publisher = p }
}

func WithPolicy(p domain.Policy) Option {
	return func(s *RegistryService) { s.policy = p }
}

// WithInitialFee sets the fee reported until an admin first calls SetFee.
func WithInitialFee(fee decimal.Decimal) Option {
	return func(s *RegistryService) { s.initialFee = fee }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *RegistryService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *RegistryService) { s.tracer = t }
}

func NewRegistryService(repo ports.LedgerRepository, settlement ports.Settlement, admin domain.Account, opts ...Option) *RegistryService {
	s := &RegistryService{
		repo:       repo,
		settlement: settlement,
		admin:      admin,
		clock:      NewMonotonicClock(nil),
		policy:     domain.DefaultPolicy(),
		initialFee: domain.DefaultFee,
		logger:     slog.Default(),
		tracer:     otel.Tracer("github.com/poyrazK/nameregistry/internal/core/services"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.RegistryService = (*RegistryService)(nil)

// mutation is the body of a ledger transaction. It returns the events to be
// appended to the observation log in the same transaction.
type mutation func(ctx context.Context, tx ports.LedgerTx, now time.Time) ([]domain.Event, error)

func (s *RegistryService) mutate(ctx context.Context, op string, attrs []attribute.KeyValue, fn mutation) ([]domain.Event, error) {
	ctx, span := s.tracer.Start(ctx, "registry."+op, trace.WithAttributes(attrs...))
	defer span.End()
	start := time.Now()
	defer func() {
		metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var committed []domain.Event
	err := s.repo.RunInTx(ctx, func(tx ports.LedgerTx) error {
		// sampled under the writer lock so commit order and time order agree
		now := s.clock.Now()
		events, err := fn(ctx, tx, now)
		if err != nil {
			return err
		}
		for i := range events {
			events[i].ID = uuid.New().String()
			if err := tx.AppendEvent(ctx, &events[i]); err != nil {
				return fmt.Errorf("append %s event: %w", events[i].Type, err)
			}
		}
		committed = events
		return nil
	})
	if err != nil {
		s.recordFailure(span, op, err, attrs)
		return nil, err
	}

	metrics.OperationsTotal.WithLabelValues(op, "ok").Inc()
	s.afterCommit(ctx, committed)
	return committed, nil
}

func (s *RegistryService) recordFailure(span trace.Span, op string, err error, attrs []attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	args := []any{"op", op, "error", err}
	for _, kv := range attrs {
		args = append(args, string(kv.Key), kv.Value.Emit())
	}
	if code, ok := domain.CodeOf(err); ok {
		metrics.OperationsTotal.WithLabelValues(op, string(code)).Inc()
		s.logger.Warn("ledger operation rejected", args...)
		return
	}
	metrics.OperationsTotal.WithLabelValues(op, "error").Inc()
	s.logger.Error("ledger operation failed", args...)
}

// afterCommit drops cached records touched by the committed events and hands
// the events to the publisher. Failures here never undo the commit.
func (s *RegistryService) afterCommit(ctx context.Context, events []domain.Event) {
	ctx = context.WithoutCancel(ctx)

	if s.cache != nil {
		var names []string
		for _, ev := range events {
			if ev.Name != "" {
				names = append(names, ev.Name)
			}
		}
		if len(names) > 0 {
			if err := s.cache.Invalidate(ctx, names...); err != nil {
				s.logger.Error("failed to invalidate cache", "names", names, "error", err)
			}
		}
	}

	for _, ev := range events {
		s.logger.Info("ledger event", "seq", ev.Seq, "type", ev.Type, "name", ev.Name)
	}

	if s.publisher != nil && len(events) > 0 {
		if err := s.publisher.Publish(ctx, events); err != nil {
			s.logger.Error("failed to publish ledger events", "count", len(events), "error", err)
		}
	}
}

func (s *RegistryService) loadSettings(ctx context.Context, r ports.LedgerReader) (*domain.Settings, error) {
	settings, err := r.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if settings == nil {
		settings = &domain.Settings{Fee: s.initialFee, Treasury: decimal.Zero}
	}
	return settings, nil
}

func checkPayment(settings *domain.Settings, payment decimal.Decimal) error {
	if err := domain.ValidateAmount(payment); err != nil {
		return err
	}
	if payment.LessThan(settings.Fee) {
		return domain.NewError(domain.CodeInsufficientPayment, "payment %s is below the fee %s", payment, settings.Fee)
	}
	return nil
}

// collectFee moves the fee into the treasury and refunds any excess to the
// payer. The payment must already have passed checkPayment.
func (s *RegistryService) collectFee(ctx context.Context, tx ports.LedgerTx, settings *domain.Settings, payer domain.Account, payment decimal.Decimal, now time.Time) error {
	settings.Treasury = settings.Treasury.Add(settings.Fee)
	settings.UpdatedAt = now
	if err := tx.PutSettings(ctx, settings); err != nil {
		return fmt.Errorf("update treasury: %w", err)
	}
	if excess := payment.Sub(settings.Fee); excess.IsPositive() {
		if err := s.settlement.Refund(ctx, tx, payer, excess); err != nil {
			return settlementError(err, "refund")
		}
	}
	return nil
}

func settlementError(err error, what string) error {
	if errors.Is(err, domain.ErrSettlementFailed) {
		return err
	}
	return domain.WrapError(err, domain.CodeSettlementFailed, what+" failed")
}

func checkNotPaused(settings *domain.Settings) error {
	if settings.Paused {
		return domain.ErrPaused
	}
	return nil
}

func getExisting(ctx context.Context, tx ports.LedgerTx, name string) (*domain.Registration, error) {
	reg, err := tx.GetRegistration(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	if reg == nil {
		return nil, domain.NewError(domain.CodeNameNotRegistered, "name %q is not registered", name)
	}
	return reg, nil
}

// Register claims name for payer. A record past its grace deadline is
// overwritten; the previous owner's index entry is left in place.
func (s *RegistryService) Register(ctx context.Context, name string, payer domain.Account, payment decimal.Decimal) (*domain.Registration, error) {
	var out *domain.Registration
	attrs := []attribute.KeyValue{attribute.String("name", name), attribute.String("payer", payer.String())}
	_, err := s.mutate(ctx, "register", attrs, func(ctx context.Context, tx ports.LedgerTx, now time.Time) ([]domain.Event, error) {
		settings, err := s.loadSettings(ctx, tx)
		if err != nil {
			return nil, err
		}
		if err := checkNotPaused(settings); err != nil {
			return nil, err
		}
		if err := domain.ValidateName(name); err != nil {
			return nil, err
		}
		if err := domain.ValidateAccount(payer); err != nil {
			return nil, err
		}
		if err := checkPayment(settings, payment); err != nil {
			return nil, err
		}

		existing, err := tx.GetRegistration(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load registration: %w", err)
		}
		if existing != nil && !existing.IsExpired(now, s.policy.GracePeriod) {
			return nil, domain.NewError(domain.CodeNameAlreadyRegistered, "name %q is already registered", name)
		}
		if err := s.collectFee(ctx, tx, settings, payer, payment, now); err != nil {
			return nil, err
		}

		reg := &domain.Registration{
			Name:         name,
			Owner:        payer,
			RegisteredAt: now,
			ExpiresAt:    now.Add(s.policy.RegistrationDuration),
		}
		if err := tx.PutRegistration(ctx, reg); err != nil {
			return nil, fmt.Errorf("store registration: %w", err)
		}
		if err := tx.AppendOwnerName(ctx, payer, name); err != nil {
			return nil, fmt.Errorf("index owner name: %w", err)
		}
		out = reg
		return []domain.Event{domain.NameRegistered(name, payer, reg.ExpiresAt, now)}, nil
	})
	if err != nil {
		return nil, err
	}
	metrics.NamesRegistered.Inc()
	return out, nil
}

// Renew extends expiresAt by one registration period. Renewal is cumulative
// and applies to any existing record owned by payer, expired or not.
func (s *RegistryService) Renew(ctx context.Context, name string, payer domain.Account, payment decimal.Decimal) (time.Time, error) {
	var newExpiry time.Time
	attrs := []attribute.KeyValue{attribute.String("name", name), attribute.String("payer", payer.String())}
	_, err := s.mutate(ctx, "renew", attrs, func(ctx context.Context, tx ports.LedgerTx, now time.Time) ([]domain.Event, error) {
		settings, err := s.loadSettings(ctx, tx)
		if err != nil {
			return nil, err
		}
		if err := checkNotPaused(settings); err != nil {
			return nil, err
		}
		reg, err := getExisting(ctx, tx, name)
		if err != nil {
			return nil, err
		}
		if reg.Owner != payer {
			return nil, domain.NewError(domain.CodeNotNameOwner, "%s does not own %q", payer, name)
		}
		if err := checkPayment(settings, payment); err != nil {
			return nil, err
		}
		if err := s.collectFee(ctx, tx, settings, payer, payment, now); err != nil {
			return nil, err
		}

		reg.ExpiresAt = reg.ExpiresAt.Add(s.policy.RegistrationDuration)
		if err := tx.PutRegistration(ctx, reg); err != nil {
			return nil, fmt.Errorf("store registration: %w", err)
		}
		newExpiry = reg.ExpiresAt
		return []domain.Event{domain.NameRenewed(name, payer, reg.ExpiresAt, now)}, nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return newExpiry, nil
}

// TransferName moves a live name from caller to newOwner and moves the
// owner index entry with it.
func (s *RegistryService) TransferName(ctx context.Context, name string, caller, newOwner domain.Account) error {
	attrs := []attribute.KeyValue{
		attribute.String("name", name),
		attribute.String("from", caller.String()),
		attribute.String("to", newOwner.String()),
	}
	_, err := s.mutate(ctx, "transfer", attrs, func(ctx context.Context, tx ports.LedgerTx, now time.Time) ([]domain.Event, error) {
		settings, err := s.loadSettings(ctx, tx)
		if err != nil {
			return nil, err
		}
		if err := checkNotPaused(settings); err != nil {
			return nil, err
		}
		if err := domain.ValidateAccount(newOwner); err != nil {
			return nil, err
		}
		reg, err := getExisting(ctx, tx, name)
		if err != nil {
			return nil, err
		}
		if reg.Owner != caller {
			return nil, domain.NewError(domain.CodeNotNameOwner, "%s does not own %q", caller, name)
		}
		if reg.IsExpired(now, s.policy.GracePeriod) {
			return nil, domain.NewError(domain.CodeNameExpired, "name %q expired at %s", name, reg.GraceDeadline(s.policy.GracePeriod).Format(time.RFC3339))
		}

		reg.Owner = newOwner
		if err := tx.PutRegistration(ctx, reg); err != nil {
			return nil, fmt.Errorf("store registration: %w", err)
		}
		if err := tx.RemoveOwnerName(ctx, caller, name); err != nil {
			return nil, fmt.Errorf("unindex owner name: %w", err)
		}
		if err := tx.AppendOwnerName(ctx, newOwner, name); err != nil {
			return nil, fmt.Errorf("index owner name: %w", err)
		}
		return []domain.Event{domain.NameTransferred(name, caller, newOwner, now)}, nil
	})
	return err
}

// ReleaseName deletes the record. The owner may release at any time,
// including after expiry.
func (s *RegistryService) ReleaseName(ctx context.Context, name string, caller domain.Account) error {
	attrs := []attribute.KeyValue{attribute.String("name", name), attribute.String("caller", caller.String())}
	_, err := s.mutate(ctx, "release", attrs, func(ctx context.Context, tx ports.LedgerTx, now time.Time) ([]domain.Event, error) {
		settings, err := s.loadSettings(ctx, tx)
		if err != nil {
			return nil, err
		}
		if err := checkNotPaused(settings); err != nil {
			return nil, err
		}
		reg, err := getExisting(ctx, tx, name)
		if err != nil {
			return nil, err
		}
		if reg.Owner != caller {
			return nil, domain.NewError(domain.CodeNotNameOwner, "%s does not own %q", caller, name)
		}

		if err := tx.DeleteRegistration(ctx, name); err != nil {
			return nil, fmt.Errorf("delete registration: %w", err)
		}
		if err := tx.RemoveOwnerName(ctx, caller, name); err != nil {
			return nil, fmt.Errorf("unindex owner name: %w", err)
		}
		return []domain.Event{domain.NameReleased(name, caller, now)}, nil
	})
	return err
}

// lookup reads a raw record through the cache. Absent records are not cached.
// The ticket is taken before the store read, so a mutation that commits and
// invalidates in between makes the cache refuse this now outdated record.
func (s *RegistryService) lookup(ctx context.Context, name string) (*domain.Registration, error) {
	if s.cache == nil {
		return s.loadRegistration(ctx, name)
	}
	if reg, ok := s.cache.Get(ctx, name); ok {
		return reg, nil
	}
	ticket, fillable := s.cache.Ticket(ctx, name)
	reg, err := s.loadRegistration(ctx, name)
	if err != nil {
		return nil, err
	}
	if reg != nil && fillable {
		s.cache.Fill(ctx, reg, ticket)
	}
	return reg, nil
}

func (s *RegistryService) loadRegistration(ctx context.Context, name string) (*domain.Registration, error) {
	reg, err := s.repo.GetRegistration(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load registration: %w", err)
	}
	return reg, nil
}

// IsNameAvailable reports whether register(name) would succeed on the
// record check. Names that fail validation are never available.
func (s *RegistryService) IsNameAvailable(ctx context.Context, name string) (bool, error) {
	if domain.ValidateName(name) != nil {
		return false, nil
	}
	reg, err := s.lookup(ctx, name)
	if err != nil {
		return false, err
	}
	return reg == nil || reg.IsExpired(s.clock.Now(), s.policy.GracePeriod), nil
}

// GetNameOwner returns the owner, or the zero account once the name is past
// its grace deadline.
func (s *RegistryService) GetNameOwner(ctx context.Context, name string) (domain.Account, error) {
	reg, err := s.lookup(ctx, name)
	if err != nil {
		return "", err
	}
	if reg == nil || reg.IsExpired(s.clock.Now(), s.policy.GracePeriod) {
		return "", nil
	}
	return reg.Owner, nil
}

func (s *RegistryService) GetRegistration(ctx context.Context, name string) (*domain.RegistrationView, error) {
	reg, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, domain.NewError(domain.CodeNameNotRegistered, "name %q is not registered", name)
	}
	view := reg.View(s.clock.Now(), s.policy.GracePeriod)
	return &view, nil
}

// GetOwnerNames returns the raw owner index, stale entries included.
func (s *RegistryService) GetOwnerNames(ctx context.Context, owner domain.Account) ([]string, error) {
	names, err := s.repo.ListOwnerNames(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list owner names: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// GetActiveOwnerNames filters the owner index down to names the owner still
// holds and that are within their grace deadline.
func (s *RegistryService) GetActiveOwnerNames(ctx context.Context, owner domain.Account) ([]string, error) {
	names, err := s.GetOwnerNames(ctx, owner)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	active := make([]string, 0, len(names))
	for _, name := range names {
		reg, err := s.lookup(ctx, name)
		if err != nil {
			return nil, err
		}
		if reg == nil || reg.Owner != owner || reg.IsExpired(now, s.policy.GracePeriod) {
			continue
		}
		active = append(active, name)
	}
	return active, nil
}

func (s *RegistryService) GetSettings(ctx context.Context) (*domain.Settings, error) {
	return s.loadSettings(ctx, s.repo)
}

func (s *RegistryService) GetBalance(ctx context.Context, account domain.Account) (decimal.Decimal, error) {
	bal, err := s.repo.GetBalance(ctx, account)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load balance: %w", err)
	}
	return bal, nil
}

// ListEvents pages the observation log by sequence number.
func (s *RegistryService) ListEvents(ctx context.Context, afterSeq int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = defaultEventPage
	}
	if limit > maxEventPage {
		limit = maxEventPage
	}
	events, err := s.repo.ListEvents(ctx, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	return events, nil
}

func (s *RegistryService) requireAdmin(caller domain.Account) error {
	if s.admin.IsZero() || caller != s.admin {
		return domain.NewError(domain.CodeUnauthorized, "%s is not the admin", caller)
	}
	return nil
}

func (s *RegistryService) SetFee(ctx context.Context, caller domain.Account, fee decimal.Decimal) error {
	attrs := []attribute.KeyValue{attribute.String("caller", caller.String()), attribute.String("fee", fee.String())}
	_, err := s.mutate(ctx, "set_fee", attrs, func(ctx context.Context, tx ports.LedgerTx, now time.Time) ([]domain.Event, error) {
		if err := s.requireAdmin(caller); err != nil {
			return nil, err
		}
		if err := domain.ValidateAmount(fee); err != nil {
			return nil, err
		}
		settings, err := s.loadSettings(ctx, tx)
		if err != nil {
			return nil, err
		}
		old := settings.Fee
		settings.Fee = fee
		settings.UpdatedAt = now
		if err := tx.PutSettings(ctx, settings); err != nil {
			return nil, fmt.Errorf("store settings: %w", err)
		}
		return []domain.Event{domain.RegistrationFeeUpdated(old, fee, now)}, nil
	})
	return err
}

func (s *RegistryService) Pause(ctx context.Context, caller domain.Account) error {
	return s.setPaused(ctx, caller, true)
}

func (s *RegistryService) Unpause(ctx context.Context, caller domain.Account) error {
	return s.setPaused(ctx, caller, false)
}

func (s *RegistryService) setPaused(ctx context.Context, caller domain.Account, paused bool) error {
	op := "unpause"
	if paused {
		op = "pause"
	}
	attrs := []attribute.KeyValue{attribute.String("caller", caller.String())}
	_, err := s.mutate(ctx, op, attrs, func(ctx context.Context, tx ports.LedgerTx, now time.Time) ([]domain.Event, error) {
		if err := s.requireAdmin(caller); err != nil {
			return nil, err
		}
		settings, err := s.loadSettings(ctx, tx)
		if err != nil {
			return nil, err
		}
		settings.Paused = paused
		settings.UpdatedAt = now
		if err := tx.PutSettings(ctx, settings); err != nil {
			return nil, fmt.Errorf("store settings: %w", err)
		}
		if paused {
			return []domain.Event{domain.PausedBy(caller, now)}, nil
		}
		return []domain.Event{domain.UnpausedBy(caller, now)}, nil
	})
	if err != nil {
		return err
	}
	if paused {
		metrics.Paused.Set(1)
	} else {
		metrics.Paused.Set(0)
	}
	return nil
}

// Withdraw pays the whole treasury out to the admin account.
func (s *RegistryService) Withdraw(ctx context.Context, caller domain.Account) (decimal.Decimal, error) {
	amount := decimal.Zero
	attrs := []attribute.KeyValue{attribute.String("caller", caller.String())}
	_, err := s.mutate(ctx, "withdraw", attrs, func(ctx context.Context, tx ports.LedgerTx, now time.Time) ([]domain.Event, error) {
		if err := s.requireAdmin(caller); err != nil {
			return nil, err
		}
		settings, err := s.loadSettings(ctx, tx)
		if err != nil {
			return nil, err
		}
		amount = settings.Treasury
		settings.Treasury = decimal.Zero
		settings.UpdatedAt = now
		if err := tx.PutSettings(ctx, settings); err != nil {
			return nil, fmt.Errorf("store settings: %w", err)
		}
		if amount.IsPositive() {
			if err := s.settlement.Payout(ctx, tx, caller, amount); err != nil {
				return nil, settlementError(err, "payout")
			}
		}
		return []domain.Event{domain.FeesWithdrawn(caller, amount, now)}, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// HealthCheck pings the store and, when configured, the cache.
func (s *RegistryService) HealthCheck(ctx context.Context) map[string]error {
	res := map[string]error{"store": s.repo.Ping(ctx)}
	if s.cache != nil {
		res["cache"] = s.cache.Ping(ctx)
	}
	return res
}
