package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/shopspring/decimal"
)

// MemoryRepository implements ports.LedgerRepository and ports.APIKeyRepository
// in process memory. Writers are serialized by writeMu; each transaction stages
// its writes and publishes them under stateMu on commit.
type MemoryRepository struct {
	writeMu sync.Mutex
	stateMu sync.RWMutex

	registrations map[string]domain.Registration
	ownerNames    map[domain.Account][]string
	settings      *domain.Settings
	balances      map[domain.Account]decimal.Decimal
	events        []domain.Event
	apiKeys       map[string]domain.APIKey
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		registrations: make(map[string]domain.Registration),
		ownerNames:    make(map[domain.Account][]string),
		balances:      make(map[domain.Account]decimal.Decimal),
		apiKeys:       make(map[string]domain.APIKey),
	}
}

var (
	_ ports.LedgerRepository = (*MemoryRepository)(nil)
	_ ports.APIKeyRepository = (*MemoryRepository)(nil)
)

func (r *MemoryRepository) GetRegistration(ctx context.Context, name string) (*domain.Registration, error) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.getRegistration(name), nil
}

func (r *MemoryRepository) getRegistration(name string) *domain.Registration {
	reg, ok := r.registrations[name]
	if !ok {
		return nil
	}
	return &reg
}

func (r *MemoryRepository) ListOwnerNames(ctx context.Context, owner domain.Account) ([]string, error) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return slices.Clone(r.ownerNames[owner]), nil
}

func (r *MemoryRepository) GetSettings(ctx context.Context) (*domain.Settings, error) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.getSettings(), nil
}

func (r *MemoryRepository) getSettings() *domain.Settings {
	if r.settings == nil {
		return nil
	}
	s := *r.settings
	return &s
}

func (r *MemoryRepository) GetBalance(ctx context.Context, account domain.Account) (decimal.Decimal, error) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.balances[account], nil
}

func (r *MemoryRepository) ListEvents(ctx context.Context, afterSeq int64, limit int) ([]domain.Event, error) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return pageEvents(r.events, afterSeq, limit), nil
}

// pageEvents relies on events being sorted by Seq with Seq == index+1.
func pageEvents(events []domain.Event, afterSeq int64, limit int) []domain.Event {
	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(events)) {
		return []domain.Event{}
	}
	end := len(events)
	if limit > 0 && int(afterSeq)+limit < end {
		end = int(afterSeq) + limit
	}
	return slices.Clone(events[afterSeq:end])
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryRepository) RunInTx(ctx context.Context, fn func(tx ports.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx := &memoryTx{
		repo:       r,
		regs:       make(map[string]*domain.Registration),
		ownerNames: make(map[domain.Account][]string),
		balances:   make(map[domain.Account]decimal.Decimal),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memoryTx overlays staged writes on the committed state. Reading committed
// state without stateMu is safe because only the holder of writeMu mutates it.
type memoryTx struct {
	repo *MemoryRepository

	// A nil entry marks a staged delete.
	regs       map[string]*domain.Registration
	ownerNames map[domain.Account][]string
	settings   *domain.Settings
	balances   map[domain.Account]decimal.Decimal
	events     []domain.Event
}

func (t *memoryTx) GetRegistration(ctx context.Context, name string) (*domain.Registration, error) {
	if reg, ok := t.regs[name]; ok {
		if reg == nil {
			return nil, nil
		}
		cp := *reg
		return &cp, nil
	}
	return t.repo.getRegistration(name), nil
}

func (t *memoryTx) ListOwnerNames(ctx context.Context, owner domain.Account) ([]string, error) {
	return slices.Clone(t.ownerList(owner)), nil
}

func (t *memoryTx) ownerList(owner domain.Account) []string {
	if names, ok := t.ownerNames[owner]; ok {
		return names
	}
	return t.repo.ownerNames[owner]
}

func (t *memoryTx) GetSettings(ctx context.Context) (*domain.Settings, error) {
	if t.settings != nil {
		s := *t.settings
		return &s, nil
	}
	return t.repo.getSettings(), nil
}

func (t *memoryTx) GetBalance(ctx context.Context, account domain.Account) (decimal.Decimal, error) {
	if bal, ok := t.balances[account]; ok {
		return bal, nil
	}
	return t.repo.balances[account], nil
}

func (t *memoryTx) ListEvents(ctx context.Context, afterSeq int64, limit int) ([]domain.Event, error) {
	all := append(slices.Clone(t.repo.events), t.events...)
	return pageEvents(all, afterSeq, limit), nil
}

func (t *memoryTx) PutRegistration(ctx context.Context, reg *domain.Registration) error {
	cp := *reg
	t.regs[reg.Name] = &cp
	return nil
}

func (t *memoryTx) DeleteRegistration(ctx context.Context, name string) error {
	t.regs[name] = nil
	return nil
}

// AppendOwnerName is idempotent: a name already in the owner's list keeps its position.
func (t *memoryTx) AppendOwnerName(ctx context.Context, owner domain.Account, name string) error {
	names := t.ownerList(owner)
	if slices.Contains(names, name) {
		return nil
	}
	t.ownerNames[owner] = append(slices.Clone(names), name)
	return nil
}

func (t *memoryTx) RemoveOwnerName(ctx context.Context, owner domain.Account, name string) error {
	names := t.ownerList(owner)
	idx := slices.Index(names, name)
	if idx < 0 {
		return nil
	}
	t.ownerNames[owner] = slices.Delete(slices.Clone(names), idx, idx+1)
	return nil
}

func (t *memoryTx) PutSettings(ctx context.Context, settings *domain.Settings) error {
	s := *settings
	t.settings = &s
	return nil
}

func (t *memoryTx) CreditAccount(ctx context.Context, account domain.Account, amount decimal.Decimal) error {
	bal, _ := t.GetBalance(ctx, account)
	t.balances[account] = bal.Add(amount)
	return nil
}

func (t *memoryTx) AppendEvent(ctx context.Context, event *domain.Event) error {
	event.Seq = int64(len(t.repo.events) + len(t.events) + 1)
	t.events = append(t.events, *event)
	return nil
}

func (t *memoryTx) commit() {
	r := t.repo
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	for name, reg := range t.regs {
		if reg == nil {
			delete(r.registrations, name)
			continue
		}
		r.registrations[name] = *reg
	}
	for owner, names := range t.ownerNames {
		if len(names) == 0 {
			delete(r.ownerNames, owner)
			continue
		}
		r.ownerNames[owner] = names
	}
	if t.settings != nil {
		r.settings = t.settings
	}
	for account, bal := range t.balances {
		r.balances[account] = bal
	}
	r.events = append(r.events, t.events...)
}

func (r *MemoryRepository) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	for _, k := range r.apiKeys {
		if k.KeyHash == keyHash {
			return &k, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	r.apiKeys[key.ID] = *key
	return nil
}

func (r *MemoryRepository) ListAPIKeys(ctx context.Context, account domain.Account) ([]domain.APIKey, error) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	var keys []domain.APIKey
	for _, k := range r.apiKeys {
		if k.Account == account {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b domain.APIKey) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return keys, nil
}

// DeleteAPIKey deactivates the key rather than removing it.
func (r *MemoryRepository) DeleteAPIKey(ctx context.Context, account domain.Account, id string) error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	k, ok := r.apiKeys[id]
	if !ok || k.Account != account {
		return nil
	}
	k.Active = false
	r.apiKeys[id] = k
	return nil
}
