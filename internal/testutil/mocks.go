package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/shopspring/decimal"
)

// MockRoutingEngine implements ports.RoutingEngine for testing.
type MockRoutingEngine struct {
	Announced     bool
	WithdrawCount int
	FailAnnounce  bool
}

func (m *MockRoutingEngine) Start(_ context.Context, _, _ uint32, _ string) error { return nil }
func (m *MockRoutingEngine) Announce(_ context.Context, _ string) error {
	if m.FailAnnounce {
		return errors.New("announce failed")
	}
	m.Announced = true
	return nil
}
func (m *MockRoutingEngine) Withdraw(_ context.Context, _ string) error {
	m.Announced = false
	m.WithdrawCount++
	return nil
}
func (m *MockRoutingEngine) Stop() error { return nil }

// MockVIPManager implements ports.VIPManager for testing.
type MockVIPManager struct {
	Bound    bool
	FailBind bool
}

func (m *MockVIPManager) Bind(_ context.Context, _, _ string) error {
	if m.FailBind {
		return errors.New("bind failed")
	}
	m.Bound = true
	return nil
}
func (m *MockVIPManager) Unbind(_ context.Context, _, _ string) error {
	m.Bound = false
	return nil
}

// ManualClock implements ports.Clock with a time the test moves explicitly.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// FailingSettlement implements ports.Settlement and rejects every transfer.
type FailingSettlement struct {
	Err error
}

func (f *FailingSettlement) Refund(context.Context, ports.LedgerTx, domain.Account, decimal.Decimal) error {
	return f.err()
}

func (f *FailingSettlement) Payout(context.Context, ports.LedgerTx, domain.Account, decimal.Decimal) error {
	return f.err()
}

func (f *FailingSettlement) err() error {
	if f.Err != nil {
		return f.Err
	}
	return errors.New("settlement rail unavailable")
}

// RecordingPublisher implements ports.EventPublisher and keeps every event it sees.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
	Err    error
}

func (p *RecordingPublisher) Publish(_ context.Context, events []domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return p.Err
}

func (p *RecordingPublisher) Events() []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Event(nil), p.events...)
}

// Types returns the recorded event types in order.
func (p *RecordingPublisher) Types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]domain.EventType, len(p.events))
	for i, ev := range p.events {
		types[i] = ev.Type
	}
	return types
}

var (
	_ ports.RoutingEngine  = (*MockRoutingEngine)(nil)
	_ ports.VIPManager     = (*MockVIPManager)(nil)
	_ ports.Clock          = (*ManualClock)(nil)
	_ ports.Settlement     = (*FailingSettlement)(nil)
	_ ports.EventPublisher = (*RecordingPublisher)(nil)

	_ ports.APIKeyRepository = (*MockAPIKeyRepo)(nil)
	_ ports.RegistryService  = (*MockRegistryService)(nil)
)
