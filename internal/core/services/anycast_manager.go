package services

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/poyrazK/nameregistry/internal/infrastructure/metrics"
)

const defaultCheckInterval = 10 * time.Second

// AnycastManager announces the API VIP over BGP while the registry's store
// and cache are healthy and withdraws it when they are not.
type AnycastManager struct {
	health      ports.HealthChecker
	routing     ports.RoutingEngine
	vipManager  ports.VIPManager
	vip         string
	iface       string
	interval    time.Duration
	logger      *slog.Logger
	isAnnounced atomic.Bool
	vipBound    atomic.Bool
}

func NewAnycastManager(
	health ports.HealthChecker,
	routing ports.RoutingEngine,
	vipManager ports.VIPManager,
	vip string,
	iface string,
	logger *slog.Logger,
) *AnycastManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnycastManager{
		health:     health,
		routing:    routing,
		vipManager: vipManager,
		vip:        vip,
		iface:      iface,
		interval:   defaultCheckInterval,
		logger:     logger,
	}
}

// SetInterval overrides the health check period.
func (m *AnycastManager) SetInterval(d time.Duration) {
	if d > 0 {
		m.interval = d
	}
}

// IsAnnounced reports whether the VIP is currently advertised.
func (m *AnycastManager) IsAnnounced() bool {
	return m.isAnnounced.Load()
}

// Start runs the check loop until ctx is done, then withdraws the route.
func (m *AnycastManager) Start(ctx context.Context) {
	m.logger.Info("anycast manager running", "vip", m.vip, "iface", m.iface, "interval", m.interval)
	m.TriggerCheck(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := m.routing.Withdraw(context.WithoutCancel(ctx), m.vip); err != nil {
				m.logger.Error("withdraw on shutdown failed", "vip", m.vip, "error", err)
			}
			m.setAnnounced(false)
			m.logger.Info("anycast manager stopped", "vip", m.vip)
			return
		case <-ticker.C:
			m.TriggerCheck(ctx)
		}
	}
}

// TriggerCheck probes the ledger dependencies once and moves the route
// toward the matching state.
func (m *AnycastManager) TriggerCheck(ctx context.Context) {
	healthy := m.healthy(ctx)
	switch announced := m.isAnnounced.Load(); {
	case healthy && !announced:
		m.announce(ctx)
	case !healthy && announced:
		m.withdraw(ctx)
	}
}

// healthy is false if any dependency reported an error. An empty report counts as healthy.
func (m *AnycastManager) healthy(ctx context.Context) bool {
	ok := true
	for dep, err := range m.health.HealthCheck(ctx) {
		if err != nil {
			m.logger.Warn("registry dependency down", "dependency", dep, "error", err)
			ok = false
		}
	}
	return ok
}

func (m *AnycastManager) announce(ctx context.Context) {
	if !m.vipBound.Load() {
		if err := m.vipManager.Bind(ctx, m.vip, m.iface); err != nil {
			m.logger.Error("bind API VIP", "vip", m.vip, "iface", m.iface, "error", err)
			return
		}
		m.vipBound.Store(true)
	}
	if err := m.routing.Announce(ctx, m.vip); err != nil {
		m.logger.Error("announce API VIP", "vip", m.vip, "error", err)
		return
	}
	m.setAnnounced(true)
	m.logger.Info("registry healthy, API VIP announced", "vip", m.vip)
}

// withdraw leaves the VIP bound so local probes still reach the node.
func (m *AnycastManager) withdraw(ctx context.Context) {
	if err := m.routing.Withdraw(ctx, m.vip); err != nil {
		// still announced; the next tick retries
		m.logger.Error("withdraw API VIP", "vip", m.vip, "error", err)
		return
	}
	m.setAnnounced(false)
	m.logger.Warn("registry unhealthy, API VIP withdrawn", "vip", m.vip)
}

func (m *AnycastManager) setAnnounced(v bool) {
	m.isAnnounced.Store(v)
	if v {
		metrics.BGPAnnounced.Set(1)
	} else {
		metrics.BGPAnnounced.Set(0)
	}
}
