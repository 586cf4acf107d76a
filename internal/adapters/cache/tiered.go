// Package cache holds raw registration records in a process-local L1
// (go-cache) backed by an optional shared Redis L2.
package cache

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/poyrazK/nameregistry/internal/infrastructure/metrics"
)

const (
	DefaultL1TTL = 5 * time.Second
	DefaultL2TTL = 30 * time.Second
)

// genStripes spreads names over a fixed set of generation counters. Names
// sharing a stripe only cost each other a skipped fill.
const genStripes = 256

type genStripe struct {
	mu  sync.Mutex
	gen uint64
}

// TieredCache implements ports.RegistrationCache.
type TieredCache struct {
	l1      *gocache.Cache
	l2      *RedisCache
	logger  *slog.Logger
	stripes [genStripes]genStripe
}

// NewTieredCache builds the cache. l2 may be nil for single-node deployments.
func NewTieredCache(l1TTL time.Duration, l2 *RedisCache, logger *slog.Logger) *TieredCache {
	if logger == nil {
		logger = slog.Default()
	}
	if l1TTL <= 0 {
		l1TTL = DefaultL1TTL
	}
	return &TieredCache{
		l1:     gocache.New(l1TTL, 2*l1TTL),
		l2:     l2,
		logger: logger,
	}
}

var _ ports.RegistrationCache = (*TieredCache)(nil)

func (c *TieredCache) stripe(name string) *genStripe {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return &c.stripes[h.Sum32()%genStripes]
}

func (c *TieredCache) localGen(name string) uint64 {
	st := c.stripe(name)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.gen
}

// fillL1 stores reg unless name was invalidated locally since gen was read.
func (c *TieredCache) fillL1(reg domain.Registration, gen uint64) bool {
	st := c.stripe(reg.Name)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gen != gen {
		return false
	}
	c.l1.SetDefault(reg.Name, reg)
	return true
}

func (c *TieredCache) dropL1(name string) {
	st := c.stripe(name)
	st.mu.Lock()
	st.gen++
	c.l1.Delete(name)
	st.mu.Unlock()
}

func (c *TieredCache) Get(ctx context.Context, name string) (*domain.Registration, bool) {
	if v, ok := c.l1.Get(name); ok {
		metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
		reg := v.(domain.Registration)
		return &reg, true
	}
	metrics.CacheOperations.WithLabelValues("l1", "miss").Inc()

	if c.l2 == nil {
		return nil, false
	}
	gen := c.localGen(name)
	reg, ok := c.l2.Get(ctx, name)
	if !ok {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return nil, false
	}
	metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()
	c.fillL1(*reg, gen)
	return reg, true
}

func (c *TieredCache) Ticket(ctx context.Context, name string) (ports.CacheTicket, bool) {
	ticket := ports.CacheTicket{Local: c.localGen(name)}
	if c.l2 == nil {
		return ticket, true
	}
	shared, err := c.l2.Generation(ctx, name)
	if err != nil {
		c.logger.Warn("failed to read L2 generation", "name", name, "error", err)
		return ticket, false
	}
	ticket.Shared = shared
	return ticket, true
}

// Fill writes L2 first; if another node invalidated the name meanwhile L1 is
// left alone as well.
func (c *TieredCache) Fill(ctx context.Context, reg *domain.Registration, ticket ports.CacheTicket) {
	if c.l2 != nil {
		applied, err := c.l2.FillIfCurrent(ctx, reg, ticket.Shared)
		if err != nil {
			c.logger.Warn("failed to write L2 cache", "name", reg.Name, "error", err)
			return
		}
		if !applied {
			metrics.CacheOperations.WithLabelValues("l2", "stale_fill").Inc()
			return
		}
	}
	if !c.fillL1(*reg, ticket.Local) {
		metrics.CacheOperations.WithLabelValues("l1", "stale_fill").Inc()
	}
}

func (c *TieredCache) Invalidate(ctx context.Context, names ...string) error {
	for _, n := range names {
		c.dropL1(n)
	}
	if c.l2 == nil {
		return nil
	}
	return c.l2.Invalidate(ctx, names...)
}

func (c *TieredCache) Ping(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	return c.l2.Ping(ctx)
}

// ListenInvalidations drops L1 entries named by other nodes until ctx is done.
func (c *TieredCache) ListenInvalidations(ctx context.Context) error {
	if c.l2 == nil {
		<-ctx.Done()
		return nil
	}
	pubsub := c.l2.Subscribe(ctx)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.logger.Warn("failed to close invalidation subscription", "error", err)
		}
	}()
	// Wait for the subscription to be confirmed so no invalidation is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	c.logger.Info("listening for cache invalidations", "channel", InvalidationChannel)
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.dropL1(msg.Payload)
		}
	}
}
