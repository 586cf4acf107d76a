package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/poyrazK/nameregistry/internal/adapters/api"
	"github.com/poyrazK/nameregistry/internal/adapters/cache"
	"github.com/poyrazK/nameregistry/internal/adapters/events"
	"github.com/poyrazK/nameregistry/internal/adapters/repository"
	"github.com/poyrazK/nameregistry/internal/adapters/routing"
	"github.com/poyrazK/nameregistry/internal/adapters/settlement"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/poyrazK/nameregistry/internal/core/services"
	"github.com/poyrazK/nameregistry/internal/infrastructure/config"
	"github.com/poyrazK/nameregistry/internal/infrastructure/listener"
	"github.com/poyrazK/nameregistry/internal/infrastructure/metrics"
	"github.com/poyrazK/nameregistry/internal/infrastructure/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tp, err := tracing.NewProvider(ctx, cfg.TracesExporter, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	a, err := newApp(ctx, cfg, logger, tp.Tracer())
	if err != nil {
		return err
	}
	defer a.close()

	ln, err := listener.Listen(ctx, cfg.APIAddr, cfg.ReusePort)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.APIAddr, err)
	}
	return a.serve(ctx, ln)
}

// app holds the wired registry node.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	svc     *services.RegistryService
	keys    ports.APIKeyRepository
	handler http.Handler
	limiter *api.RateLimiter
	cache   *cache.TieredCache
	l2      *cache.RedisCache
	anycast *services.AnycastManager
	db      *sql.DB
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, tracer trace.Tracer) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, keys, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.keys = keys

	publisher := events.NewMultiPublisher().Add("log", events.NewLogPublisher(logger))
	if cfg.RedisAddr != "" {
		a.l2 = cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL)
		a.closers = append(a.closers, func() { _ = a.l2.Close() })
		publisher.Add("redis-stream", events.NewRedisStreamPublisher(a.l2.Client(), cfg.EventStream, cfg.EventStreamMaxLen))
	}
	a.cache = cache.NewTieredCache(cfg.LocalCacheTTL, a.l2, logger)

	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, kp.Close)
		publisher.Add("kafka", kp)
	}

	if cfg.Admin() == "" {
		logger.Warn("no admin account configured, admin operations are disabled")
	}

	a.svc = services.NewRegistryService(store, settlement.NewCreditSettlement(logger), cfg.Admin(),
		services.WithPolicy(cfg.Policy()),
		services.WithInitialFee(cfg.InitialFee),
		services.WithCache(a.cache),
		services.WithPublisher(publisher),
		services.WithLogger(logger),
		services.WithTracer(tracer),
	)

	mux := http.NewServeMux()
	api.NewAPIHandler(a.svc, keys, logger).RegisterRoutes(mux)
	a.limiter = api.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	a.handler = otelhttp.NewHandler(api.RateLimitMiddleware(a.limiter)(mux), "nameregistry-api")

	if cfg.Anycast.Enabled {
		bgp := routing.NewGoBGPAdapter(cfg.Anycast.RouterID, logger)
		if err := bgp.Start(ctx, cfg.Anycast.LocalASN, cfg.Anycast.PeerASN, cfg.Anycast.PeerIP); err != nil {
			a.close()
			return nil, fmt.Errorf("start bgp: %w", err)
		}
		a.closers = append(a.closers, func() { _ = bgp.Stop() })
		a.anycast = services.NewAnycastManager(a.svc, bgp, routing.NewSystemVIPAdapter(logger),
			cfg.Anycast.VIP, cfg.Anycast.Iface, logger)
	}

	logger.Info("registry wired",
		"store", cfg.Store,
		"redis", cfg.RedisAddr != "",
		"publishers", publisher.Len(),
		"anycast", cfg.Anycast.Enabled)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (ports.LedgerRepository, ports.APIKeyRepository, error) {
	if a.cfg.Store == config.StoreMemory {
		repo := repository.NewMemoryRepository()
		return repo, repo, nil
	}

	if err := repository.MigrateUp(a.cfg.DatabaseURL); err != nil {
		return nil, nil, err
	}
	db, err := sql.Open("pgx", a.cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func() { _ = db.Close() })
	if err := db.PingContext(ctx); err != nil {
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	repo := repository.NewPostgresRepository(db)
	return repo, repo, nil
}

// serve runs the API and background workers until ctx is cancelled.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		a.logger.Info("management API listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		a.limiter.RunCleanup(gctx, time.Minute)
		return nil
	})

	if a.l2 != nil {
		g.Go(func() error {
			if err := a.cache.ListenInvalidations(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("cache invalidation listener: %w", err)
			}
			return nil
		})
	}

	if a.anycast != nil {
		g.Go(func() error {
			a.anycast.Start(gctx)
			return nil
		})
	}

	if a.db != nil {
		g.Go(func() error {
			reportDBStats(gctx, a.db, 15*time.Second)
			return nil
		})
	}

	return g.Wait()
}

func reportDBStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		metrics.DBConnectionsActive.Set(float64(db.Stats().InUse))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
