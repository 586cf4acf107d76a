// Command bench drives load against a name registry node over its HTTP API.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/poyrazK/nameregistry/internal/adapters/api"
	"github.com/poyrazK/nameregistry/internal/adapters/cache"
	"github.com/poyrazK/nameregistry/internal/adapters/repository"
	"github.com/poyrazK/nameregistry/internal/adapters/settlement"
	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/poyrazK/nameregistry/internal/core/ports"
	"github.com/poyrazK/nameregistry/internal/core/services"
)

const benchKey = "nrk_bench"

func main() {
	mode := flag.String("mode", "bench", "Mode: bench, scale-test, or seed")
	target := flag.String("server", "http://127.0.0.1:8080", "Registry API base URL")
	key := flag.String("key", os.Getenv("NAMEREG_API_KEY"), "API key used for registrations (defaults to $NAMEREG_API_KEY)")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	count := flag.Int("n", 1000, "Total number of requests to send")
	rangeLimit := flag.Int("range", 100000, "Size of the name pool")
	zipfS := flag.Float64("zipf-s", 1.1, "Zipf distribution constant (s > 1). Higher means more 'Hot' names.")
	zipfV := flag.Float64("zipf-v", 100, "Zipf distribution constant (v >= 1).")
	writeRatio := flag.Float64("write-ratio", 0.1, "Fraction of requests that are registrations")
	payment := flag.String("payment", "0.01", "Payment attached to each registration")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := benchConfig{
		Target:      *target,
		Key:         *key,
		Count:       *count,
		Concurrency: *concurrency,
		Range:       uint64(*rangeLimit),
		ZipfS:       *zipfS,
		ZipfV:       *zipfV,
		WriteRatio:  *writeRatio,
		Payment:     *payment,
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "bench: %v\n", err)
		os.Exit(2)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	var err error
	switch *mode {
	case "seed":
		err = seedNames(ctx, client, cfg.Target, cfg.Key, cfg.Payment, *rangeLimit, cfg.Concurrency, os.Stdout)
	case "scale-test":
		err = runScaleTest(ctx, cfg, os.Stdout)
	default:
		runBenchmark(ctx, cfg, client, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "bench: %v\n", err)
		os.Exit(1)
	}
}

func (c benchConfig) validate() error {
	switch {
	case c.Concurrency < 1:
		return fmt.Errorf("-c must be at least 1")
	case c.Count < c.Concurrency:
		return fmt.Errorf("-n must be at least -c")
	case c.Range < 2:
		return fmt.Errorf("-range must be at least 2")
	case c.ZipfS <= 1 || c.ZipfV < 1:
		return fmt.Errorf("zipf needs s > 1 and v >= 1")
	case c.WriteRatio < 0 || c.WriteRatio > 1:
		return fmt.Errorf("-write-ratio must be within [0, 1]")
	}
	return nil
}

// runScaleTest boots Postgres and Redis in containers, serves a registry node
// in-process on top of them and compares a cold run with a warm one.
func runScaleTest(ctx context.Context, cfg benchConfig, out io.Writer) error {
	fmt.Fprintln(out, "Starting Scale Test Infrastructure...")
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "postgres:16-alpine", ExposedPorts: []string{"5432/tcp"},
			Env:        map[string]string{"POSTGRES_PASSWORD": "password", "POSTGRES_DB": "nameregistry"},
			WaitingFor: wait.ForListeningPort("5432/tcp"),
		},
		Started: true,
	})
	if err != nil {
		return fmt.Errorf("start postgres: %w", err)
	}
	defer func() { _ = pgContainer.Terminate(context.Background()) }()

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image: "redis:7-alpine", ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		return fmt.Errorf("start redis: %w", err)
	}
	defer func() { _ = redisContainer.Terminate(context.Background()) }()

	pgHost, err := pgContainer.Host(ctx)
	if err != nil {
		return err
	}
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		return err
	}
	redisHost, err := redisContainer.Host(ctx)
	if err != nil {
		return err
	}
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		return err
	}

	dbURL := fmt.Sprintf("postgres://postgres:password@%s:%s/nameregistry?sslmode=disable", pgHost, pgPort.Port())
	if err := repository.MigrateUp(dbURL); err != nil {
		return err
	}
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	repo := repository.NewPostgresRepository(db)
	l2 := cache.NewRedisCache(fmt.Sprintf("%s:%s", redisHost, redisPort.Port()), "", 0, 30*time.Second)
	defer l2.Close()

	svc := services.NewRegistryService(repo, settlement.NewCreditSettlement(logger), "bench-admin",
		services.WithCache(cache.NewTieredCache(5*time.Second, l2, logger)),
		services.WithLogger(logger),
	)

	srv, err := newBenchServer(ctx, svc, repo, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	cfg.Target = srv.URL
	cfg.Key = benchKey
	client := srv.Client()

	if err := seedNames(ctx, client, cfg.Target, cfg.Key, cfg.Payment, int(cfg.Range), cfg.Concurrency, out); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nExecuting Scale Benchmark\n")
	fmt.Fprintln(out, "Running Phase: COLD...")
	cold := runBenchmark(ctx, cfg, client, out)
	fmt.Fprintln(out, "Running Phase: WARM...")
	warm := runBenchmark(ctx, cfg, client, out)

	printComparison(out, cold, warm)
	return nil
}

// newBenchServer serves the registry API over httptest with a user key for benchKey.
func newBenchServer(ctx context.Context, svc ports.RegistryService, keys ports.APIKeyRepository, logger *slog.Logger) (*httptest.Server, error) {
	err := keys.CreateAPIKey(ctx, &domain.APIKey{
		ID:        uuid.New().String(),
		Account:   "bench-user",
		Name:      "bench",
		KeyHash:   api.HashKey(benchKey),
		KeyPrefix: benchKey[:8],
		Role:      domain.RoleUser,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("create bench key: %w", err)
	}

	mux := http.NewServeMux()
	api.NewAPIHandler(svc, keys, logger).RegisterRoutes(mux)
	return httptest.NewServer(mux), nil
}

func printComparison(out io.Writer, cold, warm Result) {
	fmt.Fprintln(out, "\n==========================================================")
	fmt.Fprintln(out, "            REAL-WORLD SCALE PERFORMANCE REPORT           ")
	fmt.Fprintln(out, "==========================================================")
	fmt.Fprintf(out, "%-15s | %-15s | %-15s\n", "Metric", "Cold", "Warm")
	fmt.Fprintln(out, "----------------------------------------------------------")
	fmt.Fprintf(out, "%-15s | %-15s | %-15s\n", "Throughput", cold.Throughput, warm.Throughput)
	fmt.Fprintf(out, "%-15s | %-15s | %-15s\n", "P50 Latency", cold.P50, warm.P50)
	fmt.Fprintf(out, "%-15s | %-15s | %-15s\n", "P99 Latency", cold.P99, warm.P99)
	fmt.Fprintf(out, "%-15s | %-15s | %-15s\n", "Reliability", cold.Success, warm.Success)
	fmt.Fprintln(out, "==========================================================")
}
