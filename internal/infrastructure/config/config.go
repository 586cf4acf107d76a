// Package config loads the registry server's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/poyrazK/nameregistry/internal/core/domain"
	"github.com/shopspring/decimal"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	APIAddr     string `env:"NAMEREG_API_ADDR" envDefault:":8080"`
	Store       string `env:"NAMEREG_STORE" envDefault:"postgres"`
	ReusePort   bool   `env:"NAMEREG_REUSEPORT"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL      time.Duration `env:"NAMEREG_CACHE_TTL" envDefault:"30s"`
	LocalCacheTTL time.Duration `env:"NAMEREG_LOCAL_CACHE_TTL" envDefault:"5s"`

	AdminAccount         string          `env:"NAMEREG_ADMIN_ACCOUNT"`
	InitialFee           decimal.Decimal `env:"NAMEREG_INITIAL_FEE" envDefault:"0.01"`
	RegistrationDuration time.Duration   `env:"NAMEREG_REGISTRATION_DURATION" envDefault:"8760h"`
	GracePeriod          time.Duration   `env:"NAMEREG_GRACE_PERIOD" envDefault:"720h"`

	RateLimit float64 `env:"NAMEREG_RATE_LIMIT" envDefault:"50"`
	RateBurst int     `env:"NAMEREG_RATE_BURST" envDefault:"100"`

	EventStream       string   `env:"NAMEREG_EVENT_STREAM" envDefault:"nameregistry:events"`
	EventStreamMaxLen int64    `env:"NAMEREG_EVENT_STREAM_MAXLEN" envDefault:"100000"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic        string   `env:"KAFKA_TOPIC" envDefault:"nameregistry.events"`

	TracesExporter string `env:"OTEL_TRACES_EXPORTER" envDefault:"none"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`

	ShutdownTimeout time.Duration `env:"NAMEREG_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Anycast Anycast `envPrefix:"ANYCAST_"`
}

// Anycast configures BGP announcement of the API VIP.
type Anycast struct {
	Enabled  bool   `env:"ENABLED"`
	VIP      string `env:"VIP"`
	Iface    string `env:"IFACE" envDefault:"lo"`
	LocalASN uint32 `env:"LOCAL_ASN" envDefault:"65001"`
	PeerASN  uint32 `env:"PEER_ASN" envDefault:"65000"`
	PeerIP   string `env:"PEER_IP"`
	RouterID string `env:"ROUTER_ID"`
}

// Load reads the process environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads vars instead of the process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("NAMEREG_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store))
	}

	if c.AdminAccount != "" {
		if err := domain.ValidateAccount(c.Admin()); err != nil {
			errs = append(errs, fmt.Errorf("NAMEREG_ADMIN_ACCOUNT: %w", err))
		}
	}
	if c.InitialFee.IsNegative() {
		errs = append(errs, errors.New("NAMEREG_INITIAL_FEE must not be negative"))
	}
	if c.RegistrationDuration <= 0 {
		errs = append(errs, errors.New("NAMEREG_REGISTRATION_DURATION must be positive"))
	}
	if c.GracePeriod < 0 {
		errs = append(errs, errors.New("NAMEREG_GRACE_PERIOD must not be negative"))
	}

	switch c.TracesExporter {
	case "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("OTEL_TRACES_EXPORTER %q is not one of none, stdout, otlp", c.TracesExporter))
	}

	if c.Anycast.Enabled && (c.Anycast.VIP == "" || c.Anycast.PeerIP == "" || c.Anycast.RouterID == "") {
		errs = append(errs, errors.New("ANYCAST_VIP, ANYCAST_PEER_IP and ANYCAST_ROUTER_ID are required when anycast is enabled"))
	}

	return errors.Join(errs...)
}

// Admin returns the configured admin account.
func (c *Config) Admin() domain.Account {
	return domain.Account(c.AdminAccount)
}

// Policy returns the registration lifecycle constants.
func (c *Config) Policy() domain.Policy {
	return domain.Policy{
		RegistrationDuration: c.RegistrationDuration,
		GracePeriod:          c.GracePeriod,
	}
}
