package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pkgstrings "pact/pkg/platform/strings"
)

// Server captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	Chain    Chain
	Postgres Postgres
	Redis    Redis
	Kafka    Kafka
	Signer   Signer
}

// Postgres configures the contract store. An empty URL means contracts are
// kept in memory, which is only suitable for development.
type Postgres struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// Chain configures the ledger connection pool.
type Chain struct {
	// Network is the ledger network name (devnet, testnet, mainnet-beta).
	Network string
	// Endpoints are the redundant RPC URLs, in preference order.
	Endpoints []string
	// ProgramAddress is the on-chain agreement program.
	ProgramAddress string

	RequestTimeout      time.Duration
	RetryAttempts       int
	RetryBaseDelay      time.Duration
	HealthCheckInterval time.Duration
	BalanceCacheTTL     time.Duration
	SubscriptionPoll    time.Duration
}

// Redis configures the optional Redis cache backend. An empty URL means
// Redis is not configured and the in-memory cache is used.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the notification publisher. Empty brokers disable it.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Signer controls signature-proof verification posture.
type Signer struct {
	// RequireProof rejects signatures whose proof is empty. The original
	// platform accepted a bare public key as a stand-in; production keeps
	// this on.
	RequireProof bool
}

func FromEnv() Server {
	return Server{
		Addr:          envStr("PACT_ADDR", ":8080"),
		JWTSigningKey: envStr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     envStr("JWT_ISSUER", "pact"),
		JWTAudience:   envStr("JWT_AUDIENCE", "pact-api"),
		Chain: Chain{
			Network:             envStr("CHAIN_NETWORK", "devnet"),
			Endpoints:           envList("CHAIN_RPC_ENDPOINTS", "https://api.devnet.solana.com"),
			ProgramAddress:      os.Getenv("CHAIN_PROGRAM_ADDRESS"),
			RequestTimeout:      envDuration("CHAIN_REQUEST_TIMEOUT", 10*time.Second),
			RetryAttempts:       envInt("CHAIN_RETRY_ATTEMPTS", 3),
			RetryBaseDelay:      envDuration("CHAIN_RETRY_BASE_DELAY", time.Second),
			HealthCheckInterval: envDuration("CHAIN_HEALTH_INTERVAL", 30*time.Second),
			BalanceCacheTTL:     envDuration("CHAIN_BALANCE_CACHE_TTL", 30*time.Second),
			SubscriptionPoll:    envDuration("CHAIN_SUBSCRIPTION_POLL", 10*time.Second),
		},
		Postgres: Postgres{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: envList("KAFKA_BROKERS", ""),
			Topic:   envStr("KAFKA_NOTIFICATIONS_TOPIC", "pact.notifications"),
		},
		Signer: Signer{
			RequireProof: os.Getenv("SIGNER_ALLOW_BARE_KEY") != "true",
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key, fallback string) []string {
	raw := envStr(key, fallback)
	if raw == "" {
		return nil
	}
	return pkgstrings.DedupeAndTrim(strings.Split(raw, ","))
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
