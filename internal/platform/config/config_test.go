package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "devnet", cfg.Chain.Network)
	assert.Equal(t, []string{"https://api.devnet.solana.com"}, cfg.Chain.Endpoints)
	assert.Equal(t, 3, cfg.Chain.RetryAttempts)
	assert.Equal(t, 30*time.Second, cfg.Chain.BalanceCacheTTL)
	assert.Empty(t, cfg.Postgres.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.True(t, cfg.Signer.RequireProof)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PACT_ADDR", ":9090")
	t.Setenv("CHAIN_NETWORK", "mainnet-beta")
	t.Setenv("CHAIN_RETRY_ATTEMPTS", "5")
	t.Setenv("CHAIN_BALANCE_CACHE_TTL", "2m")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("SIGNER_ALLOW_BARE_KEY", "true")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "mainnet-beta", cfg.Chain.Network)
	assert.Equal(t, 5, cfg.Chain.RetryAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Chain.BalanceCacheTTL)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Signer.RequireProof)
}

func TestFromEnv_EndpointListDeduped(t *testing.T) {
	t.Setenv("CHAIN_RPC_ENDPOINTS", " https://a.example.com , https://b.example.com,https://a.example.com, ")

	cfg := FromEnv()

	assert.Equal(t,
		[]string{"https://a.example.com", "https://b.example.com"},
		cfg.Chain.Endpoints)
}

func TestFromEnv_BadNumberFallsBack(t *testing.T) {
	t.Setenv("CHAIN_RETRY_ATTEMPTS", "many")
	t.Setenv("CHAIN_REQUEST_TIMEOUT", "soon")

	cfg := FromEnv()

	assert.Equal(t, 3, cfg.Chain.RetryAttempts)
	assert.Equal(t, 10*time.Second, cfg.Chain.RequestTimeout)
}
