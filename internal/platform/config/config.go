// Package config builds the engine's runtime configuration from environment
// variables so main stays lean. Money-valued settings are written in ETH and
// parsed to wei here; everything downstream computes in wei only.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"namehaus/pkg/domain"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	OperatorToken string
}

// Registrar captures commit-reveal and pricing configuration.
type Registrar struct {
	MinCommitmentAge time.Duration
	MaxCommitmentAge time.Duration
	ReferrerFeeBps   uint32

	// Yearly base prices by label length tier, in wei.
	ThreeCharYearly *big.Int
	FourCharYearly  *big.Int
	LongYearly      *big.Int
}

// Limiter captures the registration rate limit settings.
type Limiter struct {
	MaxPerWindow int
	TimeWindow   time.Duration
}

// FeeManager captures the treasury timelock settings.
type FeeManager struct {
	Timelock     time.Duration
	EmergencyCap *big.Int
	Treasury     domain.Address
}

// Accounts names the bank accounts the engine's components custody funds in.
type Accounts struct {
	Registrar   domain.Address
	Marketplace domain.Address
	FeeManager  domain.Address
}

// RedisConfig captures the optional Redis connection used by the distributed
// limiter store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig captures the optional Postgres connection used by the
// persistent ledger store.
type PostgresConfig struct {
	URL string
}

// KafkaConfig captures the optional Kafka cluster the event stream is
// published to.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Config is the full engine configuration.
type Config struct {
	Server     Server
	Registrar  Registrar
	Limiter    Limiter
	FeeManager FeeManager
	Accounts   Accounts
	Redis      RedisConfig
	Postgres   PostgresConfig
	Kafka      KafkaConfig
}

// Default component accounts for development. Production deployments set the
// NAMEHAUS_*_ACCOUNT variables.
const (
	defaultRegistrarAccount   = "0x0000000000000000000000000000000000000101"
	defaultMarketplaceAccount = "0x0000000000000000000000000000000000000102"
	defaultFeeManagerAccount  = "0x0000000000000000000000000000000000000103"
)

// FromEnv builds the engine config from environment variables, applying
// development defaults for anything unset.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:          envOr("NAMEHAUS_ADDR", ":8080"),
			OperatorToken: os.Getenv("NAMEHAUS_OPERATOR_TOKEN"),
		},
		Registrar: Registrar{
			MinCommitmentAge: envDuration("NAMEHAUS_MIN_COMMITMENT_AGE", time.Minute),
			MaxCommitmentAge: envDuration("NAMEHAUS_MAX_COMMITMENT_AGE", 24*time.Hour),
			ReferrerFeeBps:   uint32(envInt("NAMEHAUS_REFERRER_FEE_BPS", 500)),
		},
		Limiter: Limiter{
			MaxPerWindow: envInt("NAMEHAUS_LIMITER_MAX", 5),
			TimeWindow:   envDuration("NAMEHAUS_LIMITER_WINDOW", time.Hour),
		},
		FeeManager: FeeManager{
			Timelock: envDuration("NAMEHAUS_WITHDRAWAL_TIMELOCK", 48*time.Hour),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("NAMEHAUS_REDIS_URL"),
			PoolSize:     envInt("NAMEHAUS_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("NAMEHAUS_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("NAMEHAUS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("NAMEHAUS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("NAMEHAUS_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("NAMEHAUS_DATABASE_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: envList("NAMEHAUS_KAFKA_BROKERS"),
			Topic:   envOr("NAMEHAUS_KAFKA_TOPIC", "namehaus.events"),
		},
	}

	var err error
	if cfg.Registrar.ThreeCharYearly, err = envEther("NAMEHAUS_PRICE_3CHAR_ETH", "0.5"); err != nil {
		return Config{}, err
	}
	if cfg.Registrar.FourCharYearly, err = envEther("NAMEHAUS_PRICE_4CHAR_ETH", "0.1"); err != nil {
		return Config{}, err
	}
	if cfg.Registrar.LongYearly, err = envEther("NAMEHAUS_PRICE_LONG_ETH", "0.05"); err != nil {
		return Config{}, err
	}
	if cfg.FeeManager.EmergencyCap, err = envEther("NAMEHAUS_EMERGENCY_CAP_ETH", "10"); err != nil {
		return Config{}, err
	}
	if cfg.FeeManager.Treasury, err = envAddress("NAMEHAUS_TREASURY", defaultFeeManagerAccount); err != nil {
		return Config{}, err
	}
	if cfg.Accounts.Registrar, err = envAddress("NAMEHAUS_REGISTRAR_ACCOUNT", defaultRegistrarAccount); err != nil {
		return Config{}, err
	}
	if cfg.Accounts.Marketplace, err = envAddress("NAMEHAUS_MARKETPLACE_ACCOUNT", defaultMarketplaceAccount); err != nil {
		return Config{}, err
	}
	if cfg.Accounts.FeeManager, err = envAddress("NAMEHAUS_FEEMANAGER_ACCOUNT", defaultFeeManagerAccount); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envEther(key, fallback string) (*big.Int, error) {
	wei, err := domain.ParseEther(envOr(key, fallback))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return wei, nil
}

func envAddress(key, fallback string) (domain.Address, error) {
	addr, err := domain.ParseAddress(envOr(key, fallback))
	if err != nil {
		return domain.Address{}, fmt.Errorf("%s: %w", key, err)
	}
	return addr, nil
}
