package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string

	// Deposit required from candidates joining the organization.
	DepositSymbol string
	DepositAmount int64

	// Lifetime of governance proposals; expired proposals become
	// permanently unreleasable.
	ProposalTTL time.Duration

	// Founding validator set used to bootstrap the organization when no
	// external registry is wired.
	Validators []string

	PostgresDSN  string
	Redis        RedisConfig
	KafkaBrokers []string
	KafkaTopic   string
}

// RedisConfig holds connection tuning for the optional Redis marker store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("DAOFUND_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	depositSymbol := os.Getenv("DAOFUND_DEPOSIT_SYMBOL")
	if depositSymbol == "" {
		depositSymbol = "ELF"
	}
	depositAmount, _ := strconv.ParseInt(os.Getenv("DAOFUND_DEPOSIT_AMOUNT"), 10, 64)

	proposalTTL := 7 * 24 * time.Hour
	if raw := os.Getenv("DAOFUND_PROPOSAL_TTL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			proposalTTL = d
		}
	}

	validators := []string{"genesis-validator"}
	if raw := os.Getenv("DAOFUND_VALIDATORS"); raw != "" {
		validators = strings.Split(raw, ",")
	}

	var brokers []string
	if raw := os.Getenv("DAOFUND_KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}
	topic := os.Getenv("DAOFUND_KAFKA_TOPIC")
	if topic == "" {
		topic = "daofund.events"
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		DepositSymbol: depositSymbol,
		DepositAmount: depositAmount,
		ProposalTTL:   proposalTTL,
		Validators:    validators,
		PostgresDSN:   os.Getenv("DAOFUND_POSTGRES_DSN"),
		Redis: RedisConfig{
			URL:          os.Getenv("DAOFUND_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		KafkaBrokers: brokers,
		KafkaTopic:   topic,
	}
}
