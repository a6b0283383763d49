// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env            string // APP_ENV: dev, test or prod
	Port           string // APP_PORT
	DBUser         string // DB_USER
	DBPass         string // DB_PASS (optional)
	DBHost         string // DB_HOST
	DBPort         string // DB_PORT
	DBName         string // DB_NAME
	JWTSecret      string // JWT_SECRET signs access tokens
	AccessTTLMin   int    // ACCESS_TOKEN_TTL_MIN
	RefreshTTLDays int    // REFRESH_TOKEN_TTL_DAYS
	BcryptCost     int    // BCRYPT_COST

	ProofSecret         string        // PROOF_SECRET signs ticket proofs
	ProofTTL            time.Duration // PROOF_TTL
	RequestTimeout      time.Duration // REQUEST_TIMEOUT bounds each reservation request
	BlockCreatorBooking bool          // BLOCK_CREATOR_BOOKING
	IdempotencyTTL      time.Duration // IDEMPOTENCY_TTL

	RabbitURL    string // RABBITMQ_URL; empty disables publishing and the consumer
	AuditLogPath string // AUDIT_LOG_PATH for the ticket event consumer

	ReconcileInterval time.Duration // RECONCILE_INTERVAL; zero disables the reconciler
	ReconcileGrace    time.Duration // RECONCILE_GRACE

	LogLevel string // LOG_LEVEL

	AdminEmail    string // ADMIN_EMAIL; with ADMIN_PASSWORD creates the first admin
	AdminPassword string // ADMIN_PASSWORD
}

// IsProd reports whether the app runs in production.
func (c Config) IsProd() bool { return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production") }

// Load reads a .env file when present, then the environment. Every missing
// or malformed required variable is reported in one error.
func Load() (Config, error) {
	_ = godotenv.Load() // a missing .env is fine; real env vars win

	l := &loader{}
	cfg := Config{
		Env:            l.must("APP_ENV"),
		Port:           l.must("APP_PORT"),
		DBUser:         l.must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         l.must("DB_HOST"),
		DBPort:         l.must("DB_PORT"),
		DBName:         l.must("DB_NAME"),
		JWTSecret:      l.must("JWT_SECRET"),
		AccessTTLMin:   l.mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: l.mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     l.mustInt("BCRYPT_COST"),

		ProofSecret:         l.must("PROOF_SECRET"),
		ProofTTL:            envDur("PROOF_TTL", 720*time.Hour),
		RequestTimeout:      envDur("REQUEST_TIMEOUT", 10*time.Second),
		BlockCreatorBooking: envBool("BLOCK_CREATOR_BOOKING", false),
		IdempotencyTTL:      envDur("IDEMPOTENCY_TTL", 24*time.Hour),

		RabbitURL:    os.Getenv("RABBITMQ_URL"),
		AuditLogPath: envStr("AUDIT_LOG_PATH", "logs/tickets.log"),

		ReconcileInterval: envDur("RECONCILE_INTERVAL", time.Minute),
		ReconcileGrace:    envDur("RECONCILE_GRACE", 5*time.Minute),

		LogLevel: envStr("LOG_LEVEL", "info"),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
	if cfg.ProofSecret != "" && cfg.ProofSecret == cfg.JWTSecret {
		l.errs = append(l.errs, errors.New("PROOF_SECRET must differ from JWT_SECRET"))
	}
	if cfg.ReconcileGrace < cfg.RequestTimeout {
		l.errs = append(l.errs, fmt.Errorf("RECONCILE_GRACE (%s) must not be shorter than REQUEST_TIMEOUT (%s)", cfg.ReconcileGrace, cfg.RequestTimeout))
	}
	if err := errors.Join(l.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loader collects errors for required variables.
type loader struct{ errs []error }

func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		l.errs = append(l.errs, fmt.Errorf("missing required env var: %s", key))
	}
	return v
}

func (l *loader) mustInt(key string) int {
	s := l.must(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid int for %s: %q", key, s))
	}
	return n
}
