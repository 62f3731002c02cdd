package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/tablebook/libs/config"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/notify"
	"github.com/md-rashed-zaman/tablebook/services/reservation-service/internal/policy"
)

type serviceConfig struct {
	Port           string
	DatabaseURL    string
	DBMaxConns     int32
	MigrateOnStart bool

	Policy        policy.Booking
	NotifyTimeout time.Duration

	KafkaBrokers string

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitPerMinute int
	RateLimitFailOpen  bool

	AdminSecret    string
	CORSOrigins    []string
	BodyLimit      int64
	RequestTimeout time.Duration
}

func loadConfig() (serviceConfig, error) {
	var cfg serviceConfig
	var err error

	if cfg.Port, err = config.Port("PORT", "8083"); err != nil {
		return cfg, err
	}
	if cfg.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return cfg, err
	}
	maxConns, err := config.Int("DB_MAX_CONNS", 10)
	if err != nil {
		return cfg, err
	}
	cfg.DBMaxConns = int32(maxConns)
	cfg.MigrateOnStart = config.Bool("MIGRATE_ON_START", false)

	loc, err := config.Location("RESTAURANT_TIMEZONE", "Europe/Paris")
	if err != nil {
		return cfg, err
	}
	cfg.Policy = policy.Default(loc)
	if cfg.Policy.MinAdvance, err = config.Duration("BOOKING_MIN_ADVANCE", cfg.Policy.MinAdvance); err != nil {
		return cfg, err
	}
	horizonDays, err := config.Int("BOOKING_HORIZON_DAYS", 30)
	if err != nil {
		return cfg, err
	}
	if horizonDays <= 0 {
		return cfg, fmt.Errorf("BOOKING_HORIZON_DAYS must be positive")
	}
	cfg.Policy.Horizon = time.Duration(horizonDays) * 24 * time.Hour
	if cfg.Policy.MaxPartySize, err = config.Int("BOOKING_MAX_PARTY_SIZE", cfg.Policy.MaxPartySize); err != nil {
		return cfg, err
	}
	if cfg.Policy.MaxPartySize < cfg.Policy.MinPartySize {
		return cfg, fmt.Errorf("BOOKING_MAX_PARTY_SIZE must be at least %d", cfg.Policy.MinPartySize)
	}
	if cfg.NotifyTimeout, err = config.Duration("NOTIFY_TIMEOUT", notify.DefaultTimeout); err != nil {
		return cfg, err
	}

	cfg.KafkaBrokers = config.String("KAFKA_BROKERS", "")

	cfg.RedisAddr = config.String("REDIS_ADDR", "")
	cfg.RedisPassword = config.String("REDIS_PASSWORD", "")
	if cfg.RedisDB, err = config.Int("REDIS_DB", 0); err != nil {
		return cfg, err
	}
	if cfg.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 30); err != nil {
		return cfg, err
	}
	cfg.RateLimitFailOpen = config.Bool("RATE_LIMIT_FAIL_OPEN", true)

	cfg.AdminSecret = config.String("ADMIN_JWT_SECRET", "")
	cfg.CORSOrigins = config.List("CORS_ALLOWED_ORIGINS")
	bodyLimit, err := config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		return cfg, err
	}
	cfg.BodyLimit = int64(bodyLimit)
	if cfg.RequestTimeout, err = config.Duration("HTTP_REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return cfg, err
	}
	return cfg, nil
}
