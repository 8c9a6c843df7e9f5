package main

import (
	"errors"
	"time"

	"github.com/serenity-care/platform/libs/config"
	"github.com/serenity-care/platform/services/availability-service/internal/availability"
)

type settings struct {
	Service     string
	Port        string
	GRPCPort    string
	DatabaseURL string
	DBMaxConns  int

	KafkaBrokers string
	KafkaGroupID string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	RateLimit     int
	RateWindow    time.Duration
	CORSOrigins   []string
	BodyLimit     int64
	HandlerBudget time.Duration

	JWTSecret string
	JWKSURL   string
	JWKSTTL   time.Duration

	Defaults availability.Defaults
}

func loadSettings() (settings, error) {
	var errs []error
	intVar := func(key string, fallback, min, max int) int {
		n, err := config.Int(key, fallback, min, max)
		if err != nil {
			errs = append(errs, err)
		}
		return n
	}

	s := settings{
		Service:       config.String("SERVICE_NAME", "availability-service"),
		KafkaBrokers:  config.String("KAFKA_BROKERS", ""),
		KafkaGroupID:  config.String("KAFKA_GROUP_ID", "availability-service"),
		RedisAddr:     config.String("REDIS_ADDR", ""),
		RedisPassword: config.String("REDIS_PASSWORD", ""),
		CacheTTL:      config.Seconds("WINDOW_CACHE_TTL_SECONDS", 5*time.Minute),
		RateWindow:    config.Seconds("RATE_LIMIT_WINDOW_SECONDS", time.Minute),
		CORSOrigins:   config.List("CORS_ALLOWED_ORIGINS"),
		HandlerBudget: config.Seconds("HTTP_HANDLER_TIMEOUT_SECONDS", 10*time.Second),
		JWTSecret:     config.String("JWT_SECRET", ""),
		JWKSURL:       config.String("JWKS_URL", ""),
		JWKSTTL:       config.Seconds("JWKS_CACHE_TTL_SECONDS", 5*time.Minute),
	}

	var err error
	if s.Port, err = config.Port("PORT", "8086"); err != nil {
		errs = append(errs, err)
	}
	if s.GRPCPort, err = config.Port("GRPC_PORT", "9086"); err != nil {
		errs = append(errs, err)
	}
	if s.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		errs = append(errs, err)
	}
	s.DBMaxConns = intVar("DB_MAX_CONNS", 10, 1, 200)
	s.RedisDB = intVar("REDIS_DB", 0, 0, 15)
	s.RateLimit = intVar("RATE_LIMIT_PER_WINDOW", 120, 1, 100000)
	s.BodyLimit = int64(intVar("HTTP_BODY_LIMIT_BYTES", 1<<20, 1024, 16<<20))

	s.Defaults = availability.Defaults{
		BufferMinutes:       intVar("DEFAULT_BUFFER_MINUTES", availability.DefaultBufferMinutes, 0, 240),
		MinAdvance:          time.Duration(intVar("DEFAULT_MIN_ADVANCE_HOURS", availability.DefaultMinAdvanceHours, 0, 24*365)) * time.Hour,
		MaxAdvance:          time.Duration(intVar("DEFAULT_MAX_ADVANCE_DAYS", availability.DefaultMaxAdvanceDays, 1, 365)) * 24 * time.Hour,
		SlotDurationMinutes: intVar("DEFAULT_SLOT_DURATION_MINUTES", availability.DefaultSlotDurationMinutes, availability.MinWindowMinutes, availability.MaxWindowMinutes),
	}
	return s, errors.Join(errs...)
}
