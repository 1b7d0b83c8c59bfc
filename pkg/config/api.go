package config

import "time"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment          string
	Addr                 string
	DatabaseURL          string
	MigrationsDir        string
	JWTSecret            string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	ActivityRetention    time.Duration
	ActivitySweepEvery   time.Duration
	ActivityDefaultLimit int
	RateLimitRedisAddr   string
	RateLimitRedisPass   string
	RateLimitRedisDB     int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:          GetString("APP_ENV", "development"),
		Addr:                 GetString("API_ADDR", ":4000"),
		DatabaseURL:          GetString("DATABASE_URL", "postgres://crewkit:crewkit@db:5432/crewkit?sslmode=disable"),
		MigrationsDir:        GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:            GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:       time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTokenTTL:      time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24)) * time.Hour,
		ActivityRetention:    time.Duration(GetInt("ACTIVITY_RETENTION_DAYS", 90)) * 24 * time.Hour,
		ActivitySweepEvery:   GetDuration("ACTIVITY_SWEEP_EVERY", time.Hour),
		ActivityDefaultLimit: GetInt("ACTIVITY_DEFAULT_LIMIT", 50),
		RateLimitRedisAddr:   GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass:   GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:     GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
