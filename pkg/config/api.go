package config

import "time"

// APIConfig holds runtime configuration for the accounts API service.
type APIConfig struct {
	Environment        string
	Addr               string
	LogLevel           string
	DatabaseURL        string
	MigrationsDir      string
	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	PasswordMinLength  int
	ResetTokenTTL      time.Duration
	ResetBaseURL       string
	SMTPAddr           string
	SMTPUsername       string
	SMTPPassword       string
	MailFrom           string
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":8000"),
		LogLevel:           GetString("LOG_LEVEL", "info"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://accounts:accounts@db:5432/accounts?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		JWTSecret:          GetString("JWT_SECRET", "supersecuresecret"),
		AccessTokenTTL:     time.Duration(GetInt("ACCESS_TOKEN_TTL_MIN", 15)) * time.Minute,
		RefreshTokenTTL:    time.Duration(GetInt("REFRESH_TOKEN_TTL_HOURS", 24)) * time.Hour,
		PasswordMinLength:  GetInt("PASSWORD_MIN_LENGTH", 8),
		ResetTokenTTL:      GetDuration("RESET_TOKEN_TTL", 30*time.Minute),
		ResetBaseURL:       GetString("RESET_BASE_URL", "https://accounts.veslo.dev/password-reset"),
		SMTPAddr:           GetString("SMTP_ADDR", ""),
		SMTPUsername:       GetString("SMTP_USERNAME", ""),
		SMTPPassword:       GetString("SMTP_PASSWORD", ""),
		MailFrom:           GetString("MAIL_FROM", "no-reply@veslo.dev"),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
	}
}
