package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Quota    QuotaConfig
	Email    EmailConfig
	Features Features
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port         string
	Env          string
	BackendURL   string // Base URL embedded in confirmation/reset links
	InferenceURL string // External moderation inference service
}

type AuthConfig struct {
	AccessTokenSecret     string
	TwoFactorTokenSecret  string
	EmailTokenSecret      string
	PasswordResetSecret   string
	AccessTokenExpiry     time.Duration
	TwoFactorTokenExpiry  time.Duration
	EmailTokenExpiry      time.Duration
	PasswordResetExpiry   time.Duration
	RefreshTokenExpiry    time.Duration
	MaxAttempts           int
	AttemptWindow         time.Duration
	ResetAttemptsOnLogin  bool
	TOTPIssuer            string
	CleanupInterval       time.Duration
}

type QuotaConfig struct {
	MaxRequestsPerDay int
	MaxAPIKeysPerUser int
}

type EmailConfig struct {
	AWSRegion   string
	FromAddress string
}

// Features models the v1/v2 split of the authentication flow: v1 runs with
// email confirmation, two-factor, and lockout notifications all disabled.
type Features struct {
	EmailConfirmation    bool
	TwoFactor            bool
	LockoutNotifications bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "moderation"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Env:          env,
			BackendURL:   getEnv("BACKEND_URL", "http://localhost:8080"),
			InferenceURL: getEnv("INFERENCE_URL", ""),
		},
		Auth: AuthConfig{
			AccessTokenSecret:    getEnv("ACCESS_TOKEN_SECRET", ""),
			TwoFactorTokenSecret: getEnv("TWO_FACTOR_TOKEN_SECRET", ""),
			EmailTokenSecret:     getEnv("EMAIL_TOKEN_SECRET", ""),
			PasswordResetSecret:  getEnv("PASSWORD_RESET_SECRET", ""),
			AccessTokenExpiry:    time.Duration(getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
			TwoFactorTokenExpiry: 3 * time.Minute,
			EmailTokenExpiry:     1 * time.Hour,
			PasswordResetExpiry:  20 * time.Minute,
			RefreshTokenExpiry:   time.Duration(getEnvAsInt("REFRESH_TOKEN_EXPIRE_DAYS", 7)) * 24 * time.Hour,
			MaxAttempts:          getEnvAsInt("MAX_ATTEMPTS", 5),
			AttemptWindow:        time.Duration(getEnvAsInt("ATTEMPT_WINDOW_MINUTES", 5)) * time.Minute,
			ResetAttemptsOnLogin: getEnvAsBool("RESET_ATTEMPTS_ON_LOGIN", true),
			TOTPIssuer:           getEnv("TOTP_ISSUER", "Content Moderation API"),
			CleanupInterval:      getEnvAsDuration("ATTEMPT_CLEANUP_INTERVAL", 1*time.Hour),
		},
		Quota: QuotaConfig{
			MaxRequestsPerDay: getEnvAsInt("MAX_REQUESTS_PER_DAY", 100),
			MaxAPIKeysPerUser: getEnvAsInt("MAX_API_KEYS_PER_USER", 3),
		},
		Email: EmailConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_SENDER", ""),
		},
		Features: Features{
			EmailConfirmation:    getEnvAsBool("ENABLE_EMAIL_CONFIRMATION", true),
			TwoFactor:            getEnvAsBool("ENABLE_TWO_FACTOR", true),
			LockoutNotifications: getEnvAsBool("ENABLE_LOCKOUT_NOTIFICATIONS", true),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateTokenSecrets(&cfg.Auth, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateTokenSecrets enforces that every token purpose has its own secret
// of reasonable strength. Sharing a secret across purposes would let a token
// issued for one purpose verify as another.
func validateTokenSecrets(auth *AuthConfig, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	secrets := map[string]string{
		"ACCESS_TOKEN_SECRET":     auth.AccessTokenSecret,
		"TWO_FACTOR_TOKEN_SECRET": auth.TwoFactorTokenSecret,
		"EMAIL_TOKEN_SECRET":      auth.EmailTokenSecret,
		"PASSWORD_RESET_SECRET":   auth.PasswordResetSecret,
	}

	seen := make(map[string]string, len(secrets))
	for name, secret := range secrets {
		if len(secret) < minLength {
			return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
				name, minLength, env, len(secret))
		}
		if prev, ok := seen[secret]; ok {
			return fmt.Errorf("%s and %s must not share the same value", prev, name)
		}
		seen[secret] = name
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
