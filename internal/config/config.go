package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "VoteGate"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultMatcherTimeout = 10 * time.Second

	// Decision-policy defaults. The face/liveness and iris thresholds are
	// independent tuning inputs; they are not required to be arithmetically
	// consistent with each other.
	defaultFaceThreshold     = 0.94
	defaultLivenessThreshold = 0.30
	defaultIrisEyeThreshold  = 0.30
	defaultIrisConfThreshold = 0.85
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// MatcherTimeout bounds every call into a biometric matcher or document
	// reader. A timed-out call is reported as an upstream failure, never as
	// a pass.
	MatcherTimeout time.Duration

	// Verification thresholds.
	FaceThreshold     float64
	LivenessThreshold float64
	IrisEyeThreshold  float64
	IrisConfThreshold float64

	// Operator token signing.
	OperatorJWTSecret string
	OperatorTokenTTL  time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:           getEnv("APP_NAME", defaultAppName),
		AppEnv:            getEnv("APP_ENV", defaultAppEnv),
		Port:              getEnv("PORT", defaultPort),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		ShutdownPeriod:    defaultShutdownDelay,
		IdempotencyTTL:    defaultIdempotencyTTL,
		MatcherTimeout:    defaultMatcherTimeout,
		FaceThreshold:     defaultFaceThreshold,
		LivenessThreshold: defaultLivenessThreshold,
		IrisEyeThreshold:  defaultIrisEyeThreshold,
		IrisConfThreshold: defaultIrisConfThreshold,
		OperatorJWTSecret: os.Getenv("OPERATOR_JWT_SECRET"),
		OperatorTokenTTL:  time.Hour,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.MatcherTimeout, err = durationEnv("MATCHER_TIMEOUT", cfg.MatcherTimeout); err != nil {
		return Config{}, err
	}
	if cfg.OperatorTokenTTL, err = durationEnv("OPERATOR_TOKEN_TTL", cfg.OperatorTokenTTL); err != nil {
		return Config{}, err
	}

	if cfg.FaceThreshold, err = floatEnv("FACE_THRESHOLD", cfg.FaceThreshold); err != nil {
		return Config{}, err
	}
	if cfg.LivenessThreshold, err = floatEnv("LIVENESS_THRESHOLD", cfg.LivenessThreshold); err != nil {
		return Config{}, err
	}
	if cfg.IrisEyeThreshold, err = floatEnv("IRIS_EYE_THRESHOLD", cfg.IrisEyeThreshold); err != nil {
		return Config{}, err
	}
	if cfg.IrisConfThreshold, err = floatEnv("IRIS_CONFIDENCE_THRESHOLD", cfg.IrisConfThreshold); err != nil {
		return Config{}, err
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.OperatorJWTSecret == "" {
			return Config{}, fmt.Errorf("OPERATOR_JWT_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}
	if cfg.OperatorJWTSecret == "" {
		cfg.OperatorJWTSecret = "dev-only-operator-secret"
	}

	return cfg, nil
}

// IsDev reports whether the app runs with development conveniences
// (in-memory stores, seeded sample data).
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(key + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", key, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if f < 0 || f > 1 {
		return 0, fmt.Errorf("%s must be within [0,1], got %v", key, f)
	}
	return f, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
