// Package config holds process-wide configuration. It is read once at
// startup and treated as immutable for the lifetime of the instance.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/platform/envutil"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

// budgetFraction is the share of the platform ceiling a single invocation may
// use. The remainder is reserved for persistence and response writing.
const budgetFraction = 0.8

type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	FallbackModel string
}

type RetryConfig struct {
	// MaxRetries is the retry ceiling; the controller makes MaxRetries+1
	// primary attempts.
	MaxRetries      int
	BackoffBase     time.Duration
	AttemptTimeout  time.Duration
	FallbackTimeout time.Duration
}

// MaxAttemptTimeout is the timeout of the last primary attempt.
func (r RetryConfig) MaxAttemptTimeout() time.Duration {
	return r.AttemptTimeout * time.Duration(r.MaxRetries+1)
}

type DBConfig struct {
	Driver string
	DSN    string
}

// OTelConfig selects where pipeline spans are exported. With Enabled and no
// Endpoint spans go to stdout.
type OTelConfig struct {
	Enabled      bool
	Endpoint     string
	Headers      map[string]string
	Insecure     bool
	SamplerRatio float64
}

type Config struct {
	LogMode string
	Port    string

	OpenAI OpenAIConfig
	Retry  RetryConfig

	ExecutionCeiling time.Duration
	PersistTimeout   time.Duration

	DB DBConfig

	CORSAllowOrigin string
	JWTSecret       string

	RedisAddr   string
	InflightTTL time.Duration

	CacheSize int
	CacheTTL  time.Duration

	MinResponseChars int
	MetricsEnabled   bool
	OTel             OTelConfig

	QuestionBankPath string
	QuestionBank     *QuestionBank
}

// ExecutionBudget is the deadline applied to one pipeline invocation.
func (c Config) ExecutionBudget() time.Duration {
	return time.Duration(float64(c.ExecutionCeiling) * budgetFraction)
}

// Load reads an optional .env file, then the environment, then the question
// bank. A missing API key is not an error here: the server still starts and
// analysis requests fail with a ConfigurationError.
func Load(log *logger.Logger) (Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug("Loaded .env file")
	}

	cfg := Config{
		LogMode: envutil.String("LOG_MODE", "development"),
		Port:    envutil.String("PORT", "8080"),
		OpenAI: OpenAIConfig{
			APIKey:        envutil.String("OPENAI_API_KEY", ""),
			BaseURL:       envutil.String("OPENAI_BASE_URL", "https://api.openai.com"),
			Model:         envutil.String("OPENAI_MODEL", "gpt-4o"),
			FallbackModel: envutil.String("OPENAI_FALLBACK_MODEL", "gpt-4o-mini"),
		},
		Retry: RetryConfig{
			MaxRetries:      envutil.Int("ANALYSIS_MAX_RETRIES", 2),
			BackoffBase:     envutil.Millis("ANALYSIS_BACKOFF_BASE_MS", 500*time.Millisecond),
			AttemptTimeout:  envutil.Seconds("ANALYSIS_ATTEMPT_TIMEOUT_SECONDS", 25*time.Second),
			FallbackTimeout: envutil.Seconds("ANALYSIS_FALLBACK_TIMEOUT_SECONDS", 20*time.Second),
		},
		ExecutionCeiling: envutil.Seconds("PLATFORM_EXECUTION_CEILING_SECONDS", 150*time.Second),
		PersistTimeout:   envutil.Seconds("PERSIST_TIMEOUT_SECONDS", 5*time.Second),
		DB: DBConfig{
			Driver: envutil.String("DB_DRIVER", "postgres"),
			DSN:    envutil.String("DATABASE_DSN", postgresDSNFromParts()),
		},
		CORSAllowOrigin:  envutil.String("CORS_ALLOW_ORIGIN", "*"),
		JWTSecret:        envutil.String("JWT_SECRET", ""),
		RedisAddr:        envutil.String("REDIS_ADDR", ""),
		InflightTTL:      envutil.Seconds("ANALYSIS_INFLIGHT_TTL_SECONDS", 180*time.Second),
		CacheSize:        envutil.Int("ANALYSIS_CACHE_SIZE", 512),
		CacheTTL:         envutil.Seconds("ANALYSIS_CACHE_TTL_SECONDS", 60*time.Second),
		MinResponseChars: envutil.Int("ANALYSIS_MIN_RESPONSE_CHARS", 20),
		MetricsEnabled:   envutil.Bool("METRICS_ENABLED", true),
		OTel: OTelConfig{
			Enabled:      envutil.Bool("OTEL_ENABLED", false),
			Endpoint:     envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:      envutil.Pairs("OTEL_EXPORTER_OTLP_HEADERS"),
			Insecure:     envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SamplerRatio: clampRatio(envutil.Float("OTEL_SAMPLER_RATIO", 0.1)),
		},
		QuestionBankPath: envutil.String("QUESTION_BANK_PATH", ""),
	}
	if cfg.Retry.MaxRetries < 0 {
		cfg.Retry.MaxRetries = 0
	}

	qb, err := LoadQuestionBank(cfg.QuestionBankPath)
	if err != nil {
		return cfg, &analysis.ConfigurationError{Key: "QUESTION_BANK_PATH", Reason: err.Error()}
	}
	cfg.QuestionBank = qb

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks that every network timeout leaves the reserved margin
// below the platform ceiling.
func (c Config) Validate() error {
	budget := c.ExecutionBudget()
	if budget <= 0 {
		return &analysis.ConfigurationError{Key: "PLATFORM_EXECUTION_CEILING_SECONDS", Reason: "must be positive"}
	}
	if c.Retry.AttemptTimeout <= 0 {
		return &analysis.ConfigurationError{Key: "ANALYSIS_ATTEMPT_TIMEOUT_SECONDS", Reason: "must be positive"}
	}
	if longest := c.Retry.MaxAttemptTimeout(); longest >= budget {
		return &analysis.ConfigurationError{
			Key:    "ANALYSIS_ATTEMPT_TIMEOUT_SECONDS",
			Reason: fmt.Sprintf("longest attempt timeout %s must be below the execution budget %s", longest, budget),
		}
	}
	if c.Retry.FallbackTimeout <= 0 || c.Retry.FallbackTimeout >= budget {
		return &analysis.ConfigurationError{
			Key:    "ANALYSIS_FALLBACK_TIMEOUT_SECONDS",
			Reason: fmt.Sprintf("fallback timeout %s must be positive and below the execution budget %s", c.Retry.FallbackTimeout, budget),
		}
	}
	if c.PersistTimeout <= 0 || c.PersistTimeout >= budget {
		return &analysis.ConfigurationError{Key: "PERSIST_TIMEOUT_SECONDS", Reason: "must be positive and below the execution budget"}
	}
	if c.QuestionBank == nil {
		return &analysis.ConfigurationError{Key: "QUESTION_BANK_PATH", Reason: "question bank not loaded"}
	}
	return nil
}

// RequireAPIKey reports the ConfigurationError raised per request when the
// completion API key is absent.
func (c Config) RequireAPIKey() error {
	if c.OpenAI.APIKey == "" {
		return &analysis.ConfigurationError{Key: "OPENAI_API_KEY", Reason: "not set"}
	}
	return nil
}

func clampRatio(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

func postgresDSNFromParts() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		envutil.String("POSTGRES_USER", "postgres"),
		envutil.String("POSTGRES_PASSWORD", ""),
		envutil.String("POSTGRES_HOST", "localhost"),
		envutil.String("POSTGRES_PORT", "5432"),
		envutil.String("POSTGRES_NAME", "persona"),
	)
}
