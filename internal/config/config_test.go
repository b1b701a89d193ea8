package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANALYSIS_MAX_RETRIES", "")
	t.Setenv("PLATFORM_EXECUTION_CEILING_SECONDS", "")

	cfg, err := Load(testLogger(t))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 120*time.Second, cfg.ExecutionBudget())
	assert.NotNil(t, cfg.QuestionBank)
	assert.Equal(t, 40, cfg.QuestionBank.Size())

	var ce *analysis.ConfigurationError
	require.True(t, errors.As(cfg.RequireAPIKey(), &ce))
	assert.Equal(t, "OPENAI_API_KEY", ce.Key)
}

func TestValidateRejectsTimeoutsAboveBudget(t *testing.T) {
	qb, err := LoadQuestionBank("")
	require.NoError(t, err)

	base := Config{
		ExecutionCeiling: 100 * time.Second,
		PersistTimeout:   5 * time.Second,
		QuestionBank:     qb,
		Retry: RetryConfig{
			MaxRetries:      2,
			AttemptTimeout:  20 * time.Second,
			FallbackTimeout: 20 * time.Second,
		},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"attempt timeout grows past budget", func(c *Config) { c.Retry.AttemptTimeout = 30 * time.Second }, "ANALYSIS_ATTEMPT_TIMEOUT_SECONDS"},
		{"fallback timeout equals budget", func(c *Config) { c.Retry.FallbackTimeout = 80 * time.Second }, "ANALYSIS_FALLBACK_TIMEOUT_SECONDS"},
		{"zero ceiling", func(c *Config) { c.ExecutionCeiling = 0 }, "PLATFORM_EXECUTION_CEILING_SECONDS"},
		{"no question bank", func(c *Config) { c.QuestionBank = nil }, "QUESTION_BANK_PATH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			var ce *analysis.ConfigurationError
			require.True(t, errors.As(c.Validate(), &ce))
			assert.Equal(t, tt.key, ce.Key)
		})
	}
}

func TestEmbeddedQuestionBank(t *testing.T) {
	qb, err := LoadQuestionBank("")
	require.NoError(t, err)

	assert.Equal(t, "cognitive", qb.CategoryOf("cog-3"))
	assert.Equal(t, DefaultCategory, qb.CategoryOf("unknown-q"))
	assert.Equal(t, 1.5, qb.BaseWeight("cog-3"))
	assert.Equal(t, 1.0, qb.BaseWeight("unknown-q"))
	assert.Equal(t, "emotional", qb.PairOf("cognitive"))
	assert.Equal(t, "", qb.PairOf("values"))
	assert.Equal(t, 8, qb.Expected("social"))
	assert.Equal(t, 1, qb.Expected("general"))
	assert.Len(t, qb.InsightPartners("emo-1"), 1)
}

func TestQuestionBankExpectedSumMustMatch(t *testing.T) {
	raw := []byte(`
categories:
  - {name: a, expected: 2}
  - {name: b, expected: 2}
questions:
  - {id: a1, category: a, weight: 1}
  - {id: a2, category: a, weight: 1}
  - {id: b1, category: b, weight: 1}
`)
	_, err := ParseQuestionBank(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 4")
}

func TestQuestionBankRejectsUnknownReferences(t *testing.T) {
	tests := map[string]string{
		"unknown pair": `
categories:
  - {name: a, expected: 1, pair: z}
questions:
  - {id: a1, category: a, weight: 1}
`,
		"unknown question category": `
categories:
  - {name: a, expected: 1}
questions:
  - {id: a1, category: z, weight: 1}
`,
		"insight factor out of range": `
categories:
  - {name: a, expected: 2}
questions:
  - {id: a1, category: a, weight: 1}
  - {id: a2, category: a, weight: 1}
insightPairs:
  - {a: a1, b: a2, factor: 2}
`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQuestionBank([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestLoadTracingSettings(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "x-api-key=abc, broken, =nokey,tenant=persona")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "yes")
	t.Setenv("OTEL_SAMPLER_RATIO", "3")

	cfg, err := Load(testLogger(t))
	require.NoError(t, err)

	assert.True(t, cfg.OTel.Enabled)
	assert.Equal(t, "collector:4318", cfg.OTel.Endpoint)
	assert.Equal(t, map[string]string{"x-api-key": "abc", "tenant": "persona"}, cfg.OTel.Headers)
	assert.True(t, cfg.OTel.Insecure)
	assert.Equal(t, 1.0, cfg.OTel.SamplerRatio)
}
