package analysis

import (
	"sort"
	"strings"

	"github.com/yungbote/persona-backend/internal/analysis/schema"
)

const (
	VariantDeep        = "analyze-responses-deep"
	VariantDeepInsight = "deep-insight-analysis"
	VariantConcise     = "analyze-concise-responses"
	VariantBigMe       = "big-me-analysis"
)

// Variant parameterizes the single pipeline. The four endpoints differ only
// in models, token budgets, prompt voice and list minimums.
type Variant struct {
	Name  string
	Voice string

	Model         string
	FallbackModel string

	MaxTokens         int
	FallbackMaxTokens int
	Temperature       float64
	TopP              float64
	FrequencyPenalty  float64

	// PromptBudget caps the user prompt in characters; FallbackPromptBudget
	// caps the shortened prompt sent to the fallback model.
	PromptBudget         int
	FallbackPromptBudget int

	Weighted        bool
	IncludeCoverage bool

	Contract schema.Contract
}

type Registry struct {
	variants map[string]Variant
	aliases  map[string]string
}

// Lookup accepts the endpoint name or its short alias ("deep", "concise", ...).
func (r Registry) Lookup(name string) (Variant, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	v, ok := r.variants[name]
	return v, ok
}

func (r Registry) Names() []string {
	out := make([]string, 0, len(r.variants))
	for name := range r.variants {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DefaultVariants builds the registry for the configured primary and
// fallback models.
func DefaultVariants(model, fallbackModel string) Registry {
	base := schema.Base()
	variants := []Variant{
		{
			Name:                 VariantDeep,
			Voice:                "You are an expert personality psychologist writing a thorough, balanced, evidence-based profile.",
			MaxTokens:            4000,
			FallbackMaxTokens:    2500,
			Temperature:          0.7,
			TopP:                 0.9,
			FrequencyPenalty:     0.3,
			PromptBudget:         8000,
			FallbackPromptBudget: 6000,
			IncludeCoverage:      true,
			Contract:             base.WithMinimums(VariantDeep, nil),
		},
		{
			Name:                 VariantDeepInsight,
			Voice:                "You are a clinical-grade personality analyst. Go beyond surface traits: name tensions, contradictions and hidden drivers.",
			MaxTokens:            4500,
			FallbackMaxTokens:    2500,
			Temperature:          0.6,
			TopP:                 0.9,
			FrequencyPenalty:     0.4,
			PromptBudget:         8000,
			FallbackPromptBudget: 6000,
			IncludeCoverage:      true,
			Contract: base.WithMinimums(VariantDeepInsight, map[string]int{
				"traits":                          8,
				"intelligence.domains":            6,
				"careerInsights.careerPathways":   8,
				"growthPotential.recommendations": 8,
			}),
		},
		{
			Name:                 VariantConcise,
			Voice:                "You are a personality analyst. Weigh each answer by the weight shown next to it; higher weights carry more evidence.",
			MaxTokens:            3000,
			FallbackMaxTokens:    2000,
			Temperature:          0.5,
			TopP:                 0.9,
			FrequencyPenalty:     0.2,
			PromptBudget:         6000,
			FallbackPromptBudget: 4000,
			Weighted:             true,
			IncludeCoverage:      true,
			Contract: base.WithMinimums(VariantConcise, map[string]int{
				"careerInsights.careerPathways":   3,
				"growthPotential.recommendations": 3,
			}),
		},
		{
			Name:                 VariantBigMe,
			Voice:                "You are writing the long-form 'Big Me' report: expansive, concrete and practical, with many specific examples.",
			MaxTokens:            8000,
			FallbackMaxTokens:    4000,
			Temperature:          0.7,
			TopP:                 0.95,
			FrequencyPenalty:     0.3,
			PromptBudget:         8000,
			FallbackPromptBudget: 6000,
			IncludeCoverage:      true,
			Contract: base.WithMinimums(VariantBigMe, map[string]int{
				"traits":                             12,
				"intelligence.domains":               8,
				"careerInsights.careerPathways":      22,
				"careerInsights.naturalStrengths":    6,
				"growthPotential.recommendations":    10,
				"growthPotential.actionItems":        10,
				"motivationalProfile.primaryDrivers": 5,
			}),
		},
	}

	r := Registry{
		variants: map[string]Variant{},
		aliases: map[string]string{
			"deep":         VariantDeep,
			"deep-insight": VariantDeepInsight,
			"concise":      VariantConcise,
			"big-me":       VariantBigMe,
		},
	}
	for _, v := range variants {
		v.Model = model
		v.FallbackModel = fallbackModel
		r.variants[v.Name] = v
	}
	return r
}
