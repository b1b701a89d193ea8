package complete

import (
	"fmt"
	"strings"

	"github.com/yungbote/persona-backend/internal/analysis/schema"
)

// Flavor selects which placeholder pool a list field draws from.
type Flavor string

const (
	FlavorStrength  Flavor = "strength"
	FlavorChallenge Flavor = "challenge"
	FlavorGrowth    Flavor = "growth"
	FlavorGeneric   Flavor = "generic"
)

// FlavorOf classifies a list field by its name.
func FlavorOf(path string) Flavor {
	leaf := strings.ToLower(schema.Leaf(path))
	switch {
	case strings.Contains(leaf, "strength"):
		return FlavorStrength
	case strings.Contains(leaf, "challenge"), strings.Contains(leaf, "inhibit"),
		strings.Contains(leaf, "limitation"), strings.Contains(leaf, "blocker"):
		return FlavorChallenge
	case strings.Contains(leaf, "growth"), strings.Contains(leaf, "recommend"),
		strings.Contains(leaf, "action"), strings.Contains(leaf, "development"):
		return FlavorGrowth
	default:
		return FlavorGeneric
	}
}

// ContentProvider supplies every piece of synthesized content. Tests swap in
// small fixtures; production uses DefaultContent.
type ContentProvider interface {
	// Placeholders returns the candidate items for a list field.
	Placeholders(path string, flavor Flavor) []string
	// DefaultString is the value for a missing or blank string field.
	DefaultString(path string) string
	// DefaultObject returns the index-th default item of an object list, or
	// nil when the provider has none.
	DefaultObject(path string, index int) map[string]any
	// StaticFallback returns the tree used when generation failed entirely.
	// Its scores must all be set so the result is deterministic.
	StaticFallback() map[string]any
}

type DefaultContent struct{}

func NewDefaultContent() *DefaultContent { return &DefaultContent{} }

var placeholderPools = map[Flavor][]string{
	FlavorStrength: {
		"Thoughtful approach to new situations",
		"Consistent follow-through on commitments",
		"Ability to see multiple perspectives",
		"Steady composure under moderate pressure",
		"Genuine interest in understanding others",
		"Practical problem-solving instincts",
		"Willingness to reflect on experience",
		"Reliable judgment in familiar contexts",
	},
	FlavorChallenge: {
		"May overthink decisions with unclear outcomes",
		"Can hesitate to voice disagreement",
		"Tends to take on more than is sustainable",
		"May find ambiguity uncomfortable at first",
		"Can be self-critical after setbacks",
		"Sometimes delays action while gathering information",
		"May under-communicate needs to others",
		"Can lose momentum on long, unstructured tasks",
	},
	FlavorGrowth: {
		"Set one small, measurable goal each week",
		"Ask for specific feedback after key conversations",
		"Practice naming emotions as they arise",
		"Schedule regular time for reflection",
		"Try one unfamiliar approach to a routine problem",
		"Share unfinished ideas earlier with trusted people",
		"Build a habit of reviewing what went well",
		"Break larger ambitions into concrete next steps",
	},
	FlavorGeneric: {
		"Balances independent thought with openness to input",
		"Responds best to clear expectations and autonomy",
		"Values honesty and consistency in relationships",
		"Draws energy from meaningful, purposeful work",
		"Adapts approach based on context and people involved",
		"Seeks understanding before reaching conclusions",
		"Appreciates both structure and room to explore",
		"Motivated by growth and a sense of progress",
	},
}

var careerPathways = []string{
	"Research Analyst", "Product Manager", "User Experience Designer", "Counselor",
	"Project Coordinator", "Teacher or Trainer", "Data Analyst", "Consultant",
	"Healthcare Professional", "Writer or Editor", "Operations Manager", "Software Developer",
	"Human Resources Specialist", "Entrepreneur", "Policy Advisor", "Social Worker",
	"Marketing Strategist", "Financial Planner", "Architect", "Community Organizer",
	"Quality Assurance Specialist", "Mediator", "Instructional Designer", "Nonprofit Program Manager",
}

func (d *DefaultContent) Placeholders(path string, flavor Flavor) []string {
	if schema.Leaf(path) == "careerPathways" {
		return careerPathways
	}
	if pool, ok := placeholderPools[flavor]; ok {
		return pool
	}
	return placeholderPools[FlavorGeneric]
}

var defaultStrings = map[string]string{
	"overview":                                   "This profile reflects a balanced personality with a mix of analytical and interpersonal strengths. The responses suggest thoughtful engagement with both ideas and people.",
	"traits[].trait":                             "Balanced Temperament",
	"traits[].description":                       "Shows up as a steady, adaptable presence across situations.",
	"intelligence.type":                          "Integrative",
	"intelligence.description":                   "Combines logical reasoning with practical and interpersonal awareness.",
	"intelligence.domains[].name":                "General Reasoning",
	"intelligence.domains[].description":         "Applies reasoning flexibly across familiar and new problems.",
	"cognitiveStyle.primary":                     "Analytical",
	"cognitiveStyle.secondary":                   "Reflective",
	"cognitiveStyle.description":                 "Prefers to understand a problem fully before acting, then moves deliberately.",
	"cognitiveStyle.learningStyle":               "Learns best through structured material combined with hands-on practice.",
	"cognitiveStyle.decisionMakingProcess":       "Weighs evidence and likely outcomes, then checks the decision against personal values.",
	"emotionalArchitecture.emotionalAwareness":   "Generally aware of own emotional state, especially after reflection.",
	"emotionalArchitecture.regulationStyle":      "Regulates emotions through reflection and taking perspective.",
	"emotionalArchitecture.empathicCapacity":     "Attentive to others' feelings and responsive when they are expressed.",
	"interpersonalDynamics.attachmentStyle":      "Generally secure, valuing both closeness and independence.",
	"interpersonalDynamics.communicationPattern": "Clear and considerate, adjusting tone to the audience.",
	"interpersonalDynamics.conflictResolution":   "Prefers calm discussion aimed at mutual understanding.",
	"coreTraits.primary":                         "Thoughtful Adaptor",
	"coreTraits.secondary":                       "Steady Collaborator",
	"careerInsights.leadershipStyle":             "Supportive and collaborative, leading through clarity and example.",
	"careerInsights.idealWorkEnvironment":        "A respectful environment with clear goals, autonomy and room to grow.",
	"motivationalProfile.aspirations":            "To build a meaningful life that balances achievement, relationships and personal growth.",
	"motivationalProfile.fearPatterns":           "May worry about falling short of personal standards or disappointing others.",
	"growthPotential.longTermTrajectory":         "Well positioned for steady growth by building on self-awareness and consistent effort.",
}

func (d *DefaultContent) DefaultString(path string) string {
	if s, ok := defaultStrings[path]; ok {
		return s
	}
	return "Further insight will emerge as more responses are analyzed."
}

var defaultTraits = []map[string]any{
	{"trait": "Openness", "score": 7.0, "description": "Curious about ideas and open to new experiences."},
	{"trait": "Conscientiousness", "score": 7.0, "description": "Organized, dependable and attentive to commitments."},
	{"trait": "Extraversion", "score": 5.5, "description": "Comfortable in social settings while valuing time alone."},
	{"trait": "Agreeableness", "score": 7.0, "description": "Cooperative and considerate toward others."},
	{"trait": "Emotional Stability", "score": 6.5, "description": "Generally steady under everyday pressure."},
	{"trait": "Curiosity", "score": 7.0, "description": "Enjoys learning how things work and why."},
	{"trait": "Resilience", "score": 6.5, "description": "Recovers from setbacks with time and reflection."},
	{"trait": "Empathy", "score": 7.0, "description": "Tunes in to how others feel."},
	{"trait": "Adaptability", "score": 6.5, "description": "Adjusts plans when circumstances change."},
	{"trait": "Self-Discipline", "score": 6.5, "description": "Able to sustain effort toward longer-term goals."},
	{"trait": "Creativity", "score": 6.5, "description": "Generates original approaches to problems."},
	{"trait": "Integrity", "score": 7.5, "description": "Acts in line with stated values."},
}

var defaultDomains = []map[string]any{
	{"name": "Logical-Mathematical", "score": 68.0, "description": "Reasoning with patterns, numbers and logic."},
	{"name": "Linguistic", "score": 66.0, "description": "Expressing and understanding ideas through language."},
	{"name": "Interpersonal", "score": 67.0, "description": "Understanding and working with other people."},
	{"name": "Intrapersonal", "score": 69.0, "description": "Understanding one's own motives and feelings."},
	{"name": "Spatial", "score": 62.0, "description": "Visualizing and reasoning about space and form."},
	{"name": "Naturalistic", "score": 60.0, "description": "Recognizing patterns in the natural world."},
	{"name": "Bodily-Kinesthetic", "score": 58.0, "description": "Using the body skillfully to solve problems."},
	{"name": "Musical", "score": 57.0, "description": "Sensitivity to rhythm, pitch and tone."},
}

func (d *DefaultContent) DefaultObject(path string, index int) map[string]any {
	var pool []map[string]any
	var nameKey string
	switch path {
	case "traits":
		pool, nameKey = defaultTraits, "trait"
	case "intelligence.domains":
		pool, nameKey = defaultDomains, "name"
	default:
		return nil
	}
	src := pool[index%len(pool)]
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	if round := index / len(pool); round > 0 {
		out[nameKey] = fmt.Sprintf("%s (%d)", src[nameKey], round+1)
	}
	return out
}

const (
	// FallbackPrimary is coreTraits.primary of the static fallback analysis.
	FallbackPrimary = "Balanced Analytical Thinker"
	// FallbackOverview opens the overview of the static fallback analysis.
	FallbackOverview = "We were unable to generate a detailed analysis from your responses at this time."
)

func (d *DefaultContent) StaticFallback() map[string]any {
	traits := make([]any, 0, 5)
	for i := 0; i < 5; i++ {
		traits = append(traits, d.DefaultObject("traits", i))
	}
	domains := make([]any, 0, 4)
	for i := 0; i < 4; i++ {
		domains = append(domains, d.DefaultObject("intelligence.domains", i))
	}
	return map[string]any{
		"overview": FallbackOverview + " Based on general patterns, you show a balanced mix of analytical and interpersonal strengths. Retake the assessment or refresh later for a fuller report.",
		"traits":   traits,
		"intelligence": map[string]any{
			"type":    "Integrative",
			"score":   65.0,
			"domains": domains,
		},
		"intelligenceScore":          65.0,
		"emotionalIntelligenceScore": 65.0,
		"coreTraits": map[string]any{
			"primary":           FallbackPrimary,
			"secondary":         "Steady Collaborator",
			"adaptabilityScore": 65.0,
			"resilienceScore":   65.0,
		},
	}
}
