// Package schema declares the required shape of a personality analysis.
// The prompt builder renders it into the system instruction and the
// completer enforces it on whatever the model returned.
package schema

import "strings"

type Kind int

const (
	String Kind = iota
	StringList
	Score
	Section
	ObjectList
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case StringList:
		return "string[]"
	case Score:
		return "number"
	case Section:
		return "object"
	case ObjectList:
		return "object[]"
	default:
		return "unknown"
	}
}

type Field struct {
	Key  string
	Kind Kind
	// Min is the minimum item count for StringList and ObjectList.
	Min int
	// Max is the upper bound of a Score; the lower bound is always 0.
	Max float64
	// Fields is the shape of a Section or of each ObjectList item.
	Fields []Field
	Hint   string
}

type Contract struct {
	Name   string
	Fields []Field
}

// Walk visits every field depth-first. Object list items are addressed as
// "traits[].strengths".
func (c Contract) Walk(fn func(path string, f Field)) {
	walk("", c.Fields, fn)
}

func walk(prefix string, fields []Field, fn func(path string, f Field)) {
	for _, f := range fields {
		path := join(prefix, f.Key)
		fn(path, f)
		switch f.Kind {
		case Section:
			walk(path, f.Fields, fn)
		case ObjectList:
			walk(path+"[]", f.Fields, fn)
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// WithMinimums returns a deep copy with list minimums replaced for the given
// paths. Unknown paths are ignored.
func (c Contract) WithMinimums(name string, mins map[string]int) Contract {
	out := Contract{Name: name, Fields: cloneFields("", c.Fields, mins)}
	return out
}

func cloneFields(prefix string, fields []Field, mins map[string]int) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		path := join(prefix, f.Key)
		if m, ok := mins[path]; ok && (f.Kind == StringList || f.Kind == ObjectList) {
			f.Min = m
		}
		switch f.Kind {
		case Section:
			f.Fields = cloneFields(path, f.Fields, mins)
		case ObjectList:
			f.Fields = cloneFields(path+"[]", f.Fields, mins)
		}
		out[i] = f
	}
	return out
}

// Lookup finds the field at path, e.g. "coreTraits.primary".
func (c Contract) Lookup(path string) (Field, bool) {
	var found Field
	ok := false
	c.Walk(func(p string, f Field) {
		if !ok && p == path {
			found, ok = f, true
		}
	})
	return found, ok
}

// Required lists the paths of every required list, with its minimum.
func (c Contract) Required() map[string]int {
	out := map[string]int{}
	c.Walk(func(p string, f Field) {
		if f.Kind == StringList || f.Kind == ObjectList {
			out[p] = f.Min
		}
	})
	return out
}

// Leaf returns the last path segment without list markers.
func Leaf(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		path = path[i+1:]
	}
	return strings.TrimSuffix(path, "[]")
}

func str(key, hint string) Field { return Field{Key: key, Kind: String, Hint: hint} }

func list(key string, min int, hint string) Field {
	return Field{Key: key, Kind: StringList, Min: min, Hint: hint}
}

func score(key string, max float64, hint string) Field {
	return Field{Key: key, Kind: Score, Max: max, Hint: hint}
}

func section(key string, fields ...Field) Field {
	return Field{Key: key, Kind: Section, Fields: fields}
}

func objects(key string, min int, fields ...Field) Field {
	return Field{Key: key, Kind: ObjectList, Min: min, Fields: fields}
}

// Base is the deep-analysis contract every variant derives from.
func Base() Contract {
	return Contract{
		Name: "personality_analysis",
		Fields: []Field{
			str("overview", "3-5 sentence synthesis of the whole profile"),
			objects("traits", 5,
				str("trait", "trait name"),
				score("score", 10, "0-10"),
				str("description", "how the trait shows up in the answers"),
				list("strengths", 3, ""),
				list("challenges", 3, ""),
				list("growthSuggestions", 3, ""),
			),
			section("intelligence",
				str("type", "dominant intelligence type"),
				score("score", 100, "0-100"),
				str("description", ""),
				list("strengths", 3, ""),
				list("areasOfDevelopment", 3, ""),
				objects("domains", 4,
					str("name", ""),
					score("score", 100, "0-100"),
					str("description", ""),
				),
			),
			score("intelligenceScore", 100, "0-100"),
			score("emotionalIntelligenceScore", 100, "0-100"),
			section("cognitiveStyle",
				str("primary", ""),
				str("secondary", ""),
				str("description", ""),
				list("strengths", 3, ""),
				list("limitations", 3, ""),
				str("learningStyle", ""),
				str("decisionMakingProcess", ""),
			),
			section("emotionalArchitecture",
				str("emotionalAwareness", ""),
				str("regulationStyle", ""),
				str("empathicCapacity", ""),
				list("emotionalTriggers", 3, ""),
				list("copingMechanisms", 3, ""),
				list("emotionalStrengths", 3, ""),
				list("emotionalChallenges", 3, ""),
			),
			section("interpersonalDynamics",
				str("attachmentStyle", ""),
				str("communicationPattern", ""),
				str("conflictResolution", ""),
				list("relationshipStrengths", 3, ""),
				list("relationshipChallenges", 3, ""),
				list("socialNeeds", 3, ""),
			),
			section("coreTraits",
				str("primary", "single defining trait"),
				str("secondary", ""),
				list("strengths", 3, ""),
				list("challenges", 3, ""),
				score("adaptabilityScore", 100, "0-100"),
				score("resilienceScore", 100, "0-100"),
			),
			section("careerInsights",
				list("naturalStrengths", 3, ""),
				list("workplaceNeeds", 3, ""),
				str("leadershipStyle", ""),
				str("idealWorkEnvironment", ""),
				list("careerPathways", 5, ""),
			),
			section("motivationalProfile",
				list("primaryDrivers", 3, ""),
				list("secondaryDrivers", 3, ""),
				list("inhibitors", 3, ""),
				list("values", 3, ""),
				str("aspirations", ""),
				str("fearPatterns", ""),
			),
			section("growthPotential",
				list("developmentAreas", 3, ""),
				list("recommendations", 5, ""),
				list("actionItems", 3, ""),
				str("longTermTrajectory", ""),
				list("potentialBlockers", 3, ""),
			),
		},
	}
}
