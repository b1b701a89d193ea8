package prompt

import (
	"fmt"
	"strings"

	"github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/analysis/schema"
)

// SystemPrompt renders the instruction for v. It depends only on the variant,
// never on user input.
func SystemPrompt(v analysis.Variant) string {
	var b strings.Builder
	b.WriteString(v.Voice)
	b.WriteString("\n\n")
	b.WriteString("Return ONLY one JSON object. No markdown, no code fences, no commentary.\n")
	b.WriteString("The object must contain exactly these fields:\n")
	writeFields(&b, v.Contract.Fields, 0)
	b.WriteString("\nRules:\n")
	b.WriteString("- Every string is non-empty and specific to the responses.\n")
	b.WriteString("- Every list has at least the stated number of items.\n")
	b.WriteString("- Scores are plain numbers inside the stated range, never strings.\n")
	b.WriteString("- Do not include an id or createdAt field.\n")
	if v.Weighted {
		b.WriteString("- Responses with higher weight carry more evidence than responses with lower weight.\n")
	}
	if v.IncludeCoverage {
		b.WriteString("- Use the category coverage table to judge how much evidence each area has; be cautious where coverage is low.\n")
	}
	return b.String()
}

// CompactSystemPrompt is the shortened instruction sent to the fallback
// model. It keeps the field list and minimums but drops hints and voice detail.
func CompactSystemPrompt(v analysis.Variant) string {
	var b strings.Builder
	b.WriteString("You are a personality analyst. Return ONLY one JSON object with these fields ")
	b.WriteString("(n+ means at least n items, scores are numbers):\n")
	for _, f := range v.Contract.Fields {
		b.WriteString(compactField(f))
		b.WriteString("\n")
	}
	return b.String()
}

func writeFields(b *strings.Builder, fields []schema.Field, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, f := range fields {
		fmt.Fprintf(b, "%s- %q: %s", indent, f.Key, describe(f))
		if f.Hint != "" && f.Kind != schema.Score {
			fmt.Fprintf(b, " (%s)", f.Hint)
		}
		b.WriteString("\n")
		switch f.Kind {
		case schema.Section, schema.ObjectList:
			writeFields(b, f.Fields, depth+1)
		}
	}
}

func describe(f schema.Field) string {
	switch f.Kind {
	case schema.StringList:
		return fmt.Sprintf("array of at least %d strings", f.Min)
	case schema.ObjectList:
		return fmt.Sprintf("array of at least %d objects, each with", f.Min)
	case schema.Section:
		return "object with"
	case schema.Score:
		return fmt.Sprintf("number from 0 to %g", f.Max)
	default:
		return "string"
	}
}

func compactField(f schema.Field) string {
	switch f.Kind {
	case schema.StringList:
		return fmt.Sprintf("%s[%d+]", f.Key, f.Min)
	case schema.Score:
		return fmt.Sprintf("%s 0-%g", f.Key, f.Max)
	case schema.Section, schema.ObjectList:
		parts := make([]string, 0, len(f.Fields))
		for _, sub := range f.Fields {
			parts = append(parts, compactField(sub))
		}
		if f.Kind == schema.ObjectList {
			return fmt.Sprintf("%s[%d+]{%s}", f.Key, f.Min, strings.Join(parts, ", "))
		}
		return fmt.Sprintf("%s{%s}", f.Key, strings.Join(parts, ", "))
	default:
		return f.Key
	}
}
