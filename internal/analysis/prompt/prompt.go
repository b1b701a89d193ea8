// Package prompt combines the per-variant system instruction with the
// formatted responses and enforces the prompt character budget.
package prompt

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/analysis/format"
	"github.com/yungbote/persona-backend/internal/config"
	"github.com/yungbote/persona-backend/internal/domain"
	"github.com/yungbote/persona-backend/internal/inference/engine"
)

const (
	TruncationNotice = "[Some responses were omitted to fit the analysis window. Base the analysis on the responses above.]"

	// DefaultMargin is the headroom kept below the budget before the notice
	// is appended.
	DefaultMargin = 200
)

type Prompt struct {
	System       string
	User         string
	Truncated    bool
	DroppedLines int
}

func (p Prompt) Messages() []engine.Message {
	return []engine.Message{
		{Role: engine.RoleSystem, Content: p.System},
		{Role: engine.RoleUser, Content: p.User},
	}
}

type CategoryCoverage struct {
	Category    string
	Description string
	Count       int
	Expected    int
	Percentage  int
	Quality     float64
}

type Builder struct {
	bank      *config.QuestionBank
	formatter *format.Formatter
	margin    int
}

func NewBuilder(bank *config.QuestionBank, formatter *format.Formatter) *Builder {
	return &Builder{bank: bank, formatter: formatter, margin: DefaultMargin}
}

// Build produces the primary prompt for v.
func (b *Builder) Build(v analysis.Variant, responses []domain.RawResponse) Prompt {
	formatted := b.formatter.Format(responses, v.Weighted)
	prefix := ""
	if v.IncludeCoverage {
		prefix = RenderCoverage(b.Coverage(responses))
	}
	user, dropped := Truncate(prefix, formatted.Lines(), v.PromptBudget, b.margin)
	return Prompt{
		System:       SystemPrompt(v),
		User:         user,
		Truncated:    dropped > 0,
		DroppedLines: dropped,
	}
}

// ForFallback produces the shortened prompt for the fallback model: compact
// instruction, no coverage table, fallback budget.
func (b *Builder) ForFallback(v analysis.Variant, responses []domain.RawResponse) Prompt {
	formatted := b.formatter.Format(responses, v.Weighted)
	user, dropped := Truncate("", formatted.Lines(), v.FallbackPromptBudget, b.margin)
	return Prompt{
		System:       CompactSystemPrompt(v),
		User:         user,
		Truncated:    dropped > 0,
		DroppedLines: dropped,
	}
}

// Coverage reports per-category answer counts against the bank expectations.
// Categories from the bank come first in bank order, then any others sorted.
func (b *Builder) Coverage(responses []domain.RawResponse) []CategoryCoverage {
	counts := map[string]int{}
	quality := map[string]float64{}
	for _, r := range responses {
		cat := b.formatter.CategoryOf(r)
		counts[cat]++
		quality[cat] += responseQuality(r)
	}

	var order []string
	seen := map[string]bool{}
	for _, c := range b.bank.Categories {
		if counts[c.Name] > 0 {
			order = append(order, c.Name)
			seen[c.Name] = true
		}
	}
	var extra []string
	for cat := range counts {
		if !seen[cat] {
			extra = append(extra, cat)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	out := make([]CategoryCoverage, 0, len(order))
	for _, cat := range order {
		n := counts[cat]
		expected := b.bank.Expected(cat)
		pct := int(math.Round(float64(n) / float64(expected) * 100))
		if pct > 100 {
			pct = 100
		}
		out = append(out, CategoryCoverage{
			Category:    cat,
			Description: b.bank.Description(cat),
			Count:       n,
			Expected:    expected,
			Percentage:  pct,
			Quality:     math.Round(quality[cat]/float64(n)*100) / 100,
		})
	}
	return out
}

func responseQuality(r domain.RawResponse) float64 {
	custom := utf8.RuneCountInString(strings.TrimSpace(r.CustomResponse))
	switch {
	case custom > 200:
		return 1.0
	case custom > 100:
		return 0.9
	case custom > 0:
		return 0.7
	default:
		return 0.5
	}
}

func RenderCoverage(cov []CategoryCoverage) string {
	if len(cov) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Category coverage:\n")
	for _, c := range cov {
		fmt.Fprintf(&b, "- %s (%s): %d/%d answered (%d%%), response quality %.2f\n",
			c.Category, c.Description, c.Count, c.Expected, c.Percentage, c.Quality)
	}
	b.WriteString("\nResponses:\n")
	return b.String()
}

// Truncate joins prefix and lines. When the result exceeds budget characters
// it drops whole lines from the end until the text fits budget minus margin,
// then appends TruncationNotice. The margin is raised to fit the notice so the
// output never exceeds budget. It returns the number of dropped lines.
func Truncate(prefix string, lines []string, budget, margin int) (string, int) {
	full := prefix + strings.Join(lines, "\n")
	if budget <= 0 || utf8.RuneCountInString(full) <= budget {
		return full, 0
	}

	noticeLen := utf8.RuneCountInString(TruncationNotice) + 1
	if margin < noticeLen {
		margin = noticeLen
	}
	limit := budget - margin

	size := utf8.RuneCountInString(prefix)
	kept := 0
	for i, l := range lines {
		n := utf8.RuneCountInString(l)
		if i > 0 {
			n++
		}
		if size+n > limit {
			break
		}
		size += n
		kept++
	}

	var b strings.Builder
	if size <= limit && limit >= 0 {
		b.WriteString(prefix)
		b.WriteString(strings.Join(lines[:kept], "\n"))
	} else {
		// The prefix alone does not fit; send responses only.
		kept = 0
		size = 0
		for i, l := range lines {
			n := utf8.RuneCountInString(l)
			if i > 0 {
				n++
			}
			if size+n > limit {
				break
			}
			size += n
			kept++
		}
		b.WriteString(strings.Join(lines[:kept], "\n"))
	}
	if noticeLen <= budget {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(TruncationNotice)
	}
	return b.String(), len(lines) - kept
}
