// Package format turns submitted quiz responses into the annotated text block
// sent to the model. Everything here is a pure function of its inputs.
package format

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yungbote/persona-backend/internal/config"
	"github.com/yungbote/persona-backend/internal/domain"
)

const (
	NoAnswer = "No answer provided"

	outlierFactor  = 1.3
	contrastFactor = 1.2
)

// Entry is one formatted response.
type Entry struct {
	QuestionID string
	Category   string
	Answer     string
	Custom     bool
	Empty      bool
	Weight     float64
	Line       string
}

type Formatted struct {
	Entries []Entry
}

// Lines returns one line per response, in input order.
func (f Formatted) Lines() []string {
	out := make([]string, len(f.Entries))
	for i, e := range f.Entries {
		out[i] = e.Line
	}
	return out
}

func (f Formatted) Text() string {
	return strings.Join(f.Lines(), "\n")
}

// Weight returns the computed weight of questionID, 0 if absent.
func (f Formatted) Weight(questionID string) float64 {
	for _, e := range f.Entries {
		if e.QuestionID == questionID {
			return e.Weight
		}
	}
	return 0
}

type Formatter struct {
	bank *config.QuestionBank
}

func New(bank *config.QuestionBank) *Formatter {
	return &Formatter{bank: bank}
}

// FromMap converts the lightweight id->answer form. Entries are ordered by
// question id and categorized from the question bank.
func (f *Formatter) FromMap(m map[string]string) []domain.RawResponse {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.RawResponse, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.RawResponse{
			QuestionID:     id,
			CustomResponse: m[id],
			Category:       f.bank.CategoryOf(id),
		})
	}
	return out
}

// CategoryOf prefers the category carried on the response.
func (f *Formatter) CategoryOf(r domain.RawResponse) string {
	if c := strings.TrimSpace(r.Category); c != "" {
		return strings.ToLower(c)
	}
	return f.bank.CategoryOf(r.QuestionID)
}

// Format renders responses. When weighted is set every line carries its
// computed weight.
func (f *Formatter) Format(responses []domain.RawResponse, weighted bool) Formatted {
	byCategory := map[string][]string{}
	answered := map[string]bool{}
	for _, r := range responses {
		cat := f.CategoryOf(r)
		byCategory[cat] = append(byCategory[cat], normalize(r.Answer()))
		if !r.IsEmpty() {
			answered[r.QuestionID] = true
		}
	}

	out := Formatted{Entries: make([]Entry, 0, len(responses))}
	for _, r := range responses {
		cat := f.CategoryOf(r)
		e := Entry{
			QuestionID: r.QuestionID,
			Category:   cat,
			Answer:     r.Answer(),
			Custom:     strings.TrimSpace(r.CustomResponse) != "",
			Empty:      r.IsEmpty(),
		}
		if e.Empty {
			e.Answer = NoAnswer
		}
		e.Weight = f.weight(r.QuestionID, cat, normalize(r.Answer()), byCategory, answered)
		e.Line = f.line(e, weighted)
		out.Entries = append(out.Entries, e)
	}
	return out
}

func (f *Formatter) weight(questionID, category, answer string, byCategory map[string][]string, answered map[string]bool) float64 {
	w := f.bank.BaseWeight(questionID)

	// The response itself is one of the matches, so a unique answer has 1.
	matches := 0
	for _, a := range byCategory[category] {
		if a == answer {
			matches++
		}
	}
	if matches < 2 {
		w *= outlierFactor
	}

	if pair := f.bank.PairOf(category); pair != "" {
		paired := byCategory[pair]
		if len(paired) > 0 {
			differ := 0
			for _, a := range paired {
				if a != answer {
					differ++
				}
			}
			if 2*differ >= len(paired) {
				w *= contrastFactor
			}
		}
	}

	insight := 1.0
	for _, p := range f.bank.InsightPartners(questionID) {
		if answered[p.A] && answered[p.B] && p.Factor > insight {
			insight = p.Factor
		}
	}
	w *= insight

	return math.Round(w*100) / 100
}

func (f *Formatter) line(e Entry, weighted bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s: %s]", e.QuestionID, e.Category, f.bank.Description(e.Category))
	if weighted {
		fmt.Fprintf(&b, " (weight %.2f)", e.Weight)
	}
	b.WriteString(": ")
	b.WriteString(oneLine(e.Answer))
	return b.String()
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// oneLine folds embedded line breaks so a response never spans lines.
func oneLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.Join(strings.Fields(s), " ")
}
