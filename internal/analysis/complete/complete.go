// Package complete is the single boundary between untyped model output and
// domain.PersonalityAnalysis. Whatever the model returned, the completed tree
// satisfies the variant's schema contract.
package complete

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/persona-backend/internal/analysis/schema"
	"github.com/yungbote/persona-backend/internal/domain"
	"github.com/yungbote/persona-backend/internal/platform/jsonx"
)

// Report counts what a completion pass changed. A pass over an already
// complete tree reports zero everywhere.
type Report struct {
	CreatedSections   int
	FilledStrings     int
	ExtendedLists     int
	AddedItems        int
	CoercedItems      int
	DroppedItems      int
	RegeneratedScores int
}

func (r Report) Changed() bool { return r != Report{} }

type Completer struct {
	content ContentProvider
	scores  *ScoreGenerator
	now     func() time.Time
	newID   func() string
}

type Option func(*Completer)

// WithUniform injects the uniform source used for generated scores.
func WithUniform(fn func() float64) Option {
	return func(c *Completer) { c.scores = NewScoreGenerator(fn) }
}

func WithClock(now func() time.Time) Option {
	return func(c *Completer) { c.now = now }
}

func WithIDFunc(fn func() string) Option {
	return func(c *Completer) { c.newID = fn }
}

func New(content ContentProvider, opts ...Option) *Completer {
	if content == nil {
		content = NewDefaultContent()
	}
	c := &Completer{
		content: content,
		scores:  NewScoreGenerator(nil),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CompleteTree returns a copy of tree that satisfies contract. The input is
// not modified. id and createdAt are always replaced.
func (c *Completer) CompleteTree(tree map[string]any, contract schema.Contract) (map[string]any, Report) {
	var rep Report
	out, _ := cloneValue(tree).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	c.fields("", out, contract.Fields, &rep)
	out["id"] = c.newID()
	out["createdAt"] = c.now().UTC().Format(time.RFC3339Nano)
	return out, rep
}

// Complete completes tree and decodes it into the typed analysis. The
// completed tree is returned as well for persistence and logging.
func (c *Completer) Complete(tree map[string]any, contract schema.Contract) (*domain.PersonalityAnalysis, Report, error) {
	done, rep := c.CompleteTree(tree, contract)
	a, err := Decode(done)
	if err != nil {
		return nil, rep, err
	}
	return a, rep, nil
}

// Fallback builds the static fallback analysis for contract. No network call
// is involved and, apart from id and createdAt, the result is deterministic.
func (c *Completer) Fallback(contract schema.Contract) (*domain.PersonalityAnalysis, error) {
	a, _, err := c.Complete(c.content.StaticFallback(), contract)
	return a, err
}

func Decode(tree map[string]any) (*domain.PersonalityAnalysis, error) {
	b, err := jsonx.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("encode completed analysis: %w", err)
	}
	var a domain.PersonalityAnalysis
	if err := jsonx.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode completed analysis: %w", err)
	}
	return &a, nil
}

func (c *Completer) fields(prefix string, obj map[string]any, fields []schema.Field, rep *Report) {
	for _, f := range fields {
		path := f.Key
		if prefix != "" {
			path = prefix + "." + f.Key
		}
		switch f.Kind {
		case schema.String:
			c.str(path, obj, f, rep)
		case schema.Score:
			c.score(path, obj, f, rep)
		case schema.StringList:
			c.stringList(path, obj, f, rep)
		case schema.Section:
			sec, ok := obj[f.Key].(map[string]any)
			if !ok {
				sec = map[string]any{}
				obj[f.Key] = sec
				rep.CreatedSections++
			}
			c.fields(path, sec, f.Fields, rep)
		case schema.ObjectList:
			c.objectList(path, obj, f, rep)
		}
	}
}

func (c *Completer) str(path string, obj map[string]any, f schema.Field, rep *Report) {
	switch v := obj[f.Key].(type) {
	case string:
		if strings.TrimSpace(v) != "" {
			return
		}
	case []any:
		// Models sometimes answer a prose field with a list.
		parts := make([]string, 0, len(v))
		for _, it := range v {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		if len(parts) > 0 {
			obj[f.Key] = strings.Join(parts, "; ")
			rep.FilledStrings++
			return
		}
	case float64:
		obj[f.Key] = strconv.FormatFloat(v, 'f', -1, 64)
		rep.FilledStrings++
		return
	}
	obj[f.Key] = c.content.DefaultString(path)
	rep.FilledStrings++
}

func (c *Completer) score(path string, obj map[string]any, f schema.Field, rep *Report) {
	v, ok := toFloat(obj[f.Key])
	if ok && !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= f.Max {
		if _, isFloat := obj[f.Key].(float64); !isFloat {
			obj[f.Key] = v
		}
		return
	}
	obj[f.Key] = c.scores.Score(path, f.Max)
	rep.RegeneratedScores++
}

func (c *Completer) stringList(path string, obj map[string]any, f schema.Field, rep *Report) {
	raw := obj[f.Key]
	items, changed := stringItems(raw)
	if len(items) < f.Min {
		items = extend(items, f.Min, c.content.Placeholders(path, FlavorOf(path)))
		rep.ExtendedLists++
		changed = true
	}
	if !changed {
		return
	}
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	obj[f.Key] = out
}

// stringItems keeps the non-blank strings of v in order. changed reports
// whether anything had to be dropped or converted.
func stringItems(v any) ([]string, bool) {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		changed := false
		for _, it := range t {
			s, ok := it.(string)
			if !ok || strings.TrimSpace(s) == "" {
				changed = true
				continue
			}
			out = append(out, s)
		}
		return out, changed
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out, true
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, true
		}
		return []string{t}, true
	default:
		return nil, true
	}
}

// extend appends unused items from pool until items has want entries. A pool
// that runs dry is reused with a numeric suffix.
func extend(items []string, want int, pool []string) []string {
	have := make(map[string]bool, len(items))
	for _, s := range items {
		have[strings.ToLower(strings.TrimSpace(s))] = true
	}
	if len(pool) == 0 {
		pool = placeholderPools[FlavorGeneric]
	}
	for round := 1; len(items) < want; round++ {
		for _, p := range pool {
			if len(items) >= want {
				break
			}
			cand := p
			if round > 1 {
				cand = fmt.Sprintf("%s (%d)", p, round)
			}
			key := strings.ToLower(cand)
			if have[key] {
				continue
			}
			have[key] = true
			items = append(items, cand)
		}
	}
	return items
}

func (c *Completer) objectList(path string, obj map[string]any, f schema.Field, rep *Report) {
	nameKey := firstStringKey(f.Fields)
	raw, isList := obj[f.Key].([]any)
	if !isList && obj[f.Key] != nil {
		rep.DroppedItems++
	}

	items := make([]any, 0, len(raw))
	names := map[string]bool{}
	for _, it := range raw {
		m, ok := it.(map[string]any)
		if !ok {
			// A bare string becomes the item's name; anything else is unusable.
			s, isStr := it.(string)
			if !isStr || strings.TrimSpace(s) == "" || nameKey == "" {
				rep.DroppedItems++
				continue
			}
			m = map[string]any{nameKey: s}
			rep.CoercedItems++
		}
		c.fields(path+"[]", m, f.Fields, rep)
		if s, ok := m[nameKey].(string); ok {
			names[strings.ToLower(s)] = true
		}
		items = append(items, m)
	}

	if len(items) < f.Min {
		rep.ExtendedLists++
		for idx := 0; len(items) < f.Min; idx++ {
			def := c.content.DefaultObject(path, idx)
			if def == nil {
				def = map[string]any{}
			}
			if s, ok := def[nameKey].(string); ok && names[strings.ToLower(s)] && idx < 4*f.Min {
				continue
			}
			c.fields(path+"[]", def, f.Fields, rep)
			if s, ok := def[nameKey].(string); ok {
				if names[strings.ToLower(s)] {
					s = fmt.Sprintf("%s (%d)", s, len(items)+1)
					def[nameKey] = s
				}
				names[strings.ToLower(s)] = true
			}
			items = append(items, def)
			rep.AddedItems++
		}
	}
	obj[f.Key] = items
}

func firstStringKey(fields []schema.Field) string {
	for _, f := range fields {
		if f.Kind == schema.String {
			return f.Key
		}
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	default:
		return v
	}
}
