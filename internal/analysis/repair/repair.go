// Package repair parses model output into an untyped JSON object, fixing the
// common defects models produce along the way.
package repair

import (
	"errors"
	"strings"
	"unicode"

	"github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/platform/jsonx"
)

type Step int

const (
	StepNone Step = iota
	StepDirect
	StepStripFences
	StepBalanceBraces
	StepTrailingCommas
	StepQuoteKeys
)

func (s Step) String() string {
	switch s {
	case StepDirect:
		return "direct"
	case StepStripFences:
		return "strip_fences"
	case StepBalanceBraces:
		return "balance_braces"
	case StepTrailingCommas:
		return "trailing_commas"
	case StepQuoteKeys:
		return "quote_keys"
	default:
		return "none"
	}
}

var errNotObject = errors.New("top-level value is not an object")

type Result struct {
	Tree map[string]any
	// Step is the repair step after which the content parsed.
	Step Step
}

type step struct {
	id  Step
	fix func(string) string
}

// Each fix is applied to the output of the previous one.
var chain = []step{
	{StepDirect, func(s string) string { return s }},
	{StepStripFences, StripFences},
	{StepBalanceBraces, BalanceBraces},
	{StepTrailingCommas, StripTrailingCommas},
	{StepQuoteKeys, QuoteKeys},
}

// Parse runs the repair chain. When every step fails it returns an
// *analysis.UnparsableAnalysisError carrying a snippet of raw.
func Parse(raw string) (Result, error) {
	cur := raw
	var lastErr error
	for _, st := range chain {
		cur = st.fix(cur)
		tree, err := parseObject(cur)
		if err == nil {
			return Result{Tree: tree, Step: st.id}, nil
		}
		lastErr = err
	}
	return Result{}, analysis.NewUnparsable(raw, lastErr)
}

func parseObject(s string) (map[string]any, error) {
	var v any
	if err := jsonx.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return obj, nil
}

// StripFences removes Markdown code fences (with or without a language tag)
// and any prose before the first '{'.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		// language tag, e.g. ```json
		s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsLetter(r) })
		if j := strings.LastIndex(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	if i := strings.IndexByte(s, '{'); i > 0 {
		s = s[i:]
	}
	return strings.TrimSpace(s)
}

// BalanceBraces appends the missing closing braces. Square brackets are left
// alone.
func BalanceBraces(s string) string {
	open := 0
	inString, escaped := false, false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
		case r == '{':
			open++
		case r == '}':
			open--
		}
	}
	if open <= 0 {
		return s
	}
	return s + strings.Repeat("}", open)
}

// StripTrailingCommas drops commas that directly precede '}' or ']' outside
// string literals.
func StripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	rs := []rune(s)
	inString, escaped := false, false
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case !inString && r == ',':
			j := i + 1
			for j < len(rs) && unicode.IsSpace(rs[j]) {
				j++
			}
			if j < len(rs) && (rs[j] == '}' || rs[j] == ']') {
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// QuoteKeys rewrites 'key': and bare key: as "key": outside string
// literals. Only object keys are touched, i.e. a name that follows '{' or ','
// and is followed by ':'.
func QuoteKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	rs := []rune(s)
	inString, escaped, keyPos := false, false, false
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			b.WriteRune(r)
			continue
		}
		switch {
		case r == '"':
			inString, keyPos = true, false
		case r == '{' || r == ',':
			keyPos = true
		case unicode.IsSpace(r):
		case keyPos:
			keyPos = false
			if key, next, ok := unquotedKey(rs, i); ok {
				b.WriteString(`"` + key + `"`)
				i = next - 1
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// unquotedKey reads a single-quoted or bare key starting at rs[i]. It
// succeeds only when the key is followed by ':' and returns the index just
// past the key.
func unquotedKey(rs []rune, i int) (string, int, bool) {
	var key string
	next := i
	switch r := rs[i]; {
	case r == '\'':
		j := i + 1
		for j < len(rs) && rs[j] != '\'' {
			if rs[j] == '"' || rs[j] == '\\' {
				return "", 0, false
			}
			j++
		}
		if j >= len(rs) || j == i+1 {
			return "", 0, false
		}
		key, next = string(rs[i+1:j]), j+1
	case r == '_' || r == '$' || unicode.IsLetter(r):
		j := i + 1
		for j < len(rs) && (rs[j] == '_' || rs[j] == '$' || rs[j] == '-' || unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j])) {
			j++
		}
		key, next = string(rs[i:j]), j
	default:
		return "", 0, false
	}
	k := next
	for k < len(rs) && unicode.IsSpace(rs[k]) {
		k++
	}
	if k >= len(rs) || rs[k] != ':' {
		return "", 0, false
	}
	return key, next, true
}
