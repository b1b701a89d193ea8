package repair

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/yungbote/persona-backend/internal/analysis"
)

func TestParseSteps(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Step
		key  string
	}{
		{"valid json", `{"overview":"x"}`, StepDirect, "overview"},
		{"brace inside string", `{"overview":"}{"}`, StepDirect, "overview"},
		{"fenced", "```json\n{\"overview\":\"x\"}\n```", StepStripFences, "overview"},
		{"bare fence", "```\n{\"overview\":\"x\"}\n```", StepStripFences, "overview"},
		{"prose before object", "Here is the analysis:\n{\"overview\":\"x\"}", StepStripFences, "overview"},
		{"missing closing brace", `{"overview":"x","coreTraits":{"primary":"p"}`, StepBalanceBraces, "coreTraits"},
		{"trailing comma in fence", "```json {\"overview\": \"x\", \"traits\": [],}```", StepTrailingCommas, "traits"},
		{"single quoted keys", `{'overview': "x", 'traits': []}`, StepQuoteKeys, "traits"},
		{"bare keys", `{overview: "x", coreTraits: {primary: "p"}, traits: []}`, StepQuoteKeys, "coreTraits"},
		{"mixed keys with trailing comma", "```json\n{overview: \"x\", 'traits': [],}\n```", StepQuoteKeys, "traits"},
		{
			"fence, trailing comma and missing brace",
			"```json\n{\"overview\": \"x\", \"traits\": [\"a\", \"b\",],\n\"coreTraits\": {\"primary\": \"p\"}\n```",
			StepTrailingCommas,
			"coreTraits",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if res.Step != tt.want {
				t.Fatalf("step=%s want %s", res.Step, tt.want)
			}
			if _, ok := res.Tree[tt.key]; !ok {
				t.Fatalf("missing key %q in %v", tt.key, res.Tree)
			}
		})
	}
}

func TestParseUnrecoverable(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"garbage", "the model refused to answer"},
		{"array", `[1, 2, 3]`},
		{"string", `"just a string"`},
		{"empty", ""},
		{"broken inside", `{"overview": "x" "traits": }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.in)
			var ue *analysis.UnparsableAnalysisError
			if !errors.As(err, &ue) {
				t.Fatalf("err=%v, want UnparsableAnalysisError", err)
			}
			if analysis.Class(err) != "unparsable" {
				t.Fatalf("class=%s", analysis.Class(err))
			}
		})
	}
}

func TestUnparsableSnippetIsCapped(t *testing.T) {
	raw := strings.Repeat("ü", 1200)
	_, err := Parse(raw)
	var ue *analysis.UnparsableAnalysisError
	if !errors.As(err, &ue) {
		t.Fatalf("err=%v", err)
	}
	if n := utf8.RuneCountInString(ue.Snippet); n != 500 {
		t.Fatalf("snippet runes=%d", n)
	}
}

func TestStripTrailingCommasLeavesStrings(t *testing.T) {
	in := `{"a": "x,}", "b": [1,],}`
	got := StripTrailingCommas(in)
	want := `{"a": "x,}", "b": [1]}`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestBalanceBracesIgnoresEscapedQuotes(t *testing.T) {
	in := `{"a": "say \"{\"", "b": {"c": 1}`
	got := BalanceBraces(in)
	if got != in+"}" {
		t.Fatalf("got %q", got)
	}
}

func TestQuoteKeysLeavesStrings(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{overview: "Strong, focus: high"}`, `{"overview": "Strong, focus: high"}`},
		{`{'a': "it's {b: c}", c_2: [true, null, 1]}`, `{"a": "it's {b: c}", "c_2": [true, null, 1]}`},
		{`{"quoted": "x", bare: "y"}`, `{"quoted": "x", "bare": "y"}`},
		{`{"escaped \" quote": 1, next: 2}`, `{"escaped \" quote": 1, "next": 2}`},
		{`{"list": [alpha, beta]}`, `{"list": [alpha, beta]}`},
	}
	for _, tt := range tests {
		if got := QuoteKeys(tt.in); got != tt.want {
			t.Fatalf("QuoteKeys(%s)\n got %s\nwant %s", tt.in, got, tt.want)
		}
	}

	res, err := Parse(`{overview: "Strong, focus: high", traits: []}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Tree["overview"] != "Strong, focus: high" {
		t.Fatalf("overview=%v", res.Tree["overview"])
	}
}
