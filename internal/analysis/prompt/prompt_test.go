package prompt

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/persona-backend/internal/analysis"
	"github.com/yungbote/persona-backend/internal/analysis/format"
	"github.com/yungbote/persona-backend/internal/config"
	"github.com/yungbote/persona-backend/internal/domain"
)

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	qb, err := config.LoadQuestionBank("")
	require.NoError(t, err)
	return NewBuilder(qb, format.New(qb))
}

func deepVariant() analysis.Variant {
	v, _ := analysis.DefaultVariants("primary", "fallback").Lookup("deep")
	return v
}

func responses(n int, textLen int) []domain.RawResponse {
	cats := []string{"cog", "emo", "soc", "beh", "val"}
	names := []string{"cognitive", "emotional", "social", "behavioral", "values"}
	out := make([]domain.RawResponse, 0, n)
	for i := 0; i < n; i++ {
		c := i % len(cats)
		out = append(out, domain.RawResponse{
			QuestionID:     fmt.Sprintf("%s-%d", cats[c], i/len(cats)+1),
			CustomResponse: strings.Repeat("x", textLen),
			Category:       names[c],
		})
	}
	return out
}

func TestBuildUnderBudgetIsUntouched(t *testing.T) {
	b := newBuilder(t)
	p := b.Build(deepVariant(), responses(5, 10))

	assert.False(t, p.Truncated)
	assert.Zero(t, p.DroppedLines)
	assert.True(t, strings.HasPrefix(p.User, "Category coverage:\n"))
	assert.NotContains(t, p.User, TruncationNotice)
	assert.Len(t, p.Messages(), 2)
	assert.Equal(t, "system", p.Messages()[0].Role)
}

func TestSystemPromptIsConstantPerVariant(t *testing.T) {
	b := newBuilder(t)
	v := deepVariant()
	p1 := b.Build(v, responses(3, 10))
	p2 := b.Build(v, responses(25, 300))
	assert.Equal(t, p1.System, p2.System)
	assert.Contains(t, p1.System, `"traits": array of at least 5 objects`)
	assert.Contains(t, p1.System, `"score": number from 0 to 10`)
	assert.Contains(t, p1.System, `"careerPathways": array of at least 5 strings`)

	bigMe, _ := analysis.DefaultVariants("p", "f").Lookup("big-me")
	assert.Contains(t, SystemPrompt(bigMe), `"careerPathways": array of at least 22 strings`)
}

func TestBuildTruncatesToBudget(t *testing.T) {
	b := newBuilder(t)
	v := deepVariant()
	rs := responses(40, 400)

	p := b.Build(v, rs)
	require.True(t, p.Truncated)
	assert.LessOrEqual(t, utf8.RuneCountInString(p.User), v.PromptBudget)
	assert.True(t, strings.HasSuffix(p.User, TruncationNotice))

	// Every kept line is a whole formatted response line.
	full := format.New(b.bank).Format(rs, v.Weighted).Lines()
	body := strings.TrimPrefix(p.User, RenderCoverage(b.Coverage(rs)))
	kept := strings.Split(strings.TrimSuffix(body, "\n"+TruncationNotice), "\n")
	assert.Equal(t, len(full)-p.DroppedLines, len(kept))
	for i, l := range kept {
		assert.Equal(t, full[i], l)
	}
}

func TestForFallbackUsesShorterBudget(t *testing.T) {
	b := newBuilder(t)
	v := deepVariant()
	p := b.ForFallback(v, responses(40, 400))

	assert.True(t, p.Truncated)
	assert.LessOrEqual(t, utf8.RuneCountInString(p.User), v.FallbackPromptBudget)
	assert.NotContains(t, p.User, "Category coverage")
	assert.Less(t, len(p.System), len(SystemPrompt(v)))
}

func TestTruncateProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		lines := make([]string, rng.Intn(60)+1)
		for j := range lines {
			lines[j] = fmt.Sprintf("q%d: %s", j, strings.Repeat("é", rng.Intn(300)))
		}
		prefix := strings.Repeat("p", rng.Intn(400))
		budget := rng.Intn(8000) + 1
		margin := rng.Intn(300)

		out, dropped := Truncate(prefix, lines, budget, margin)
		full := prefix + strings.Join(lines, "\n")
		if utf8.RuneCountInString(full) <= budget {
			assert.Equal(t, full, out)
			assert.Zero(t, dropped)
			continue
		}
		require.LessOrEqual(t, utf8.RuneCountInString(out), budget, "case %d", i)
		for _, l := range strings.Split(out, "\n") {
			l = strings.TrimPrefix(l, prefix)
			if l == "" || l == TruncationNotice {
				continue
			}
			assert.Contains(t, lines, l, "case %d: split line", i)
		}
	}
}

func TestCoverage(t *testing.T) {
	b := newBuilder(t)
	rs := []domain.RawResponse{
		{QuestionID: "cog-1", SelectedOption: "a", Category: "cognitive"},
		{QuestionID: "cog-2", CustomResponse: strings.Repeat("y", 150), Category: "cognitive"},
		{QuestionID: "emo-1", CustomResponse: strings.Repeat("z", 250), Category: "emotional"},
		{QuestionID: "x-1", Category: "misc"},
	}
	cov := b.Coverage(rs)
	require.Len(t, cov, 3)

	assert.Equal(t, "cognitive", cov[0].Category)
	assert.Equal(t, 2, cov[0].Count)
	assert.Equal(t, 8, cov[0].Expected)
	assert.Equal(t, 25, cov[0].Percentage)
	assert.InDelta(t, 0.7, cov[0].Quality, 1e-9)

	assert.Equal(t, "emotional", cov[1].Category)
	assert.InDelta(t, 1.0, cov[1].Quality, 1e-9)

	assert.Equal(t, "misc", cov[2].Category)
	assert.Equal(t, 100, cov[2].Percentage)
	assert.InDelta(t, 0.5, cov[2].Quality, 1e-9)
}
