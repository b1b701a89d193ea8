package complete

import (
	"math"
	"math/rand"
	"strings"
)

const (
	scoreMean   = 65.0
	scoreStdDev = 15.0
	scoreFloor  = 35.0
	scoreCeil   = 95.0
)

// ScoreGenerator draws plausible default scores. Draws are not uniform so a
// report with several synthesized scores does not look flat.
type ScoreGenerator struct {
	uniform func() float64
}

// NewScoreGenerator uses uniform as its source of values in [0, 1). Nil means
// the process-wide math/rand source, which is safe for concurrent use.
func NewScoreGenerator(uniform func() float64) *ScoreGenerator {
	if uniform == nil {
		uniform = rand.Float64
	}
	return &ScoreGenerator{uniform: uniform}
}

// normal returns a standard normal deviate via the Box-Muller transform.
func (g *ScoreGenerator) normal() float64 {
	u1 := g.uniform()
	if u1 <= 0 {
		u1 = math.SmallestNonzeroFloat64
	}
	u2 := g.uniform()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// Score returns a score for the field at path whose range is [0, upper].
// 100-point scores are whole numbers, 10-point scores keep one decimal.
func (g *ScoreGenerator) Score(path string, upper float64) float64 {
	v := clamp(scoreMean+scoreStdDev*g.normal(), scoreFloor, scoreCeil)
	v = clamp(v+Bias(path), 0, 100)
	if upper > 0 && upper != 100 {
		v = v * upper / 100
		return math.Round(v*10) / 10
	}
	return math.Round(v)
}

// Bias is the per-domain shift applied to generated scores.
func Bias(path string) float64 {
	p := strings.ToLower(path)
	switch {
	case strings.Contains(p, "emotional"):
		return 0
	case strings.Contains(p, "cognitive"), strings.Contains(p, "intelligence"):
		return 5
	case strings.Contains(p, "adaptab"):
		return 2
	case strings.Contains(p, "resilien"):
		return -2
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
