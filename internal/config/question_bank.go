package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed question_bank.yaml
var defaultQuestionBank []byte

const DefaultCategory = "general"

type Category struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Expected    int    `yaml:"expected"`
	Pair        string `yaml:"pair"`
}

type Question struct {
	ID       string  `yaml:"id"`
	Category string  `yaml:"category"`
	Weight   float64 `yaml:"weight"`
}

type InsightPair struct {
	A      string  `yaml:"a"`
	B      string  `yaml:"b"`
	Factor float64 `yaml:"factor"`
}

// QuestionBank holds the per-category expectations and per-question base
// weights. It is immutable after loading.
type QuestionBank struct {
	Categories   []Category    `yaml:"categories"`
	Questions    []Question    `yaml:"questions"`
	InsightPairs []InsightPair `yaml:"insightPairs"`

	categories map[string]Category
	questions  map[string]Question
}

// LoadQuestionBank reads the bank at path, or the embedded default when path
// is empty, and validates it.
func LoadQuestionBank(path string) (*QuestionBank, error) {
	raw := defaultQuestionBank
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read question bank: %w", err)
		}
		raw = b
	}
	return ParseQuestionBank(raw)
}

func ParseQuestionBank(raw []byte) (*QuestionBank, error) {
	var qb QuestionBank
	if err := yaml.Unmarshal(raw, &qb); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	qb.index()
	if err := qb.Validate(); err != nil {
		return nil, err
	}
	return &qb, nil
}

func (qb *QuestionBank) index() {
	qb.categories = make(map[string]Category, len(qb.Categories))
	for _, c := range qb.Categories {
		qb.categories[c.Name] = c
	}
	qb.questions = make(map[string]Question, len(qb.Questions))
	for _, q := range qb.Questions {
		qb.questions[q.ID] = q
	}
}

// Validate asserts the expectation table sums to the bank size and every
// reference resolves.
func (qb *QuestionBank) Validate() error {
	if len(qb.Categories) == 0 {
		return fmt.Errorf("question bank: no categories")
	}
	sum := 0
	for _, c := range qb.Categories {
		if c.Expected <= 0 {
			return fmt.Errorf("question bank: category %q has non-positive expected count", c.Name)
		}
		if c.Pair != "" {
			if _, ok := qb.categories[c.Pair]; !ok {
				return fmt.Errorf("question bank: category %q pairs with unknown %q", c.Name, c.Pair)
			}
		}
		sum += c.Expected
	}
	if sum != len(qb.Questions) {
		return fmt.Errorf("question bank: expected counts sum to %d but bank has %d questions", sum, len(qb.Questions))
	}
	if len(qb.questions) != len(qb.Questions) {
		return fmt.Errorf("question bank: duplicate question ids")
	}
	for _, q := range qb.Questions {
		if _, ok := qb.categories[q.Category]; !ok {
			return fmt.Errorf("question bank: question %q has unknown category %q", q.ID, q.Category)
		}
		if q.Weight <= 0 {
			return fmt.Errorf("question bank: question %q has non-positive weight", q.ID)
		}
	}
	for _, p := range qb.InsightPairs {
		if _, ok := qb.questions[p.A]; !ok {
			return fmt.Errorf("question bank: insight pair references unknown question %q", p.A)
		}
		if _, ok := qb.questions[p.B]; !ok {
			return fmt.Errorf("question bank: insight pair references unknown question %q", p.B)
		}
		if p.Factor < 1.15 || p.Factor > 1.2 {
			return fmt.Errorf("question bank: insight pair %s/%s factor %.2f outside [1.15, 1.2]", p.A, p.B, p.Factor)
		}
	}
	return nil
}

// CategoryOf resolves the category of a question id, DefaultCategory if unknown.
func (qb *QuestionBank) CategoryOf(questionID string) string {
	if q, ok := qb.questions[questionID]; ok {
		return q.Category
	}
	return DefaultCategory
}

// BaseWeight is 1.0 for questions outside the bank.
func (qb *QuestionBank) BaseWeight(questionID string) float64 {
	if q, ok := qb.questions[questionID]; ok {
		return q.Weight
	}
	return 1.0
}

func (qb *QuestionBank) Category(name string) (Category, bool) {
	c, ok := qb.categories[name]
	return c, ok
}

// Expected returns the target question count for a category. Categories
// outside the bank expect 1 so coverage math never divides by zero.
func (qb *QuestionBank) Expected(name string) int {
	if c, ok := qb.categories[name]; ok && c.Expected > 0 {
		return c.Expected
	}
	return 1
}

func (qb *QuestionBank) Description(name string) string {
	if c, ok := qb.categories[name]; ok && c.Description != "" {
		return c.Description
	}
	return "General responses"
}

func (qb *QuestionBank) PairOf(name string) string {
	return qb.categories[name].Pair
}

// InsightPartners lists the pairs a question participates in.
func (qb *QuestionBank) InsightPartners(questionID string) []InsightPair {
	var out []InsightPair
	for _, p := range qb.InsightPairs {
		if p.A == questionID || p.B == questionID {
			out = append(out, p)
		}
	}
	return out
}

func (qb *QuestionBank) Size() int { return len(qb.Questions) }
