package onboarding

import (
	_ "embed"
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/attune/internal/profile"
)

//go:embed questions.yaml
var defaultQuestions []byte

// Catalog is the static, ordered question bank.
type Catalog struct {
	questions []Question
	index     map[string]int
}

// DefaultCatalog parses the embedded question bank.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultQuestions)
}

// ParseCatalog decodes a YAML question list and validates it.
func ParseCatalog(data []byte) (*Catalog, error) {
	var qs []Question
	if err := yaml.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("decoding question bank: %w", err)
	}
	return NewCatalog(qs)
}

// NewCatalog validates qs and builds a Catalog preserving their order.
func NewCatalog(qs []Question) (*Catalog, error) {
	c := &Catalog{
		questions: make([]Question, len(qs)),
		index:     make(map[string]int, len(qs)),
	}
	copy(c.questions, qs)

	var errs []error
	for i, q := range c.questions {
		if q.ID == "" {
			errs = append(errs, fmt.Errorf("question %d: missing id", i))
			continue
		}
		if _, dup := c.index[q.ID]; dup {
			errs = append(errs, fmt.Errorf("question %s: duplicate id", q.ID))
			continue
		}
		for _, req := range q.Requires {
			if _, ok := c.index[req]; !ok {
				errs = append(errs, fmt.Errorf("question %s: prerequisite %q missing or declared later", q.ID, req))
			}
		}
		c.index[q.ID] = i
		if err := validateQuestion(q); err != nil {
			errs = append(errs, fmt.Errorf("question %s: %w", q.ID, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

func validateQuestion(q Question) error {
	if !q.Tier.Valid() {
		return fmt.Errorf("unknown tier %q", q.Tier)
	}
	switch q.Type {
	case TypeSingle, TypeMulti, TypeScalar:
		if len(q.Options) == 0 {
			return errors.New("no options")
		}
	case TypeOpen:
		if q.Captures != "" {
			if s, ok := profile.StrategyOf(q.Captures); !ok || s != profile.Union {
				return fmt.Errorf("captures %q is not a set field", q.Captures)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown type %q", q.Type)
	}

	seen := make(map[string]bool, len(q.Options))
	for _, o := range q.Options {
		if seen[o.Value] {
			return fmt.Errorf("duplicate option %q", o.Value)
		}
		seen[o.Value] = true
		if q.Type == TypeScalar {
			if _, err := strconv.Atoi(o.Value); err != nil {
				return fmt.Errorf("scalar option %q is not a number", o.Value)
			}
		}
		for _, fv := range o.Indicates {
			if !profile.KnownField(fv.Field) {
				return fmt.Errorf("option %q: unknown field %q", o.Value, fv.Field)
			}
			values := fv.Values
			if fv.Value != "" {
				values = append([]string{fv.Value}, values...)
			}
			for _, v := range values {
				if !profile.ValidValue(fv.Field, v) {
					return fmt.Errorf("option %q: invalid value %q for %s", o.Value, v, fv.Field)
				}
			}
		}
	}
	return nil
}

// Questions returns the catalog in order.
func (c *Catalog) Questions() []Question {
	out := make([]Question, len(c.questions))
	copy(out, c.questions)
	return out
}

// Get returns the question with the given ID.
func (c *Catalog) Get(id string) (Question, bool) {
	i, ok := c.index[id]
	if !ok {
		return Question{}, false
	}
	return c.questions[i], true
}

// Len returns the number of questions.
func (c *Catalog) Len() int { return len(c.questions) }

// CountUpTo returns how many questions are at or below tier.
func (c *Catalog) CountUpTo(tier profile.Tier) int {
	n := 0
	for _, q := range c.questions {
		if q.Tier.Rank() <= tier.Rank() {
			n++
		}
	}
	return n
}
