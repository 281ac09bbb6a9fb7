package kernel

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed beliefs.yaml
var defaultBeliefsYAML []byte

// Belief is one statement of the companion's philosophy.
type Belief struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// DefaultBeliefs parses the embedded belief set.
func DefaultBeliefs() ([]Belief, error) {
	return ParseBeliefs(defaultBeliefsYAML)
}

// ParseBeliefs decodes a YAML belief document and validates IDs.
func ParseBeliefs(data []byte) ([]Belief, error) {
	var doc struct {
		Beliefs []Belief `yaml:"beliefs"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing beliefs: %w", err)
	}
	seen := make(map[string]bool, len(doc.Beliefs))
	for i, b := range doc.Beliefs {
		if b.ID == "" || b.Text == "" {
			return nil, fmt.Errorf("belief %d: id and text are required", i)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("belief %q: duplicate id", b.ID)
		}
		seen[b.ID] = true
	}
	return doc.Beliefs, nil
}
