package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/aviator"
)

// Outcome keys of a tier mapping.
const (
	OutcomeFP     = "fp"
	OutcomeTP     = "tp"
	OutcomeUnsure = "unsure"
)

//go:embed default_tag_mapping.yaml
var defaultTagMapping []byte

// TagMapping maps {tier, outcome} pairs to the value written to the result
// tag and whether the issue is suppressed.
type TagMapping struct {
	TagID   string      `yaml:"tag_id"`
	Mapping TierMapping `yaml:"mapping"`
}

// TierMapping holds one OutcomeMapping per tier. Gold verdicts use Tier1,
// all others Tier2.
type TierMapping struct {
	Tier1 OutcomeMapping `yaml:"tier_1"`
	Tier2 OutcomeMapping `yaml:"tier_2"`
}

// OutcomeMapping holds the result for each verdict outcome.
type OutcomeMapping struct {
	FP     TagResult `yaml:"fp"`
	TP     TagResult `yaml:"tp"`
	Unsure TagResult `yaml:"unsure"`
}

// TagResult is the effect of a verdict on the result tag.
type TagResult struct {
	Value    string `yaml:"value"`
	Suppress bool   `yaml:"suppress"`
}

// Result returns the mapping for a tier and one of OutcomeFP, OutcomeTP or
// OutcomeUnsure. Unknown outcomes map like OutcomeUnsure.
func (m *TagMapping) Result(gold bool, outcome string) TagResult {
	tier := m.Mapping.Tier2
	if gold {
		tier = m.Mapping.Tier1
	}
	switch outcome {
	case OutcomeFP:
		return tier.FP
	case OutcomeTP:
		return tier.TP
	default:
		return tier.Unsure
	}
}

// DefaultTagMapping returns the built-in mapping.
func DefaultTagMapping() *TagMapping {
	m, err := ParseTagMapping(defaultTagMapping)
	if err != nil {
		panic(fmt.Sprintf("built-in tag mapping is invalid: %v", err))
	}
	return m
}

// LoadTagMapping reads a tier mapping file. An empty path returns the
// built-in mapping. Failures are KindSimple errors wrapping
// aviator.ErrTagMapping.
func LoadTagMapping(path string) (*TagMapping, error) {
	const op = "config.LoadTagMapping"

	if path == "" {
		return DefaultTagMapping(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, aviator.NewSimpleError(op, fmt.Errorf("%w: %v", aviator.ErrTagMapping, err)).
			WithContext(map[string]any{"path": path})
	}

	m, err := ParseTagMapping(data)
	if err != nil {
		return nil, aviator.NewSimpleError(op, err).WithContext(map[string]any{"path": path})
	}
	return m, nil
}

// ParseTagMapping parses tier mapping YAML.
func ParseTagMapping(data []byte) (*TagMapping, error) {
	var m TagMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", aviator.ErrTagMapping, err)
	}
	if m.TagID == "" {
		return nil, fmt.Errorf("%w: tag_id is required", aviator.ErrTagMapping)
	}
	return &m, nil
}
