package analysis

import (
	_ "embed"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/goccy/go-yaml"
)

//go:embed fixtures/cmmc_level2.yaml
var defaultFixture []byte

// ControlAssessment is the narrative assessment of a single control.
type ControlAssessment struct {
	ControlID      string `json:"control_id" yaml:"control_id"`
	Title          string `json:"title" yaml:"title"`
	Level          string `json:"level" yaml:"level"`
	Status         string `json:"status" yaml:"status"`
	Findings       string `json:"findings" yaml:"findings"`
	Evidence       string `json:"evidence" yaml:"evidence"`
	Impact         string `json:"impact" yaml:"impact"`
	Recommendation string `json:"recommendation" yaml:"recommendation"`
}

// PriorityGap is a control gap ranked for remediation.
type PriorityGap struct {
	ControlID       string `json:"control_id" yaml:"control_id"`
	Priority        string `json:"priority" yaml:"priority"`
	Effort          string `json:"effort" yaml:"effort"`
	Recommendation  string `json:"recommendation" yaml:"recommendation"`
	PotentialImpact string `json:"potential_impact" yaml:"potential_impact"`
}

// Recommendation is a remediation step for a control.
type Recommendation struct {
	ControlID      string `json:"control_id" yaml:"control_id"`
	Recommendation string `json:"recommendation" yaml:"recommendation"`
}

// Fixture is the static reference content of a report: assessor identity,
// control catalog, canned assessments and recommendations. It does not vary
// with the analysed findings.
type Fixture struct {
	// Placeholder marks content that stands in for a real assessment.
	Placeholder          bool                         `yaml:"placeholder"`
	FileName             string                       `yaml:"fileName"`
	AssessorName         string                       `yaml:"assessorName"`
	AssessorCredentials  string                       `yaml:"assessorCredentials"`
	AssessmentType       string                       `yaml:"assessmentType"`
	NonCompliantControls []string                     `yaml:"nonCompliantControls"`
	DetailedAssessment   map[string]ControlAssessment `yaml:"detailedAssessment"`
	PriorityGaps         []PriorityGap                `yaml:"priorityGaps"`
	Recommendations      []Recommendation             `yaml:"recommendations"`
	AssessorComments     string                       `yaml:"assessorComments"`
}

// DefaultFixture returns the embedded CMMC Level 2 placeholder fixture.
func DefaultFixture() (*Fixture, error) {
	return ParseFixture(defaultFixture)
}

// LoadFixture reads a fixture from a YAML file.
func LoadFixture(path string) (*Fixture, error) {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	fixture, err := ParseFixture(content)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return fixture, nil
}

// ParseFixture decodes a YAML fixture document.
func ParseFixture(content []byte) (*Fixture, error) {
	var fixture Fixture
	if err := yaml.Unmarshal(content, &fixture); err != nil {
		return nil, err
	}
	if fixture.DetailedAssessment == nil {
		fixture.DetailedAssessment = map[string]ControlAssessment{}
	}
	return &fixture, nil
}

// clone returns a deep copy so reports never share backing storage with the
// fixture or with each other.
func (f *Fixture) clone() Fixture {
	out := *f
	out.NonCompliantControls = nonNil(slices.Clone(f.NonCompliantControls))
	out.PriorityGaps = nonNil(slices.Clone(f.PriorityGaps))
	out.Recommendations = nonNil(slices.Clone(f.Recommendations))
	out.DetailedAssessment = maps.Clone(f.DetailedAssessment)
	if out.DetailedAssessment == nil {
		out.DetailedAssessment = map[string]ControlAssessment{}
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
