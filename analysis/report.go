package analysis

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DefensEye/cmmc12/distributor"
	"github.com/DefensEye/cmmc12/distributor/plugins/weighted"
	"github.com/DefensEye/cmmc12/finding"
)

const (
	assessmentDateLayout = "2006-01-02"
	partialThreshold     = 70
)

var errNoFixture = errors.New("report fixture is not configured")

// Report is the compliance summary returned to the dashboard.
type Report struct {
	Summary              string                       `json:"summary"`
	OverallScore         int                          `json:"overallScore"`
	CompliantCount       int                          `json:"compliantCount"`
	PartialCount         int                          `json:"partialCount"`
	NonCompliantCount    int                          `json:"nonCompliantCount"`
	FileName             string                       `json:"fileName"`
	AssessorName         string                       `json:"assessorName"`
	AssessorCredentials  string                       `json:"assessorCredentials"`
	AssessmentDate       string                       `json:"assessmentDate"`
	AssessmentType       string                       `json:"assessmentType"`
	DomainDistribution   []distributor.DomainCount    `json:"domainDistribution"`
	NonCompliantControls []string                     `json:"non_compliant_controls"`
	DetailedAssessment   map[string]ControlAssessment `json:"detailedAssessment"`
	PriorityGaps         []PriorityGap                `json:"priorityGaps"`
	Recommendations      []Recommendation             `json:"recommendations"`
	AssessorComments     string                       `json:"assessorComments"`
}

// Composer assembles reports from findings and fixture data.
type Composer struct {
	fixture     *Fixture
	distributor distributor.Distributor
	now         func() time.Time
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithDistributor sets the domain distributor. Defaults to weighted.
func WithDistributor(d distributor.Distributor) ComposerOption {
	return func(c *Composer) { c.distributor = d }
}

// WithClock sets the clock used for the assessment date.
func WithClock(now func() time.Time) ComposerOption {
	return func(c *Composer) { c.now = now }
}

func NewComposer(fixture *Fixture, opts ...ComposerOption) *Composer {
	c := &Composer{
		fixture:     fixture,
		distributor: weighted.NewWeightedDistributor(),
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Distributor returns the configured domain distributor.
func (c *Composer) Distributor() distributor.Distributor {
	return c.distributor
}

// Compose derives a report from findings using the configured distributor.
func (c *Composer) Compose(findings []finding.Finding) (Report, error) {
	return c.ComposeWith(c.distributor, findings)
}

// ComposeWith derives a report from findings using d for the domain
// distribution.
func (c *Composer) ComposeWith(d distributor.Distributor, findings []finding.Finding) (Report, error) {
	if c.fixture == nil {
		return Report{}, errNoFixture
	}
	if d == nil {
		d = c.distributor
	}

	counts := CountBySeverity(findings)
	total := len(findings)
	scores := Score(counts, total)

	domains := d.Distribute(distributor.Input{
		CompliantCount:    scores.CompliantCount,
		PartialCount:      scores.PartialCount,
		NonCompliantCount: scores.NonCompliantCount,
		Findings:          findings,
	})

	fx := c.fixture.clone()
	if gd, ok := d.(distributor.GapDeriver); ok {
		fx.PriorityGaps = priorityGaps(gd.PriorityGaps(findings))
	}
	return Report{
		Summary:              Narrative(total, scores.OverallScore, counts.Get(finding.SeverityCritical), counts.Get(finding.SeverityHigh)),
		OverallScore:         scores.OverallScore,
		CompliantCount:       scores.CompliantCount,
		PartialCount:         scores.PartialCount,
		NonCompliantCount:    scores.NonCompliantCount,
		FileName:             fx.FileName,
		AssessorName:         fx.AssessorName,
		AssessorCredentials:  fx.AssessorCredentials,
		AssessmentDate:       c.now().UTC().Format(assessmentDateLayout),
		AssessmentType:       fx.AssessmentType,
		DomainDistribution:   domains,
		NonCompliantControls: fx.NonCompliantControls,
		DetailedAssessment:   fx.DetailedAssessment,
		PriorityGaps:         fx.PriorityGaps,
		Recommendations:      fx.Recommendations,
		AssessorComments:     fx.AssessorComments,
	}, nil
}

func priorityGaps(gaps []distributor.Gap) []PriorityGap {
	out := make([]PriorityGap, 0, len(gaps))
	for _, g := range gaps {
		out = append(out, PriorityGap{
			ControlID:       g.ControlID,
			Priority:        g.Priority,
			Effort:          g.Effort,
			Recommendation:  g.Recommendation,
			PotentialImpact: g.PotentialImpact,
		})
	}
	return out
}

// Narrative renders the templated report summary.
func Narrative(total, overallScore, critical, high int) string {
	level := "substantial"
	if overallScore < partialThreshold {
		level = "partial"
	}

	sentences := []string{
		fmt.Sprintf("Based on the analysis of %d security findings, your system shows %s compliance with CMMC Level 2 requirements.", total, level),
	}
	switch {
	case critical > 0:
		sentences = append(sentences, fmt.Sprintf("%d critical and %d high severity issues require immediate attention.", critical, high))
	case high > 0:
		sentences = append(sentences, fmt.Sprintf("%d high severity issues require prompt attention.", high))
	}
	sentences = append(sentences, "Several areas need focus, particularly in access control (AC) and system protection (SC) domains.")

	return strings.Join(sentences, " ")
}
