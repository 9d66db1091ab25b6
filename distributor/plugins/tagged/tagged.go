package tagged

import (
	"strings"

	"github.com/DefensEye/cmmc12/distributor"
	"github.com/DefensEye/cmmc12/finding"
)

// A tagged distributor buckets findings by their own cmmc_domain tag instead
// of spreading the top-level counts with fixed weights.

var (
	_  distributor.Distributor = (*Distributor)(nil)
	_  distributor.GapDeriver  = (*Distributor)(nil)
	ID                         = distributor.NewID("tagged")
)

const (
	gapEffort        = "High Effort"
	gapImpact        = "High impact on compliance"
	gapNoRemediation = "No recommendation available"
)

type Distributor struct{}

func NewTaggedDistributor() *Distributor {
	return &Distributor{}
}

func (d *Distributor) PluginName() distributor.ID {
	return ID
}

// Distribute counts HIGH and CRITICAL findings as non-compliant, MEDIUM as
// partial and everything else as compliant. Findings without a reported
// domain tag are ignored.
func (d *Distributor) Distribute(in distributor.Input) []distributor.DomainCount {
	out := distributor.EmptyDistribution()
	index := make(map[string]int, len(out))
	for i, dc := range out {
		index[dc.DomainID] = i
	}

	for _, f := range in.Findings {
		i, ok := index[strings.ToUpper(f.Domain)]
		if !ok {
			continue
		}
		switch {
		case finding.IsSevere(f.Severity):
			out[i].NonCompliantCount++
		case strings.EqualFold(f.Severity, finding.SeverityMedium):
			out[i].PartialCount++
		default:
			out[i].CompliantCount++
		}
	}
	return out
}

// PriorityGaps lists every HIGH or CRITICAL finding as a gap against its
// tagged practice, or its finding id when untagged. The result is never nil.
func (d *Distributor) PriorityGaps(findings []finding.Finding) []distributor.Gap {
	gaps := []distributor.Gap{}
	for _, f := range findings {
		if !finding.IsSevere(f.Severity) {
			continue
		}
		control := f.Practice
		if control == "" {
			control = f.ID
		}
		recommendation := f.Description
		if recommendation == "" {
			recommendation = gapNoRemediation
		}
		gaps = append(gaps, distributor.Gap{
			ControlID:       control,
			Priority:        strings.ToUpper(f.Severity),
			Effort:          gapEffort,
			Recommendation:  recommendation,
			PotentialImpact: gapImpact,
		})
	}
	return gaps
}
