package analysis

import (
	"math"

	"github.com/DefensEye/cmmc12/finding"
)

// Scoring policy. The penalty formula is a fixed heuristic kept stable for
// dashboard compatibility; it is not a statistically derived model.
const (
	maxCompliancePercentage = 90
	minCompliancePercentage = 30
	severeIssuePenalty      = 5
	criticalMultiplier      = 2
	partialPercentage       = 20
)

// Scores is the result of applying the scoring policy to severity counts.
type Scores struct {
	SevereIssues         int
	CompliancePercentage int
	OverallScore         int
	CompliantCount       int
	PartialCount         int
	NonCompliantCount    int
}

// Score derives the compliance percentage from severity counts and
// partitions total into compliant, partial and non-compliant buckets.
//
// The buckets always sum to total. Flooring can leave compliant+partial
// above total (up to 110% of it); in that case non-compliant is clamped to
// zero and partial takes the remainder.
func Score(counts SeverityCounts, total int) Scores {
	if total < 0 {
		total = 0
	}

	severe := counts.Get(finding.SeverityHigh) + counts.Get(finding.SeverityCritical)*criticalMultiplier
	pct := clamp(maxCompliancePercentage-severe*severeIssuePenalty, minCompliancePercentage, maxCompliancePercentage)

	compliant := floorPercent(total, pct)
	partial := floorPercent(total, partialPercentage)
	nonCompliant := total - compliant - partial
	if nonCompliant < 0 {
		nonCompliant = 0
		partial = total - compliant
	}

	return Scores{
		SevereIssues:         severe,
		CompliancePercentage: pct,
		OverallScore:         clamp(pct, 0, 100),
		CompliantCount:       compliant,
		PartialCount:         partial,
		NonCompliantCount:    nonCompliant,
	}
}

// floorPercent floors total scaled by pct/100 in float64, so totals such as
// 90 at 70% give 62 rather than the exact 63.
func floorPercent(total, pct int) int {
	return int(math.Floor(float64(total) * (float64(pct) / 100)))
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
