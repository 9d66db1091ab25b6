package analysis

import (
	"strings"

	"github.com/DefensEye/cmmc12/finding"
)

// SeverityCounts maps an upper-cased severity label to its number of findings.
type SeverityCounts map[string]int

// CountBySeverity buckets findings by upper-cased severity label.
// Unexpected labels are counted under whatever they upper-case to.
func CountBySeverity(findings []finding.Finding) SeverityCounts {
	counts := make(SeverityCounts)
	for _, f := range findings {
		counts[strings.ToUpper(f.Severity)]++
	}
	return counts
}

// Get returns the count for label, compared case-insensitively.
func (c SeverityCounts) Get(label string) int {
	return c[strings.ToUpper(label)]
}
