package finding

import "strings"

// Severity labels recognised by the scoring policy.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
)

// Weight returns a numeric weight for sorting (higher = more severe).
// Labels are compared case-insensitively.
func Weight(severity string) int {
	switch strings.ToUpper(severity) {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// IsSevere reports whether a label is HIGH or CRITICAL.
func IsSevere(severity string) bool {
	return Weight(severity) >= Weight(SeverityHigh)
}
