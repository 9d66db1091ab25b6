package distributor

import (
	"github.com/DefensEye/cmmc12/finding"
)

// Distributor defines a set of methods a plugin must implement for
// splitting compliance bucket counts across CMMC domains.
type Distributor interface {
	PluginName() ID
	Distribute(in Input) []DomainCount
}

// Input carries the top-level bucket counts and the findings they were
// derived from. Plugins must not modify it.
type Input struct {
	CompliantCount    int
	PartialCount      int
	NonCompliantCount int
	Findings          []finding.Finding
}

// Gap is a remediation item derived from a single finding.
type Gap struct {
	ControlID       string
	Priority        string
	Effort          string
	Recommendation  string
	PotentialImpact string
}

// GapDeriver is implemented by distributors that also derive priority gaps
// from the findings. Reports built with other distributors keep their
// fixture gaps.
type GapDeriver interface {
	PriorityGaps(findings []finding.Finding) []Gap
}

// DomainCount is the compliance status breakdown of a single domain.
type DomainCount struct {
	DomainID          string `json:"domainId" yaml:"domainId"`
	DomainName        string `json:"domainName" yaml:"domainName"`
	CompliantCount    int    `json:"compliantCount" yaml:"compliantCount"`
	PartialCount      int    `json:"partialCount" yaml:"partialCount"`
	NonCompliantCount int    `json:"nonCompliantCount" yaml:"nonCompliantCount"`
}

// Domain identifies a CMMC domain reported on the dashboard.
type Domain struct {
	ID   string
	Name string
}

// Domains are the reported domains, in report order.
var Domains = []Domain{
	{ID: "AC", Name: "Access Control"},
	{ID: "AU", Name: "Audit and Accountability"},
	{ID: "CM", Name: "Configuration Management"},
	{ID: "IA", Name: "Identification and Authentication"},
	{ID: "SC", Name: "System and Communications Protection"},
}

// EmptyDistribution returns a zeroed record for every reported domain.
func EmptyDistribution() []DomainCount {
	out := make([]DomainCount, len(Domains))
	for i, d := range Domains {
		out[i] = DomainCount{DomainID: d.ID, DomainName: d.Name}
	}
	return out
}

// ID represents the identity for a distributor.
type ID string

// NewID returns a new ID for a given id string.
func NewID(id string) ID {
	return ID(id)
}

// Set defines Distributors by ID
type Set map[ID]Distributor
