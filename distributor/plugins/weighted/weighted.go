package weighted

import (
	"github.com/DefensEye/cmmc12/distributor"
)

// A weighted distributor spreads the top-level counts across domains with
// fixed proportions. The proportions are not derived from the findings and
// the per-domain columns are intentionally not normalized, so they do not
// sum back to the top-level counts.

var (
	_  distributor.Distributor = (*Distributor)(nil)
	ID                         = distributor.NewID("weighted")
)

// Weights holds per-bucket proportions in tenths.
type Weights struct {
	Compliant    int
	Partial      int
	NonCompliant int
}

// DefaultWeights is the baseline weight table keyed by domain id.
var DefaultWeights = map[string]Weights{
	"AC": {Compliant: 2, Partial: 3, NonCompliant: 4},
	"AU": {Compliant: 3, Partial: 2, NonCompliant: 1},
	"CM": {Compliant: 2, Partial: 4, NonCompliant: 2},
	"IA": {Compliant: 2, Partial: 1, NonCompliant: 2},
	"SC": {Compliant: 1, Partial: 3, NonCompliant: 5},
}

type Distributor struct {
	weights map[string]Weights
}

func NewWeightedDistributor() *Distributor {
	return &Distributor{weights: DefaultWeights}
}

func (d *Distributor) PluginName() distributor.ID {
	return ID
}

func (d *Distributor) Distribute(in distributor.Input) []distributor.DomainCount {
	out := distributor.EmptyDistribution()
	for i := range out {
		w := d.weights[out[i].DomainID]
		out[i].CompliantCount = apply(in.CompliantCount, w.Compliant)
		out[i].PartialCount = apply(in.PartialCount, w.Partial)
		out[i].NonCompliantCount = apply(in.NonCompliantCount, w.NonCompliant)
	}
	return out
}

// apply computes floor(count * tenths / 10) without floating point drift.
func apply(count, tenths int) int {
	if count <= 0 {
		return 0
	}
	return count * tenths / 10
}
