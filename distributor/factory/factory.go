package factory

import (
	"github.com/DefensEye/cmmc12/distributor"
	"github.com/DefensEye/cmmc12/distributor/plugins/tagged"
	"github.com/DefensEye/cmmc12/distributor/plugins/weighted"
)

// DistributorByID returns the distributor registered under id. Unknown ids
// get the weighted baseline.
func DistributorByID(id distributor.ID) distributor.Distributor {
	switch id {
	case tagged.ID:
		return tagged.NewTaggedDistributor()
	default:
		return weighted.NewWeightedDistributor()
	}
}

// Known reports whether id names a registered distributor.
func Known(id distributor.ID) bool {
	return id == weighted.ID || id == tagged.ID
}

// NewSet returns every registered distributor keyed by ID.
func NewSet() distributor.Set {
	return distributor.Set{
		weighted.ID: weighted.NewWeightedDistributor(),
		tagged.ID:   tagged.NewTaggedDistributor(),
	}
}
