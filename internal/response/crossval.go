package response

import (
	"context"
	"fmt"
)

// Comparison is the outcome of running both estimation strategies on the same
// query. The two methods are consistent in order of magnitude but are not
// numerically identical: one interpolates onto a sky grid, the other inverts
// the transform at a point. The observed discrepancy is documented, not
// reconciled.
type Comparison struct {
	Aperture Result  `json:"aperture"`
	Map      Result  `json:"map"`
	Ratio    float64 `json:"ratio"` // aperture product / map product
}

// CrossValidate runs the aperture and map estimators on the same request and
// reports both results side by side.
func CrossValidate(ctx context.Context, aperture, mapEst Estimator, req Request) (Comparison, error) {
	ar, err := aperture.Estimate(ctx, req)
	if err != nil {
		return Comparison{}, fmt.Errorf("aperture estimate: %w", err)
	}
	mr, err := mapEst.Estimate(ctx, req)
	if err != nil {
		return Comparison{}, fmt.Errorf("map estimate: %w", err)
	}
	c := Comparison{Aperture: ar, Map: mr}
	if mr.Product != 0 {
		c.Ratio = ar.Product / mr.Product
	}
	return c, nil
}
