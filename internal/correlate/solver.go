package correlate

import (
	"context"

	"github.com/couchcryptid/lma-phasor-service/internal/geo"
	"github.com/couchcryptid/lma-phasor-service/internal/roster"
)

// Solution is a located event produced from a candidate cluster.
type Solution struct {
	Geodetic geo.Geodetic `json:"geodetic"`
	// TimeNano is the solved source time, nanoseconds into the second.
	TimeNano int64 `json:"time_nano"`
	// ChiSq is the goodness-of-fit of the timing residuals.
	ChiSq float64 `json:"chi_sq"`
}

// Solver turns a candidate cluster into a located solution, typically by
// nonlinear least squares over the arrival times. No implementation ships
// with this service; the pipeline records solutions only when one is
// injected.
type Solver interface {
	Solve(ctx context.Context, peaks []MergedPeak, c Cluster, loc *roster.Roster) (Solution, error)
}
