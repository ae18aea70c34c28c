package correlate

import "github.com/couchcryptid/lma-phasor-service/internal/geo"

// speedOfLightMPerNs is c in meters per nanosecond.
const speedOfLightMPerNs = 0.299792458

// PropagationModel returns the expected one-way signal transit time in
// nanoseconds from a reference location to a sensor.
type PropagationModel func(from, to geo.Cartesian) float64

// EuclideanPropagation models transit time as straight-line distance at the
// speed of light. Adequate for VHF line-of-sight paths across a network
// baseline.
func EuclideanPropagation(from, to geo.Cartesian) float64 {
	return geo.EuclideanDistance(from, to) / speedOfLightMPerNs
}
