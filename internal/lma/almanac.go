package lma

import "github.com/couchcryptid/lma-phasor-service/internal/geo"

// Almanac folds the GPS fields multiplexed across the status stream into a
// coherent position/velocity/health snapshot. Each status record carries one
// 16-bit GPS value whose meaning depends on second mod 12, so a snapshot is
// only fully fresh after 12 consecutive in-cycle observations; before that,
// components not yet observed hold their previous (or zero) values. That is
// accepted, not an error.
//
// Lifetime is one open file. Not safe for concurrent use; each decode worker
// owns its own Almanac.
type Almanac struct {
	rawLat uint32
	rawLon uint32
	rawAlt uint32

	// Lat and Lon are decimal degrees, Alt meters.
	Lat float64
	Lon float64
	Alt float64

	// Velocity and Bearing are kept as the receiver reports them.
	Velocity uint32
	Bearing  uint16

	SatTracked int
	SatVisible int
	SatStatus  uint16

	// Temperature is degrees Celsius.
	Temperature int

	seen uint16 // bitmask of observed cycle slots
}

// Observe folds one status record's GPS field into the almanac.
func (a *Almanac) Observe(s *StatusRecord) {
	slot := s.Second % 12
	v := uint32(s.GPSInfo)

	switch slot {
	case 0: // latitude, high half
		a.rawLat = v<<16 | a.rawLat&0xFFFF
		a.Lat = convertLatLon(a.rawLat)
	case 1: // latitude, low half
		a.rawLat = v | a.rawLat&0xFFFF0000
		a.Lat = convertLatLon(a.rawLat)
	case 2: // longitude, high half
		a.rawLon = v<<16 | a.rawLon&0xFFFF
		a.Lon = convertLatLon(a.rawLon)
	case 3: // longitude, low half
		a.rawLon = v | a.rawLon&0xFFFF0000
		a.Lon = convertLatLon(a.rawLon)
	case 4: // altitude, high half (centimeters)
		a.rawAlt = v<<16 | a.rawAlt&0xFFFF
		a.Alt = float64(a.rawAlt) / 100.0
	case 5: // altitude, low half
		a.rawAlt = v | a.rawAlt&0xFFFF0000
		a.Alt = float64(a.rawAlt) / 100.0
	case 6: // velocity, high half
		a.Velocity = v<<16 | a.Velocity&0xFFFF
	case 7: // velocity, low half
		a.Velocity = v | a.Velocity&0xFFFF0000
	case 8: // bearing
		a.Bearing = s.GPSInfo
	case 9: // tracked/visible satellite counts
		a.SatTracked = int(v>>8) & 0xFF
		a.SatVisible = int(v) & 0xFF
	case 10: // satellite status
		a.SatStatus = s.GPSInfo & 0xFFF
	case 11: // temperature, offset by 40 C
		a.Temperature = int(s.GPSInfo>>8) - 40
	}

	a.seen |= 1 << slot
}

// Complete reports whether every slot of the 12-second cycle has been
// observed at least once since the almanac was created.
func (a *Almanac) Complete() bool {
	return a.seen == 0xFFF
}

// Position returns the latched geodetic position. ok is false until all
// three components have decoded to nonzero values, matching the validity
// rule the hardware's zero-fill makes necessary.
func (a *Almanac) Position() (geo.Geodetic, bool) {
	if a.Lat == 0 || a.Lon == 0 || a.Alt == 0 {
		return geo.Geodetic{}, false
	}
	return geo.Geodetic{Lat: a.Lat, Lon: a.Lon, Alt: a.Alt}, true
}

// convertLatLon converts the receiver's 32-bit angle encoding to decimal
// degrees: a two's-complement count of 1/3,600,000ths of a degree scaled by
// 90/324e6.
func convertLatLon(raw uint32) float64 {
	v := int64(raw)
	if raw>>31 == 1 {
		v -= 1 << 32
	}
	return float64(v) * 90 / 324000000.0
}
