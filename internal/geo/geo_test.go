package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToCartesian(t *testing.T) {
	t.Run("equator prime meridian", func(t *testing.T) {
		c := ToCartesian(Geodetic{Lat: 0, Lon: 0, Alt: 0})
		assert.InDelta(t, 6378137.0, c.X, 1e-6)
		assert.InDelta(t, 0, c.Y, 1e-6)
		assert.InDelta(t, 0, c.Z, 1e-6)
	})

	t.Run("north pole lands on the semi-minor axis", func(t *testing.T) {
		c := ToCartesian(Geodetic{Lat: 90, Lon: 0, Alt: 0})
		assert.InDelta(t, 0, c.X, 1e-3)
		assert.InDelta(t, 0, c.Y, 1e-3)
		assert.InDelta(t, 6356752.314245, c.Z, 1e-3)
	})

	t.Run("altitude moves radially outward", func(t *testing.T) {
		ground := ToCartesian(Geodetic{Lat: 0, Lon: 90, Alt: 0})
		up := ToCartesian(Geodetic{Lat: 0, Lon: 90, Alt: 1000})
		assert.InDelta(t, 1000, up.Y-ground.Y, 1e-6)
	})

	t.Run("western longitude flips Y", func(t *testing.T) {
		c := ToCartesian(Geodetic{Lat: 33.98, Lon: -107.19, Alt: 3195})
		assert.Negative(t, c.X)
		assert.Negative(t, c.Y)
		assert.Positive(t, c.Z)
	})
}

func TestEuclideanDistance(t *testing.T) {
	a := Cartesian{X: 1, Y: 2, Z: 2}
	assert.InDelta(t, 3.0, EuclideanDistance(a, Cartesian{}), 1e-12)
	assert.Zero(t, EuclideanDistance(a, a))
	assert.Equal(t, EuclideanDistance(a, Cartesian{X: 5}), EuclideanDistance(Cartesian{X: 5}, a))
}

func TestGeodesicDistance(t *testing.T) {
	t.Run("one degree of longitude on the equator", func(t *testing.T) {
		d := GeodesicDistance(Geodetic{Lat: 0, Lon: 0}, Geodetic{Lat: 0, Lon: 1})
		assert.InDelta(t, 111319.491, d, 0.01)
	})

	t.Run("one degree of latitude on the meridian", func(t *testing.T) {
		d := GeodesicDistance(Geodetic{Lat: 0, Lon: 0}, Geodetic{Lat: 1, Lon: 0})
		assert.InDelta(t, 110574.389, d, 0.01)
	})

	t.Run("coincident points", func(t *testing.T) {
		p := Geodetic{Lat: 33.98, Lon: -107.19}
		assert.Zero(t, GeodesicDistance(p, p))
	})

	t.Run("symmetric", func(t *testing.T) {
		a := Geodetic{Lat: 33.98, Lon: -107.19}
		b := Geodetic{Lat: 34.02, Lon: -107.15}
		assert.InDelta(t, GeodesicDistance(a, b), GeodesicDistance(b, a), 1e-6)
	})

	t.Run("short baseline agrees with the straight line", func(t *testing.T) {
		// Across a few kilometers the ellipsoid arc and the chord agree to
		// well under a meter.
		a := Geodetic{Lat: 33.98, Lon: -107.19}
		b := Geodetic{Lat: 33.99, Lon: -107.19}
		chord := EuclideanDistance(ToCartesian(a), ToCartesian(b))
		assert.InDelta(t, chord, GeodesicDistance(a, b), 1.0)
	})

	t.Run("nearly antipodal points still produce a distance", func(t *testing.T) {
		d := GeodesicDistance(Geodetic{Lat: 0, Lon: 0}, Geodetic{Lat: 0.1, Lon: 179.8})
		assert.Greater(t, d, 19_000_000.0)
		assert.Less(t, d, 20_100_000.0)
	})
}
