// Package geo provides the coordinate conversions and distance helpers the
// decoder and correlator depend on: WGS-84 geodetic to Earth-centered
// Cartesian, geodesic (ellipsoidal) distance between sensor sites, and plain
// euclidean distance between Cartesian points.
package geo

import "math"

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0             // semi-major axis (meters)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84B  = wgs84A * (1 - wgs84F) // semi-minor axis (meters)
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// Geodetic is a WGS-84 position: latitude/longitude in degrees, altitude in
// meters above the ellipsoid.
type Geodetic struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

// Cartesian is an Earth-centered, Earth-fixed position in meters.
type Cartesian struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ToCartesian converts a geodetic position to ECEF coordinates.
func ToCartesian(g Geodetic) Cartesian {
	lat := g.Lat * math.Pi / 180.0
	lon := g.Lon * math.Pi / 180.0

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return Cartesian{
		X: (n + g.Alt) * cosLat * math.Cos(lon),
		Y: (n + g.Alt) * cosLat * math.Sin(lon),
		Z: (n*(1-wgs84E2) + g.Alt) * sinLat,
	}
}

// EuclideanDistance returns the straight-line distance in meters between two
// Cartesian points.
func EuclideanDistance(a, b Cartesian) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// GeodesicDistance returns the distance in meters between two geodetic
// positions along the WGS-84 ellipsoid surface, using Vincenty's inverse
// formula. Altitude is ignored. If the iteration fails to converge (nearly
// antipodal points) it falls back to the spherical great-circle distance.
func GeodesicDistance(a, b Geodetic) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dLon := (b.Lon - a.Lon) * math.Pi / 180.0

	u1 := math.Atan((1 - wgs84F) * math.Tan(lat1))
	u2 := math.Atan((1 - wgs84F) * math.Tan(lat2))
	sinU1, cosU1 := math.Sincos(u1)
	sinU2, cosU2 := math.Sincos(u2)

	lambda := dLon
	var sinSigma, cosSigma, sigma, cosSqAlpha, cos2SigmaM float64
	converged := false

	for i := 0; i < 200; i++ {
		sinLambda, cosLambda := math.Sincos(lambda)
		sinSigma = math.Sqrt(
			(cosU2*sinLambda)*(cosU2*sinLambda) +
				(cosU1*sinU2-sinU1*cosU2*cosLambda)*(cosU1*sinU2-sinU1*cosU2*cosLambda))
		if sinSigma == 0 {
			return 0 // coincident points
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)
		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cosSqAlpha = 1 - sinAlpha*sinAlpha
		if cosSqAlpha == 0 {
			cos2SigmaM = 0 // equatorial line
		} else {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cosSqAlpha
		}
		c := wgs84F / 16 * cosSqAlpha * (4 + wgs84F*(4-3*cosSqAlpha))
		prev := lambda
		lambda = dLon + (1-c)*wgs84F*sinAlpha*
			(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
		if math.Abs(lambda-prev) < 1e-12 {
			converged = true
			break
		}
	}
	if !converged {
		return greatCircleDistance(a, b)
	}

	uSq := cosSqAlpha * (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)
	bigA := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	bigB := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	deltaSigma := bigB * sinSigma * (cos2SigmaM + bigB/4*
		(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
			bigB/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))

	return wgs84B * bigA * (sigma - deltaSigma)
}

// greatCircleDistance is the spherical haversine distance using the WGS-84
// mean radius. Only used as the Vincenty non-convergence fallback.
func greatCircleDistance(a, b Geodetic) float64 {
	const meanRadius = 6371008.8

	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180.0

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * meanRadius * math.Asin(math.Sqrt(h))
}
