// Package geo provides great-circle distance math for the teacher radius
// search.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for distance conversion.
const EarthRadiusKm = 6371.0088

// kmPerDegreeLat approximates the length of one degree of latitude.
const kmPerDegreeLat = 111.32

// Distance returns the great-circle distance in kilometres between two
// points using the spherical law of cosines. The cosine of the central
// angle is clamped to [-1, 1] to guard acos against floating-point
// round-off.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	rLat1 := lat1 * math.Pi / 180
	rLng1 := lng1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180
	rLng2 := lng2 * math.Pi / 180

	cosAngle := math.Sin(rLat1)*math.Sin(rLat2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Cos(rLng2-rLng1)
	cosAngle = math.Max(-1, math.Min(1, cosAngle))

	return EarthRadiusKm * math.Acos(cosAngle)
}

// BoundingBox is an axis-aligned latitude/longitude box.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// BoxAround returns a bounding box containing every point within radiusKm of
// the centre. The box is a cheap prefilter; exact filtering still requires
// Distance. Near the poles, where the longitude correction degenerates, the
// longitude delta falls back to the full 180 degrees.
func BoxAround(lat, lng, radiusKm float64) BoundingBox {
	latDelta := radiusKm / kmPerDegreeLat

	cosLat := math.Cos(lat * math.Pi / 180)
	lngDelta := 180.0
	if math.Abs(cosLat) > 1e-12 {
		lngDelta = radiusKm / (kmPerDegreeLat * cosLat)
	}

	return BoundingBox{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
		MinLng: lng - lngDelta,
		MaxLng: lng + lngDelta,
	}
}
