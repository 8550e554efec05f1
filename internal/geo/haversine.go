// Package geo provides great-circle distance between coordinates.
// Distances are recorded alongside attendance rows but nothing gates on
// them; a geofence policy would build on this.
package geo

import "math"

// earthRadiusMeters is the mean Earth radius.
const earthRadiusMeters = 6371e3

// Distance returns the haversine distance in meters between two points
// given in decimal degrees.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}
