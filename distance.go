package vigil

import "math"

const earthRadiusKM = 6371.0

// HaversineDistance calculates the distance in kilometers between two
// geographic coordinates using the Haversine formula.
func HaversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := radians(lat1)
	lat2Rad := radians(lat2)
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// IsNewLocation returns true if the distance between two locations exceeds
// the given threshold in kilometers. Locations without coordinates are
// compared by city and country instead.
func IsNewLocation(prev, curr Location, thresholdKM float64) bool {
	if noCoordinates(prev) || noCoordinates(curr) {
		return prev.City != curr.City || prev.Country != curr.Country
	}

	distance := HaversineDistance(
		prev.Latitude, prev.Longitude,
		curr.Latitude, curr.Longitude,
	)

	return distance > thresholdKM
}

func noCoordinates(loc Location) bool {
	return loc.Latitude == 0 && loc.Longitude == 0
}
