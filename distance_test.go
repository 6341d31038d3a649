package vigil

import "testing"

func TestHaversineDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		expected               float64
	}{
		{"NYC to London", 40.7128, -74.0060, 51.5074, -0.1278, 5570},
		{"same point", 40.7128, -74.0060, 40.7128, -74.0060, 0},
		{"Sydney to Tokyo", -33.8688, 151.2093, 35.6762, 139.6503, 7820},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			distance := HaversineDistance(tt.lat1, tt.lng1, tt.lat2, tt.lng2)

			// Allow 1% margin of error
			margin := tt.expected * 0.01
			if distance < tt.expected-margin || distance > tt.expected+margin {
				t.Errorf("Expected distance ~%f km, got %f km", tt.expected, distance)
			}
		})
	}
}

func TestIsNewLocation(t *testing.T) {
	nyc := Location{IP: "1.2.3.4", City: "New York", Country: "United States", Latitude: 40.7128, Longitude: -74.0060}
	newark := Location{IP: "5.6.7.8", City: "Newark", Country: "United States", Latitude: 40.7357, Longitude: -74.1724}
	london := Location{IP: "9.9.9.9", City: "London", Country: "United Kingdom", Latitude: 51.5074, Longitude: -0.1278}

	if IsNewLocation(nyc, newark, 100) {
		t.Error("Newark is within 100 km of NYC, should not be a new location")
	}
	if !IsNewLocation(nyc, london, 100) {
		t.Error("London should be a new location relative to NYC")
	}
}

func TestIsNewLocationWithoutCoordinates(t *testing.T) {
	nycNoCoords := Location{IP: "1.2.3.4", City: "New York", Country: "United States"}
	londonNoCoords := Location{IP: "9.9.9.9", City: "London", Country: "United Kingdom"}
	nycAgain := Location{IP: "5.6.7.8", City: "New York", Country: "United States"}

	// Without coordinates, fall back to city/country comparison.
	if !IsNewLocation(nycNoCoords, londonNoCoords, 100) {
		t.Error("Different cities without coordinates should be a new location")
	}
	if IsNewLocation(nycNoCoords, nycAgain, 100) {
		t.Error("Same city without coordinates should not be a new location")
	}
}
