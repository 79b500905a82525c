package geofence

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var campus = Coordinate{Latitude: 18.4550, Longitude: 79.5217}

// north returns the point km kilometres due north of c.
func north(c Coordinate, km float64) Coordinate {
	return Coordinate{Latitude: c.Latitude + km/EarthRadiusKm*180/math.Pi, Longitude: c.Longitude}
}

func TestClassifyCampusScenario(t *testing.T) {
	fence := Fence{Center: campus, RadiusKm: 0.5}

	same := fence.Classify(&Coordinate{Latitude: 18.4550, Longitude: 79.5217})
	assert.Equal(t, OnCampus, same.Status)
	require.NotNil(t, same.DistanceKm)
	assert.Zero(t, *same.DistanceKm)

	far := north(campus, 2)
	got := fence.Classify(&far)
	assert.Equal(t, OffCampus, got.Status)
	require.NotNil(t, got.DistanceKm)
	assert.InDelta(t, 2.0, *got.DistanceKm, 1e-6)
}

func TestClassifyWithoutPosition(t *testing.T) {
	got := Classify(nil, campus, 0.5)
	assert.Equal(t, OffCampus, got.Status)
	assert.Nil(t, got.DistanceKm)
}

func TestClassifyBoundaryIsInclusive(t *testing.T) {
	p := north(campus, 0.5)
	d := Distance(p, campus)

	assert.Equal(t, OnCampus, Classify(&p, campus, d).Status)
	assert.Equal(t, OffCampus, Classify(&p, campus, math.Nextafter(d, 0)).Status)
}

func TestDistanceSymmetric(t *testing.T) {
	points := []Coordinate{
		campus,
		{Latitude: 17.3850, Longitude: 78.4867},
		{Latitude: -33.8688, Longitude: 151.2093},
		{Latitude: 51.5074, Longitude: -0.1278},
	}
	for _, a := range points {
		for _, b := range points {
			assert.Equal(t, Distance(a, b), Distance(b, a))
		}
		assert.Zero(t, Distance(a, a))
	}
}

func TestDistanceKnownValue(t *testing.T) {
	// one degree of latitude on the 6371 km sphere
	d := Distance(Coordinate{Latitude: 0, Longitude: 0}, Coordinate{Latitude: 1, Longitude: 0})
	assert.InDelta(t, 111.195, d, 0.001)
}

func TestFormatCoordinates(t *testing.T) {
	assert.Equal(t, "18.4550, 79.5217", FormatCoordinates(campus))
}
