package geofence

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean radius of the spherical Earth model.
const EarthRadiusKm = 6371.0

// Status is the geofence outcome attached to an attendance record.
type Status string

const (
	OnCampus  Status = "On-Campus"
	OffCampus Status = "Off-Campus"
)

// Coordinate is a WGS-84 position in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Classification is the result of Classify. DistanceKm is nil when no
// position was available.
type Classification struct {
	Status     Status   `json:"status"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// Fence is a circular boundary around a reference coordinate.
type Fence struct {
	Center   Coordinate
	RadiusKm float64
}

// Classify places coord relative to the fence.
func (f Fence) Classify(coord *Coordinate) Classification {
	return Classify(coord, f.Center, f.RadiusKm)
}

// Classify reports whether coord lies within radiusKm of center. A nil
// coordinate is Off-Campus with no distance. The boundary is inclusive.
func Classify(coord *Coordinate, center Coordinate, radiusKm float64) Classification {
	if coord == nil {
		return Classification{Status: OffCampus}
	}
	d := Distance(*coord, center)
	status := OffCampus
	if d <= radiusKm {
		status = OnCampus
	}
	return Classification{Status: status, DistanceKm: &d}
}

// Distance returns the great-circle distance between a and b in km.
func Distance(a, b Coordinate) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// FormatCoordinates renders a position the way it is stored on records.
func FormatCoordinates(c Coordinate) string {
	return fmt.Sprintf("%.4f, %.4f", c.Latitude, c.Longitude)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
