package device

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"campusattend/internal/geofence"
)

// Stream is a live camera feed. Stop releases the device and is safe to
// call more than once.
type Stream interface {
	ID() string
	Stop()
}

// Camera acquires the capture device.
type Camera interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Locator reports the kiosk position.
type Locator interface {
	Locate(ctx context.Context) (geofence.Coordinate, error)
}

// LocationFailure tells why no position could be obtained.
type LocationFailure int

const (
	LocationPermissionDenied LocationFailure = iota + 1
	LocationUnavailable
	LocationTimeout
)

// LocationError is a non-fatal geolocation failure.
type LocationError struct {
	Failure LocationFailure
	Err     error
}

func (e *LocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geolocation %s: %v", e.Failure, e.Err)
	}
	return "geolocation " + e.Failure.String()
}

func (e *LocationError) Unwrap() error { return e.Err }

func (f LocationFailure) String() string {
	switch f {
	case LocationPermissionDenied:
		return "permission denied"
	case LocationUnavailable:
		return "position unavailable"
	case LocationTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Warning is the message shown to the operator when the position is missing.
func (f LocationFailure) Warning() string {
	switch f {
	case LocationPermissionDenied:
		return "Location access was denied. Marking attendance without location."
	case LocationUnavailable:
		return "Location information is unavailable. Marking attendance without location."
	case LocationTimeout:
		return "The request to get user location timed out. Marking attendance without location."
	default:
		return "Could not get location. Marking attendance without it."
	}
}

// WarningFor maps any Locate error to its operator warning.
func WarningFor(err error) string {
	var le *LocationError
	if errors.As(err, &le) {
		return le.Failure.Warning()
	}
	return LocationFailure(0).Warning()
}
