package capture

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"campusattend/internal/attendance"
	"campusattend/internal/device"
	"campusattend/internal/directory"
	"campusattend/internal/geofence"
	"campusattend/internal/metrics"
	"campusattend/internal/notify"
	"campusattend/internal/queue"
)

// Defaults for the simulated biometric steps and the geolocation bound.
const (
	DefaultAlignDelay    = 2500 * time.Millisecond
	DefaultLivenessDelay = 2000 * time.Millisecond
	DefaultGeoTimeout    = 10 * time.Second
)

// Result is what a finished capture shows to the operator.
type Result struct {
	Record  attendance.Record   `json:"record"`
	Created bool                `json:"created"`
	History []attendance.Record `json:"history"`
	Summary attendance.Summary  `json:"summary"`
	// DistanceKm is set when a position was obtained.
	DistanceKm *float64 `json:"distance_km,omitempty"`
	// LocationWarning is set when no position was obtained.
	LocationWarning string `json:"location_warning,omitempty"`
	MessagingLink   string `json:"messaging_link"`
}

// Pipeline holds the collaborators shared by all sessions.
type Pipeline struct {
	Camera     device.Camera
	Locator    device.Locator
	Fence      geofence.Fence
	Ledger     *attendance.Ledger
	Dispatcher *notify.Dispatcher
	// Events receives an attendance.marked message per commit. Optional.
	Events queue.Queue
	Clock  clockwork.Clock
	Log    *zap.Logger

	AlignDelay    time.Duration
	LivenessDelay time.Duration
	GeoTimeout    time.Duration
}

func (p *Pipeline) withDefaults() *Pipeline {
	cp := *p
	if cp.Clock == nil {
		cp.Clock = clockwork.NewRealClock()
	}
	if cp.Log == nil {
		cp.Log = zap.NewNop()
	}
	if cp.AlignDelay <= 0 {
		cp.AlignDelay = DefaultAlignDelay
	}
	if cp.LivenessDelay <= 0 {
		cp.LivenessDelay = DefaultLivenessDelay
	}
	if cp.GeoTimeout <= 0 {
		cp.GeoTimeout = DefaultGeoTimeout
	}
	return &cp
}

// Verify runs the Verifying phase for student: locate, classify, commit,
// notify, refresh history. Once the ledger commit succeeds cancellation of
// ctx no longer stops the remaining steps. The returned delivery is non-nil
// whenever notifications were started, even when err is set.
func (p *Pipeline) Verify(ctx context.Context, student directory.User) (*Result, *notify.Delivery, error) {
	log := p.Log.With(zap.String("user_id", student.ID), zap.String("pin", student.PIN))
	res := &Result{}

	coord := p.locate(ctx, log, res)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	cls := p.Fence.Classify(coord)
	loc := &attendance.Location{Status: cls.Status}
	if coord != nil {
		loc.Coordinates = geofence.FormatCoordinates(*coord)
		res.DistanceKm = cls.DistanceKm
	}

	date, ts := p.Ledger.Now()
	rec, created, err := p.Ledger.MarkPresent(ctx, student.ID, date, ts, loc)
	if err != nil {
		return nil, nil, err
	}
	res.Record, res.Created = rec, created
	if created {
		metrics.AttendanceMarked.WithLabelValues(string(cls.Status)).Inc()
	}

	// Past this point the record exists; nothing below is cancellable.
	committed := context.WithoutCancel(ctx)
	delivery := p.Dispatcher.Dispatch(committed, rec, student)
	res.MessagingLink = delivery.Link

	if p.Events != nil {
		if err := p.Events.Publish(committed, queue.NewMarked(student.ID, date)); err != nil {
			log.Warn("stats event publish failed", zap.Error(err))
		}
	}

	history, err := p.Ledger.History(committed, student.ID)
	if err != nil {
		return nil, delivery, err
	}
	res.History = history
	res.Summary = attendance.Summarize(history, p.Ledger.LocalTime())
	return res, delivery, nil
}

// locate asks for the position, bounded by GeoTimeout on the pipeline
// clock. Failures leave coord nil and set the warning.
func (p *Pipeline) locate(ctx context.Context, log *zap.Logger, res *Result) *geofence.Coordinate {
	geoCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	timer := p.Clock.AfterFunc(p.GeoTimeout, cancel)
	defer timer.Stop()

	pos, err := p.Locator.Locate(geoCtx)
	if err == nil {
		return &pos
	}
	if ctx.Err() != nil {
		return nil
	}
	res.LocationWarning = device.WarningFor(err)
	reason := "unknown"
	var le *device.LocationError
	if errors.As(err, &le) {
		reason = le.Failure.String()
	}
	metrics.GeolocationFailures.WithLabelValues(reason).Inc()
	log.Warn("could not get location", zap.Error(err))
	return nil
}
