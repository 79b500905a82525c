package attendance

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"campusattend/internal/apperr"
)

// Ledger enforces at most one record per (user, day). It is the only
// shared mutable resource of the capture pipeline.
type Ledger struct {
	repo   Repository
	clock  clockwork.Clock
	loc    *time.Location
	log    *zap.Logger
	flight singleflight.Group
}

type markResult struct {
	rec     Record
	created bool
	// claimed hands the created flag to exactly one of the callers
	// sharing this result.
	claimed *atomic.Bool
}

// NewLedger creates a ledger backed by repo. Calendar days are computed
// in loc.
func NewLedger(repo Repository, clock clockwork.Clock, loc *time.Location, log *zap.Logger) *Ledger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{repo: repo, clock: clock, loc: loc, log: log}
}

// LocalTime returns the current instant in the campus time zone.
func (l *Ledger) LocalTime() time.Time {
	return l.clock.Now().In(l.loc)
}

// Now returns the current calendar day and time of day.
func (l *Ledger) Now() (date, timestamp string) {
	now := l.LocalTime()
	return now.Format(DateLayout), now.Format(TimeLayout)
}

// Today returns the current calendar day.
func (l *Ledger) Today() string {
	d, _ := l.Now()
	return d
}

// MarkPresent commits a Present record for (userID, date). When one
// already exists it is returned unchanged and created is false.
// Concurrent calls for the same key share a single check-then-write.
func (l *Ledger) MarkPresent(ctx context.Context, userID, date, timestamp string, loc *Location) (Record, bool, error) {
	const op = "ledger.mark_present"
	if userID == "" {
		return Record{}, false, apperr.Invalid(op, "user id required")
	}
	if !ValidDate(date) {
		return Record{}, false, apperr.Invalid(op, "date must be YYYY-MM-DD")
	}

	key := RecordID(userID, date)
	// The write is shared by every caller of this key, so it must not end
	// when only one of them is cancelled.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := l.flight.Do(key, func() (interface{}, error) {
		existing, err := l.repo.Get(flightCtx, userID, date)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return markResult{rec: *existing, claimed: new(atomic.Bool)}, nil
		}
		stored, created, err := l.repo.Append(flightCtx, Record{
			UserID:    userID,
			Date:      date,
			Status:    StatusPresent,
			Timestamp: timestamp,
			Location:  loc,
		})
		if err != nil {
			return nil, err
		}
		return markResult{rec: stored, created: created, claimed: new(atomic.Bool)}, nil
	})
	if err != nil {
		l.log.Error("attendance commit failed", zap.String("user_id", userID), zap.String("date", date), zap.Error(err))
		return Record{}, false, apperr.Persistence(op, err)
	}
	res := v.(markResult)
	created := res.created && res.claimed.CompareAndSwap(false, true)
	if created {
		l.log.Info("attendance marked",
			zap.String("user_id", userID),
			zap.String("date", date),
			zap.String("timestamp", res.rec.Timestamp))
	}
	return *cloneRecord(res.rec), created, nil
}

// History returns every record of userID, most recent first.
func (l *Ledger) History(ctx context.Context, userID string) ([]Record, error) {
	recs, err := l.repo.Query(ctx, Filter{UserID: userID})
	if err != nil {
		return nil, apperr.Persistence("ledger.history", err)
	}
	return recs, nil
}

// ByDate returns the roster-wide records of one day.
func (l *Ledger) ByDate(ctx context.Context, date string) ([]Record, error) {
	if !ValidDate(date) {
		return nil, apperr.Invalid("ledger.by_date", "date must be YYYY-MM-DD")
	}
	recs, err := l.repo.Query(ctx, Filter{Date: date})
	if err != nil {
		return nil, apperr.Persistence("ledger.by_date", err)
	}
	return recs, nil
}

// Backfill appends historical rows written by the seed process. Keys that
// already exist are left untouched. It returns how many rows were created.
func (l *Ledger) Backfill(ctx context.Context, recs []Record) (int, error) {
	n := 0
	for _, rec := range recs {
		_, created, err := l.repo.Append(ctx, rec)
		if err != nil {
			return n, apperr.Persistence("ledger.backfill", err)
		}
		if created {
			n++
		}
	}
	return n, nil
}
