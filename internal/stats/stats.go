package stats

import (
	"context"
	"math"

	"campusattend/internal/apperr"
	"campusattend/internal/attendance"
	"campusattend/internal/directory"
)

// Daily is the attendance headcount of one day over the student roster.
type Daily struct {
	Date              string `json:"date"`
	TotalStudents     int    `json:"total_students"`
	PresentCount      int    `json:"present_count"`
	AbsentCount       int    `json:"absent_count"`
	PresentPercentage int    `json:"present_percentage"`
}

// RecordSource is the part of the ledger the aggregator reads.
type RecordSource interface {
	ByDate(ctx context.Context, date string) ([]attendance.Record, error)
}

// Aggregator computes daily stats from the ledger on every call.
type Aggregator struct {
	dir    directory.Directory
	ledger RecordSource
}

func NewAggregator(dir directory.Directory, ledger RecordSource) *Aggregator {
	return &Aggregator{dir: dir, ledger: ledger}
}

// DailyStats counts students present on date. Other roles are ignored
// in both numerator and denominator.
func (a *Aggregator) DailyStats(ctx context.Context, date string) (Daily, error) {
	students, err := a.dir.ListByRole(ctx, directory.RoleStudent)
	if err != nil {
		return Daily{}, apperr.Persistence("stats.list_students", err)
	}
	recs, err := a.ledger.ByDate(ctx, date)
	if err != nil {
		return Daily{}, err
	}
	return Compute(date, students, recs), nil
}

// Compute derives the stats of date from a roster and that day's records.
func Compute(date string, students []directory.User, recs []attendance.Record) Daily {
	roster := make(map[string]struct{}, len(students))
	for _, s := range students {
		if s.IsStudent() {
			roster[s.ID] = struct{}{}
		}
	}
	present := make(map[string]struct{})
	for _, r := range recs {
		if r.Status != attendance.StatusPresent {
			continue
		}
		if _, ok := roster[r.UserID]; ok {
			present[r.UserID] = struct{}{}
		}
	}

	d := Daily{
		Date:          date,
		TotalStudents: len(roster),
		PresentCount:  len(present),
	}
	d.AbsentCount = d.TotalStudents - d.PresentCount
	if d.TotalStudents > 0 {
		d.PresentPercentage = int(math.Round(100 * float64(d.PresentCount) / float64(d.TotalStudents)))
	}
	return d
}
