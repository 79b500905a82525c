package attendance

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"campusattend/internal/geofence"
)

// SQLRepository persists records in the attendance_records table. The
// UNIQUE (user_id, day) constraint makes Append safe across processes.
type SQLRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLRepository)(nil)

// NewSQLRepository creates a repo.
func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

const recordColumns = `id, user_id, day, status, clocked_at, location_status, coordinates`

// Get returns the record for (userID, date) or nil.
func (r *SQLRepository) Get(ctx context.Context, userID, date string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE user_id = $1 AND day = $2
	`, userID, date)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get record")
	}
	return &rec, nil
}

// Append inserts rec unless its key exists, then reads back the stored row.
func (r *SQLRepository) Append(ctx context.Context, rec Record) (Record, bool, error) {
	rec.ID = RecordID(rec.UserID, rec.Date)
	var locStatus, coords any
	if rec.Location != nil {
		locStatus = string(rec.Location.Status)
		if rec.Location.Coordinates != "" {
			coords = rec.Location.Coordinates
		}
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id, day) DO NOTHING
	`, rec.ID, rec.UserID, rec.Date, string(rec.Status), nullable(rec.Timestamp), locStatus, coords)
	if err != nil {
		return Record{}, false, errors.Wrap(err, "insert record")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Record{}, false, errors.Wrap(err, "insert record")
	}

	stored, err := r.Get(ctx, rec.UserID, rec.Date)
	if err != nil {
		return Record{}, false, err
	}
	if stored == nil {
		return Record{}, false, errors.Errorf("record %s inserted but not found", rec.ID)
	}
	return *stored, affected == 1, nil
}

// Query returns records matching f, most recent first.
func (r *SQLRepository) Query(ctx context.Context, f Filter) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records`
	args := []any{}
	clauses := []string{}
	if f.UserID != "" {
		args = append(args, f.UserID)
		clauses = append(clauses, "user_id = $"+strconv.Itoa(len(args)))
	}
	if f.Date != "" {
		args = append(args, f.Date)
		clauses = append(clauses, "day = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY day DESC, clocked_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query records")
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan record")
		}
		res = append(res, rec)
	}
	// NULL clocked_at sorts differently per driver; normalise here.
	sortRecent(res)
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (Record, error) {
	var (
		rec                          Record
		status                       string
		clockedAt, locStatus, coords sql.NullString
	)
	if err := s.Scan(&rec.ID, &rec.UserID, &rec.Date, &status, &clockedAt, &locStatus, &coords); err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	rec.Timestamp = clockedAt.String
	if locStatus.Valid {
		rec.Location = &Location{Status: geofence.Status(locStatus.String), Coordinates: coords.String}
	}
	return rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
