package attendance

import (
	"sort"
	"time"

	"campusattend/internal/geofence"
)

const (
	// DateLayout is the calendar-day format used as part of the natural key.
	DateLayout = "2006-01-02"
	// TimeLayout is the time-of-day format stored on Present records.
	TimeLayout = "15:04:05"
)

// Status of a user on a given day.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
)

// Location qualifies a Present record with the geofence outcome.
type Location struct {
	Status      geofence.Status `json:"status"`
	Coordinates string          `json:"coordinates,omitempty"`
}

// Record is one user's attendance on one day.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"`
	Status    Status    `json:"status"`
	Timestamp string    `json:"timestamp,omitempty"`
	Location  *Location `json:"location,omitempty"`
}

// RecordID derives the record id from its natural key.
func RecordID(userID, date string) string {
	return userID + "-" + date
}

// FormatDate renders t as a calendar day.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// ValidDate reports whether s is a calendar day in DateLayout.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// sortRecent orders records most recent first.
func sortRecent(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Date != recs[j].Date {
			return recs[i].Date > recs[j].Date
		}
		return recs[i].Timestamp > recs[j].Timestamp
	})
}
