package notify

import (
	"fmt"

	"campusattend/internal/attendance"
	"campusattend/internal/directory"
)

const bodyTemplate = `Dear Parent/Student,

This is to inform you that attendance for %s (PIN: %s) has been marked as PRESENT.

Timestamp: %s
Location Status: %s (%s)

Regards,
Mira Attendance System`

// Body renders the email text for a committed record.
func Body(rec attendance.Record, user directory.User) string {
	status, coords := "Unknown", "no coordinates"
	if rec.Location != nil {
		status = string(rec.Location.Status)
		if rec.Location.Coordinates != "" {
			coords = rec.Location.Coordinates
		}
	}
	return fmt.Sprintf(bodyTemplate, user.Name, user.PIN, stamp(rec), status, coords)
}

// ParentSubject is the subject of the parent email.
func ParentSubject(user directory.User) string {
	return "Attendance Marked for " + user.Name
}

// StudentSubject is the subject of the student email.
const StudentSubject = "Your Attendance has been Marked"

// MessageText is the prefilled messaging text. It carries the time of day
// only.
func MessageText(rec attendance.Record, user directory.User) string {
	return fmt.Sprintf("Attendance for %s (PIN: %s) has been marked PRESENT at %s.", user.Name, user.PIN, rec.Timestamp)
}

func stamp(rec attendance.Record) string {
	if rec.Timestamp == "" {
		return rec.Date
	}
	return rec.Date + " " + rec.Timestamp
}
