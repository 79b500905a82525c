package attendance

import (
	"math"
	"time"
)

// MonthStats counts the current month's days.
type MonthStats struct {
	Present     int `json:"present"`
	Absent      int `json:"absent"`
	DaysLeft    int `json:"days_left"`
	WorkingDays int `json:"working_days"`
}

// Summary condenses a user's history for the result view.
type Summary struct {
	OverallPercentage int        `json:"overall_percentage"`
	Trend             int        `json:"trend"`
	PresentDays       int        `json:"present_days"`
	WorkingDays       int        `json:"working_days"`
	Month             MonthStats `json:"month"`
}

// Summarize computes a Summary from history ordered most recent first.
// Trend is the present count of the latest 7 records minus that of the
// 7 before them.
func Summarize(history []Record, today time.Time) Summary {
	endOfMonth := time.Date(today.Year(), today.Month()+1, 0, 0, 0, 0, 0, today.Location())
	s := Summary{
		WorkingDays: len(history),
		Month:       MonthStats{DaysLeft: endOfMonth.Day() - today.Day()},
	}
	if len(history) == 0 {
		return s
	}

	byDate := make(map[string]Status, len(history))
	for _, r := range history {
		byDate[r.Date] = r.Status
		if r.Status == StatusPresent {
			s.PresentDays++
		}
	}
	s.OverallPercentage = int(math.Round(float64(s.PresentDays) / float64(len(history)) * 100))
	s.Trend = presentIn(history, 0, 7) - presentIn(history, 7, 14)

	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	for d := start; !d.After(endOfMonth); d = d.AddDate(0, 0, 1) {
		switch byDate[d.Format(DateLayout)] {
		case StatusPresent:
			s.Month.Present++
		case StatusAbsent:
			s.Month.Absent++
		}
	}
	s.Month.WorkingDays = s.Month.Present + s.Month.Absent
	return s
}

func presentIn(history []Record, from, to int) int {
	if from >= len(history) {
		return 0
	}
	if to > len(history) {
		to = len(history)
	}
	n := 0
	for _, r := range history[from:to] {
		if r.Status == StatusPresent {
			n++
		}
	}
	return n
}
