package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeEmpty(t *testing.T) {
	today := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	s := Summarize(nil, today)
	assert.Equal(t, Summary{Month: MonthStats{DaysLeft: 13}}, s)
}

func TestSummarize(t *testing.T) {
	today := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	var history []Record
	// 16 days back from the 17th: the latest 7 all present, the previous 7 alternate.
	for i := 1; i <= 16; i++ {
		d := today.AddDate(0, 0, -i)
		status := StatusPresent
		if i > 7 && i%2 == 0 {
			status = StatusAbsent
		}
		history = append(history, Record{UserID: "u", Date: d.Format(DateLayout), Status: status})
	}

	s := Summarize(history, today)
	assert.Equal(t, 16, s.WorkingDays)
	assert.Equal(t, 11, s.PresentDays)
	assert.Equal(t, 69, s.OverallPercentage)
	// latest 7 present = 7, previous 7 (days 8..14) present = 3
	assert.Equal(t, 4, s.Trend)
	// October 2..17 all fall in the current month
	assert.Equal(t, 11, s.Month.Present)
	assert.Equal(t, 5, s.Month.Absent)
	assert.Equal(t, 16, s.Month.WorkingDays)
	assert.Equal(t, 13, s.Month.DaysLeft)
}
