package utils

import (
	"fmt"
	"time"
)

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// PrettyDate renders a timestamp for report headers and footers.
func PrettyDate(date time.Time) string {
	return fmt.Sprintf("%02d %s %d - %02d:%02d %s",
		date.Day(),
		date.Month().String(),
		date.Year(),
		date.Hour(),
		date.Minute(),
		date.Format("MST"),
	)
}

// FormatDuration renders a duration with one decimal of seconds, used
// in delivery footers.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
