package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"insight-reports/internal/dto"
	"insight-reports/internal/model"
	"insight-reports/pkg/utils"
)

// Spec is the recurrence definition attached to a report. All
// calculations happen in its configured timezone.
type Spec struct {
	Frequency  model.ReportFrequency
	TimeOfDay  string // "HH:MM"
	Timezone   string
	DayOfWeek  int // weekly only, 0=Sunday
	DayOfMonth int // monthly only, 1..31
}

// Validate rejects malformed specs before they ever reach the checker.
func (s Spec) Validate() error {
	switch s.Frequency {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly:
	default:
		return &dto.ValidationError{Field: "frequency", Detail: fmt.Sprintf("unknown frequency %q", s.Frequency)}
	}

	if _, _, err := parseTimeOfDay(s.TimeOfDay); err != nil {
		return &dto.ValidationError{Field: "time_of_day", Detail: err.Error()}
	}

	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return &dto.ValidationError{Field: "timezone", Detail: fmt.Sprintf("unknown timezone %q", s.Timezone)}
	}

	if s.Frequency == model.FrequencyWeekly && (s.DayOfWeek < 0 || s.DayOfWeek > 6) {
		return &dto.ValidationError{Field: "day_of_week", Detail: "must be between 0 (Sunday) and 6 (Saturday)"}
	}

	if s.Frequency == model.FrequencyMonthly && (s.DayOfMonth < 1 || s.DayOfMonth > 31) {
		return &dto.ValidationError{Field: "day_of_month", Detail: "must be between 1 and 31"}
	}

	return nil
}

// NextRun returns the next trigger instant strictly after from.
// Monthly schedules whose day-of-month exceeds the target month's
// length clamp to that month's last day.
func NextRun(s Spec, from time.Time) (time.Time, error) {
	if err := s.Validate(); err != nil {
		return time.Time{}, err
	}

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := parseTimeOfDay(s.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	local := from.In(loc)

	switch s.Frequency {
	case model.FrequencyDaily:
		candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if !candidate.After(from) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, nil

	case model.FrequencyWeekly:
		for offset := 0; offset <= 7; offset++ {
			day := local.AddDate(0, 0, offset)
			if int(day.Weekday()) != s.DayOfWeek {
				continue
			}
			candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
			if candidate.After(from) {
				return candidate, nil
			}
		}
		// Unreachable: a 8-day window always contains the target weekday
		// with a time-of-day strictly after from.
		return time.Time{}, fmt.Errorf("no weekly occurrence found after %s", from)

	case model.FrequencyMonthly:
		candidate := monthlyOccurrence(local.Year(), local.Month(), s.DayOfMonth, hour, minute, loc)
		if !candidate.After(from) {
			year, month := local.Year(), local.Month()
			if month == time.December {
				year, month = year+1, time.January
			} else {
				month++
			}
			candidate = monthlyOccurrence(year, month, s.DayOfMonth, hour, minute, loc)
		}
		return candidate, nil
	}

	return time.Time{}, fmt.Errorf("unknown frequency %q", s.Frequency)
}

func monthlyOccurrence(year int, month time.Month, dayOfMonth, hour, minute int, loc *time.Location) time.Time {
	day := dayOfMonth
	if last := utils.DaysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, hour, minute, 0, 0, loc)
}

func parseTimeOfDay(value string) (hour, minute int, err error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time of day %q is not in HH:MM format", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("hour %q out of range", parts[0])
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute %q out of range", parts[1])
	}
	return hour, minute, nil
}

// FromReport builds a Spec from a persisted report row.
func FromReport(report *model.ScheduledReport) Spec {
	s := Spec{
		Frequency: report.Frequency,
		TimeOfDay: report.TimeOfDay,
		Timezone:  report.Timezone,
	}
	if report.DayOfWeek.Valid {
		s.DayOfWeek = int(report.DayOfWeek.Int32)
	}
	if report.DayOfMonth.Valid {
		s.DayOfMonth = int(report.DayOfMonth.Int32)
	}
	return s
}
