package timecalc

import (
	"fmt"
	"time"
)

// DateLayout is the day format used on cards and in reports.
const DateLayout = "02/01/2006"

// FormatDuration formats seconds as a human-readable string like "1h 40m" or "45m" or "30s".
func FormatDuration(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatMinutes formats a minute count the way FormatDuration does.
func FormatMinutes(minutes int) string {
	if minutes <= 0 {
		return "0m"
	}
	return FormatDuration(int64(minutes) * 60)
}

// FormatDurationHHMMSS formats seconds as HH:MM:SS.
func FormatDurationHHMMSS(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Unix converts Unix seconds to a time in loc.
func Unix(sec int64, loc *time.Location) time.Time {
	return time.Unix(sec, 0).In(loc)
}

// FormatDate renders Unix seconds as a day in loc.
func FormatDate(sec int64, loc *time.Location) string {
	return Unix(sec, loc).Format(DateLayout)
}

// FormatPeriod renders a start/end pair. A nil end is an ongoing period.
func FormatPeriod(start int64, end *int64, loc *time.Location) string {
	if end == nil {
		return FormatDate(start, loc) + " - ongoing"
	}
	return FormatDate(start, loc) + " - " + FormatDate(*end, loc)
}

// WeekRange returns the Monday and Sunday of the ISO week containing t.
func WeekRange(t time.Time) (time.Time, time.Time) {
	// Go's weekday: Sunday=0, Monday=1, ..., Saturday=6
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	monday := StartOfDay(t.AddDate(0, 0, -(wd - 1)))
	sunday := EndOfDay(monday.AddDate(0, 0, 6))
	return monday, sunday
}

// ISOWeekLabel returns a label like "2026-W09".
func ISOWeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// StartOfDay returns 00:00:00 of the same day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59 of the same day.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
