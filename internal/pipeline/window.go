package pipeline

import "time"

// Window is a report date range in the report location.
type Window struct {
	Start time.Time
	End   time.Time
}

// Layouts used on the wire and in report text.
const (
	layoutISO      = "2006-01-02T15:04:05" // naive ISO timestamp, no zone
	layoutDate     = "2006-01-02"
	layoutSubject  = "01-02-2006"
	layoutSlashed  = "01/02/2006"
	layoutMonthYr  = "January-2006"
	layoutHeaderMY = "January, 2006"
)

// midnight truncates t to 00:00 in t's own location.
func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DailyWindow returns [yesterday 00:00, today 00:00) relative to now.
// Calendar arithmetic keeps the bounds on midnight across DST changes.
func DailyWindow(now time.Time) Window {
	end := midnight(now)
	y, m, d := end.Date()
	return Window{
		Start: time.Date(y, m, d-1, 0, 0, 0, 0, end.Location()),
		End:   end,
	}
}

// PreviousMonth returns the first and last day (both inclusive, at 00:00)
// of the calendar month before now.
func PreviousMonth(now time.Time) Window {
	y, m, _ := now.Date()
	firstOfThis := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	return Window{
		Start: firstOfThis.AddDate(0, -1, 0),
		End:   firstOfThis.AddDate(0, 0, -1),
	}
}

// InvoicedDate returns the given day of now's month.
func InvoicedDate(now time.Time, day int) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, now.Location())
}
