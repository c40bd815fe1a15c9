package analytics

import "time"

const (
	dayLayout  = "2006-01-02"
	hourLayout = "15"
)

// RevenueTimestamp selects the instant an order counts toward analytics.
// Order of preference is paidAt → fallback.
func RevenueTimestamp(paidAt *time.Time, fallback time.Time) time.Time {
	if paidAt != nil && !paidAt.IsZero() {
		return *paidAt
	}
	return fallback
}

// DayKey returns the calendar day of t in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayLayout)
}

// HourKey returns the zero-padded hour of t in loc.
func HourKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(hourLayout)
}

// ParseDay validates a YYYY-MM-DD day key.
func ParseDay(value string) (string, error) {
	day, err := time.Parse(dayLayout, value)
	if err != nil {
		return "", err
	}
	return day.Format(dayLayout), nil
}
