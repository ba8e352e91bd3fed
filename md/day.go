package md

import (
	"time"

	"github.com/openfutures/tickd/errors"
)

// dayLayout is the trading-day wire format used everywhere: file names,
// partition keys, tick fields.
const dayLayout = "20060102"

// TradingDaySkewDays bounds how far a row's trading day can run ahead
// of its timestamp's calendar date. A Friday night-session tick is
// stamped Friday but belongs to Monday's trading day, so readers that
// pick candidate partitions from calendar dates must look this many
// days past the range end. Covers a weekend plus an adjacent holiday.
const TradingDaySkewDays = 5

// FormatDay renders a time as a YYYYMMDD day string in the exchange zone.
func FormatDay(t time.Time) string {
	return t.In(CST).Format(dayLayout)
}

// ParseDay parses a YYYYMMDD day string to midnight exchange time.
func ParseDay(day string) (time.Time, error) {
	t, err := time.ParseInLocation(dayLayout, day, CST)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse trading day %q", day)
	}
	return t, nil
}

// Today returns the current local date in the exchange zone, formatted
// as a trading day. Used as the fallback when no session event has
// supplied the real trading day.
func Today() string {
	return FormatDay(time.Now())
}

// DayRange lists every day string from start to end inclusive.
// Returns nil if either bound fails to parse or start is after end.
func DayRange(start, end string) []string {
	s, err := ParseDay(start)
	if err != nil {
		return nil
	}
	e, err := ParseDay(end)
	if err != nil {
		return nil
	}
	if s.After(e) {
		return nil
	}
	var days []string
	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(dayLayout))
	}
	return days
}
