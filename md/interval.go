package md

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openfutures/tickd/errors"
)

// intervalUnit distinguishes intraday windows (aligned by wall-clock
// slot) from session windows (aligned by trading day).
type intervalUnit int

const (
	unitMinute intervalUnit = iota
	unitDay
	unitWeek
	unitMonth
	unitYear
)

// Interval is a parsed bar-window tag. The zero value is invalid; use
// ParseInterval.
type Interval struct {
	tag     string
	unit    intervalUnit
	minutes int // window length for intraday intervals
}

// minuteTags is the full set of supported intraday tags. Hour tags are
// minute windows in disguise (1h ⇒ 60m).
var minuteTags = map[string]int{
	"1m": 1, "3m": 3, "5m": 5, "8m": 8, "10m": 10, "13m": 13,
	"15m": 15, "21m": 21, "30m": 30, "34m": 34, "55m": 55, "60m": 60,
	"89m": 89, "120m": 120, "144m": 144, "180m": 180, "240m": 240,
	"1h": 60,
}

// ParseInterval parses a bar interval tag. Unknown tags are an error;
// the daemon treats them as fatal at startup.
func ParseInterval(tag string) (Interval, error) {
	if m, ok := minuteTags[tag]; ok {
		return Interval{tag: tag, unit: unitMinute, minutes: m}, nil
	}
	switch tag {
	case "1d":
		return Interval{tag: tag, unit: unitDay, minutes: 24 * 60}, nil
	case "1w":
		return Interval{tag: tag, unit: unitWeek}, nil
	case "1M":
		return Interval{tag: tag, unit: unitMonth}, nil
	case "1y":
		return Interval{tag: tag, unit: unitYear}, nil
	}
	return Interval{}, errors.Wrapf(errors.ErrUnknownInterval, "%q", tag)
}

// MustInterval is ParseInterval for tags known at compile time (tests,
// defaults). Panics on unknown tags.
func MustInterval(tag string) Interval {
	iv, err := ParseInterval(tag)
	if err != nil {
		panic(err)
	}
	return iv
}

// SupportedIntervals returns every accepted tag, intraday first.
func SupportedIntervals() []string {
	return []string{
		"1m", "3m", "5m", "8m", "10m", "13m", "15m", "21m", "30m", "34m",
		"55m", "60m", "89m", "120m", "144m", "180m", "240m",
		"1h", "1d", "1w", "1M", "1y",
	}
}

// Tag returns the canonical tag string.
func (iv Interval) Tag() string { return iv.tag }

// Minutes returns the window length in minutes for intraday and day
// intervals, 0 for week and larger.
func (iv Interval) Minutes() int { return iv.minutes }

// Intraday reports whether the window is aligned by wall-clock slot.
func (iv Interval) Intraday() bool { return iv.unit == unitMinute }

// SlotKey identifies the window a tick belongs to. Two ticks share a
// window iff their slot keys are equal.
//
// Intraday windows key on the tick's calendar date plus the absolute
// minute slot, so a stale open bar can never swallow the same slot on
// a later day. Session windows key on the trading day: the day itself,
// its ISO week, its month, or its year.
func (iv Interval) SlotKey(ts time.Time, tradingDay string) string {
	switch iv.unit {
	case unitMinute:
		ts = ts.In(CST)
		slot := (ts.Hour()*60 + ts.Minute()) / iv.minutes
		return ts.Format("20060102") + "/" + strconv.Itoa(slot)
	case unitDay:
		return dayOrFallback(tradingDay, ts)
	case unitWeek:
		d := dayTime(tradingDay, ts)
		year, week := d.ISOWeek()
		return fmt.Sprintf("%04dW%02d", year, week)
	case unitMonth:
		return dayOrFallback(tradingDay, ts)[:6]
	case unitYear:
		return dayOrFallback(tradingDay, ts)[:4]
	}
	return ""
}

// OpenTime computes the aligned window-open timestamp for a tick.
// anchorMinutes positions session bars within their day (540 = 09:00);
// intraday bars open at the start of their slot.
func (iv Interval) OpenTime(ts time.Time, tradingDay string, anchorMinutes int) time.Time {
	if iv.unit == unitMinute {
		ts = ts.In(CST)
		slot := (ts.Hour()*60 + ts.Minute()) / iv.minutes
		openMin := slot * iv.minutes
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, CST)
		return day.Add(time.Duration(openMin) * time.Minute)
	}
	d := dayTime(tradingDay, ts)
	return d.Add(time.Duration(anchorMinutes) * time.Minute)
}

// dayOrFallback returns the trading day string, or the calendar day of
// ts when the tick carries none.
func dayOrFallback(tradingDay string, ts time.Time) string {
	if len(tradingDay) == 8 {
		return tradingDay
	}
	return FormatDay(ts)
}

// dayTime parses the trading day to midnight CST, falling back to the
// tick's own calendar date.
func dayTime(tradingDay string, ts time.Time) time.Time {
	if d, err := ParseDay(tradingDay); err == nil {
		return d
	}
	ts = ts.In(CST)
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, CST)
}

// ParseIntervals parses a config list of tags, rejecting duplicates.
func ParseIntervals(tags []string) ([]Interval, error) {
	seen := make(map[string]bool, len(tags))
	out := make([]Interval, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if seen[tag] {
			continue
		}
		iv, err := ParseInterval(tag)
		if err != nil {
			return nil, err
		}
		seen[tag] = true
		out = append(out, iv)
	}
	return out, nil
}
