package md

import (
	"time"
)

// Bar is a fixed-interval OHLC aggregate for one instrument. A bar is
// open from its first tick until the first tick of the next window
// closes it; closed bars are immutable.
//
// LastVolume is the cumulative-volume snapshot taken at bar open (the
// cumulative volume of the tick preceding the window). Volume is the
// delta against it, so consecutive bars partition the session volume
// with nothing lost at window boundaries.
type Bar struct {
	BarType      string // interval tag, e.g. "1m", "1h", "1d"
	TradingDay   string
	UpdateTime   string // wall-clock of the last tick applied
	InstrumentID string
	ExchangeID   string
	Volume       int64
	OpenInterest int64
	OpenPrice    float64
	HighestPrice float64
	LowestPrice  float64
	ClosePrice   float64
	LastVolume   int64
	Timestamp    time.Time // aligned window-open timestamp
}

// Day returns the storage partition day for the bar.
func (b *Bar) Day() string {
	if b.TradingDay != "" {
		return b.TradingDay
	}
	return FormatDay(b.Timestamp)
}
