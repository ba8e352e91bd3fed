package md

import (
	"time"
)

// DepthLevels is the bid/ask ladder depth carried on every tick.
const DepthLevels = 5

// Tick is a single market-quote update for one instrument. Field names
// match the hot-store column names one to one; the writers rely on that
// correspondence when building SQL and CSV rows.
//
// Volume is the session-cumulative traded volume, not a delta. Bar
// generators compute window volume from consecutive cumulative values.
type Tick struct {
	TradingDay         string
	ExchangeID         string
	LastPrice          float64
	PreSettlementPrice float64
	PreClosePrice      float64
	PreOpenInterest    int64
	OpenPrice          float64
	HighestPrice       float64
	LowestPrice        float64
	Volume             int64
	Turnover           float64
	OpenInterest       int64
	ClosePrice         float64
	SettlementPrice    float64
	UpperLimitPrice    float64
	LowerLimitPrice    float64
	PreDelta           float64
	CurrDelta          float64
	UpdateTime         string // wall-clock "HH:MM:SS" as delivered
	UpdateMillisec     int
	BidPrice           [DepthLevels]float64
	BidVolume          [DepthLevels]int64
	AskPrice           [DepthLevels]float64
	AskVolume          [DepthLevels]int64
	AveragePrice       float64
	ActionDay          string // calendar day of the quote, "YYYYMMDD"
	InstrumentID       string
	ExchangeInstID     string
	BandingUpperPrice  float64
	BandingLowerPrice  float64
	Timestamp          time.Time
}

// Valid reports whether the tick can drive bar synthesis and storage:
// it needs a usable last price and a timestamp. Invalid ticks are
// dropped at entry points with a warning.
func (t *Tick) Valid() bool {
	return t != nil && t.LastPrice != 0 && !t.Timestamp.IsZero() && t.InstrumentID != ""
}

// Day returns the storage partition day for the tick: the trading day
// when present, otherwise the calendar day of the timestamp.
func (t *Tick) Day() string {
	if t.TradingDay != "" {
		return t.TradingDay
	}
	return FormatDay(t.Timestamp)
}
