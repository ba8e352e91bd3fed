package testing

import (
	"testing"
	"time"

	"github.com/openfutures/tickd/md"
)

// Day is the fixture trading day used across storage tests.
const Day = "20251105"

// At builds a CST timestamp on the fixture trading day.
func At(t *testing.T, hhmmss string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("20060102 15:04:05", Day+" "+hhmmss, md.CST)
	if err != nil {
		t.Fatalf("bad fixture time %q: %v", hhmmss, err)
	}
	return ts
}

// AtDay builds a CST timestamp on an arbitrary trading day.
func AtDay(t *testing.T, day, hhmmss string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("20060102 15:04:05", day+" "+hhmmss, md.CST)
	if err != nil {
		t.Fatalf("bad fixture time %q %q: %v", day, hhmmss, err)
	}
	return ts
}

// Tick builds a storable tick with the fields the pipeline keys on.
func Tick(instrumentID, day string, ts time.Time, price float64, cumVolume int64) *md.Tick {
	return &md.Tick{
		TradingDay:   day,
		ExchangeID:   "SHFE",
		InstrumentID: instrumentID,
		LastPrice:    price,
		Volume:       cumVolume,
		OpenInterest: 1000,
		Turnover:     price * float64(cumVolume),
		UpdateTime:   ts.In(md.CST).Format("15:04:05"),
		ActionDay:    ts.In(md.CST).Format("20060102"),
		Timestamp:    ts,
	}
}

// Bar builds a storable bar for one interval window.
func Bar(instrumentID, day, interval string, ts time.Time, close float64, volume int64) *md.Bar {
	return &md.Bar{
		BarType:      interval,
		TradingDay:   day,
		UpdateTime:   ts.In(md.CST).Format("15:04:05"),
		InstrumentID: instrumentID,
		ExchangeID:   "SHFE",
		Volume:       volume,
		OpenInterest: 1000,
		OpenPrice:    close - 2,
		HighestPrice: close + 1,
		LowestPrice:  close - 3,
		ClosePrice:   close,
		LastVolume:   10,
		Timestamp:    ts,
	}
}
