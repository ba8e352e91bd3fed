// Package appendlog is the per-contract CSV tier: a line-oriented,
// human-readable backup of every tick and bar, written by a fixed pool
// of sharded workers. It exists so the hot tier is never the only copy
// of a row, and it degrades to direct file writes under overload
// rather than dropping data.
package appendlog

import (
	"strconv"
	"time"

	"github.com/openfutures/tickd/md"
)

// csvTimeLayout renders the timestamp column. It doubles as the
// post-session dedup key, so it carries millisecond precision.
const csvTimeLayout = "2006-01-02 15:04:05.000"

// tickHeader mirrors the hot tick table column order; the CSV files
// and the SQL tables describe the same rows.
var tickHeader = []string{
	"TradingDay", "ExchangeID", "LastPrice", "PreSettlementPrice",
	"PreClosePrice", "PreOpenInterest", "OpenPrice", "HighestPrice",
	"LowestPrice", "Volume", "Turnover", "OpenInterest", "ClosePrice",
	"SettlementPrice", "UpperLimitPrice", "LowerLimitPrice", "PreDelta",
	"CurrDelta", "UpdateTime", "UpdateMillisec",
	"BidPrice1", "BidPrice2", "BidPrice3", "BidPrice4", "BidPrice5",
	"BidVolume1", "BidVolume2", "BidVolume3", "BidVolume4", "BidVolume5",
	"AskPrice1", "AskPrice2", "AskPrice3", "AskPrice4", "AskPrice5",
	"AskVolume1", "AskVolume2", "AskVolume3", "AskVolume4", "AskVolume5",
	"AveragePrice", "ActionDay", "InstrumentID", "ExchangeInstID",
	"BandingUpperPrice", "BandingLowerPrice", "Timestamp",
}

// barHeader mirrors the hot bar table column order.
var barHeader = []string{
	"BarType", "TradingDay", "UpdateTime", "InstrumentID", "ExchangeID",
	"Volume", "OpenInterest", "OpenPrice", "HighestPrice", "LowestPrice",
	"ClosePrice", "LastVolume", "Timestamp",
}

func f(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
func i(v int64) string   { return strconv.FormatInt(v, 10) }

func csvTime(ts time.Time) string {
	return ts.In(md.CST).Format(csvTimeLayout)
}

// tickRecord lays a tick out in header order.
func tickRecord(t *md.Tick) []string {
	rec := make([]string, 0, len(tickHeader))
	rec = append(rec,
		t.TradingDay, t.ExchangeID, f(t.LastPrice), f(t.PreSettlementPrice),
		f(t.PreClosePrice), i(t.PreOpenInterest), f(t.OpenPrice), f(t.HighestPrice),
		f(t.LowestPrice), i(t.Volume), f(t.Turnover), i(t.OpenInterest), f(t.ClosePrice),
		f(t.SettlementPrice), f(t.UpperLimitPrice), f(t.LowerLimitPrice), f(t.PreDelta),
		f(t.CurrDelta), t.UpdateTime, strconv.Itoa(t.UpdateMillisec))
	for _, p := range t.BidPrice {
		rec = append(rec, f(p))
	}
	for _, v := range t.BidVolume {
		rec = append(rec, i(v))
	}
	for _, p := range t.AskPrice {
		rec = append(rec, f(p))
	}
	for _, v := range t.AskVolume {
		rec = append(rec, i(v))
	}
	rec = append(rec,
		f(t.AveragePrice), t.ActionDay, t.InstrumentID, t.ExchangeInstID,
		f(t.BandingUpperPrice), f(t.BandingLowerPrice), csvTime(t.Timestamp))
	return rec
}

// barRecord lays a bar out in header order.
func barRecord(b *md.Bar) []string {
	return []string{
		b.BarType, b.TradingDay, b.UpdateTime, b.InstrumentID, b.ExchangeID,
		i(b.Volume), i(b.OpenInterest), f(b.OpenPrice), f(b.HighestPrice),
		f(b.LowestPrice), f(b.ClosePrice), i(b.LastVolume), csvTime(b.Timestamp),
	}
}
