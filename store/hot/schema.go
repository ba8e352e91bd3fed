// Package hot is the hot storage tier: one embedded SQLite file per
// trading day, one table per instrument. The per-contract table layout
// means a query touches exactly one table and a time-range scan is a
// sequential read, no per-row instrument filtering.
package hot

import (
	"strings"

	"github.com/openfutures/tickd/md"
)

// NormalizeID turns an instrument id into a table-name fragment:
// lowercase, strip everything outside [a-z0-9_], prepend "c" when the
// result starts with a digit, "unknown" when nothing survives.
func NormalizeID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return "unknown"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "c" + s
	}
	return s
}

// tickTable returns the per-instrument tick table name.
func tickTable(instrumentID string) string {
	return "tick_" + NormalizeID(instrumentID)
}

// barTable returns the per-instrument bar table name.
func barTable(instrumentID string) string {
	return "kline_" + NormalizeID(instrumentID)
}

// tickColumns is the tick table schema in wire order. The order is
// part of the on-disk contract; INSERT and SELECT both rely on it.
var tickColumns = []string{
	"TradingDay DATE",
	"ExchangeID VARCHAR",
	"LastPrice DOUBLE",
	"PreSettlementPrice DOUBLE",
	"PreClosePrice DOUBLE",
	"PreOpenInterest BIGINT",
	"OpenPrice DOUBLE",
	"HighestPrice DOUBLE",
	"LowestPrice DOUBLE",
	"Volume BIGINT",
	"Turnover DOUBLE",
	"OpenInterest BIGINT",
	"ClosePrice DOUBLE",
	"SettlementPrice DOUBLE",
	"UpperLimitPrice DOUBLE",
	"LowerLimitPrice DOUBLE",
	"PreDelta DOUBLE",
	"CurrDelta DOUBLE",
	"UpdateTime VARCHAR",
	"UpdateMillisec INTEGER",
	"BidPrice1 DOUBLE", "BidPrice2 DOUBLE", "BidPrice3 DOUBLE", "BidPrice4 DOUBLE", "BidPrice5 DOUBLE",
	"BidVolume1 BIGINT", "BidVolume2 BIGINT", "BidVolume3 BIGINT", "BidVolume4 BIGINT", "BidVolume5 BIGINT",
	"AskPrice1 DOUBLE", "AskPrice2 DOUBLE", "AskPrice3 DOUBLE", "AskPrice4 DOUBLE", "AskPrice5 DOUBLE",
	"AskVolume1 BIGINT", "AskVolume2 BIGINT", "AskVolume3 BIGINT", "AskVolume4 BIGINT", "AskVolume5 BIGINT",
	"AveragePrice DOUBLE",
	"ActionDay VARCHAR",
	"InstrumentID VARCHAR",
	"ExchangeInstID VARCHAR",
	"BandingUpperPrice DOUBLE",
	"BandingLowerPrice DOUBLE",
	"Timestamp TIMESTAMP",
}

// barColumns is the bar table schema in wire order.
var barColumns = []string{
	"BarType VARCHAR",
	"TradingDay VARCHAR",
	"UpdateTime VARCHAR",
	"InstrumentID VARCHAR",
	"ExchangeID VARCHAR",
	"Volume BIGINT",
	"OpenInterest BIGINT",
	"OpenPrice DOUBLE",
	"HighestPrice DOUBLE",
	"LowestPrice DOUBLE",
	"ClosePrice DOUBLE",
	"LastVolume BIGINT",
	"Timestamp TIMESTAMP",
}

// columnNames strips the SQL types for SELECT/INSERT column lists.
func columnNames(defs []string) []string {
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = strings.SplitN(def, " ", 2)[0]
	}
	return names
}

var (
	tickColumnNames = columnNames(tickColumns)
	barColumnNames  = columnNames(barColumns)
)

// createTickTableSQL builds the CREATE TABLE IF NOT EXISTS statement.
func createTickTableSQL(instrumentID string) string {
	return "CREATE TABLE IF NOT EXISTS " + tickTable(instrumentID) +
		" (" + strings.Join(tickColumns, ", ") + ")"
}

func createBarTableSQL(instrumentID string) string {
	return "CREATE TABLE IF NOT EXISTS " + barTable(instrumentID) +
		" (" + strings.Join(barColumns, ", ") + ")"
}

// insertSQL builds an INSERT with one placeholder per column.
func insertSQL(table string, names []string) string {
	return "INSERT INTO " + table + " (" + strings.Join(names, ", ") + ") VALUES (" +
		strings.Repeat("?, ", len(names)-1) + "?)"
}

// tickValues lays a tick out in column order.
func tickValues(t *md.Tick) []any {
	return []any{
		t.TradingDay,
		t.ExchangeID,
		t.LastPrice,
		t.PreSettlementPrice,
		t.PreClosePrice,
		t.PreOpenInterest,
		t.OpenPrice,
		t.HighestPrice,
		t.LowestPrice,
		t.Volume,
		t.Turnover,
		t.OpenInterest,
		t.ClosePrice,
		t.SettlementPrice,
		t.UpperLimitPrice,
		t.LowerLimitPrice,
		t.PreDelta,
		t.CurrDelta,
		t.UpdateTime,
		t.UpdateMillisec,
		t.BidPrice[0], t.BidPrice[1], t.BidPrice[2], t.BidPrice[3], t.BidPrice[4],
		t.BidVolume[0], t.BidVolume[1], t.BidVolume[2], t.BidVolume[3], t.BidVolume[4],
		t.AskPrice[0], t.AskPrice[1], t.AskPrice[2], t.AskPrice[3], t.AskPrice[4],
		t.AskVolume[0], t.AskVolume[1], t.AskVolume[2], t.AskVolume[3], t.AskVolume[4],
		t.AveragePrice,
		t.ActionDay,
		t.InstrumentID,
		t.ExchangeInstID,
		t.BandingUpperPrice,
		t.BandingLowerPrice,
		t.Timestamp.In(md.CST),
	}
}

// barValues lays a bar out in column order.
func barValues(b *md.Bar) []any {
	return []any{
		b.BarType,
		b.TradingDay,
		b.UpdateTime,
		b.InstrumentID,
		b.ExchangeID,
		b.Volume,
		b.OpenInterest,
		b.OpenPrice,
		b.HighestPrice,
		b.LowestPrice,
		b.ClosePrice,
		b.LastVolume,
		b.Timestamp.In(md.CST),
	}
}

// scanTick reads one row back in column order.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTick(rows rowScanner) (*md.Tick, error) {
	var t md.Tick
	err := rows.Scan(
		&t.TradingDay,
		&t.ExchangeID,
		&t.LastPrice,
		&t.PreSettlementPrice,
		&t.PreClosePrice,
		&t.PreOpenInterest,
		&t.OpenPrice,
		&t.HighestPrice,
		&t.LowestPrice,
		&t.Volume,
		&t.Turnover,
		&t.OpenInterest,
		&t.ClosePrice,
		&t.SettlementPrice,
		&t.UpperLimitPrice,
		&t.LowerLimitPrice,
		&t.PreDelta,
		&t.CurrDelta,
		&t.UpdateTime,
		&t.UpdateMillisec,
		&t.BidPrice[0], &t.BidPrice[1], &t.BidPrice[2], &t.BidPrice[3], &t.BidPrice[4],
		&t.BidVolume[0], &t.BidVolume[1], &t.BidVolume[2], &t.BidVolume[3], &t.BidVolume[4],
		&t.AskPrice[0], &t.AskPrice[1], &t.AskPrice[2], &t.AskPrice[3], &t.AskPrice[4],
		&t.AskVolume[0], &t.AskVolume[1], &t.AskVolume[2], &t.AskVolume[3], &t.AskVolume[4],
		&t.AveragePrice,
		&t.ActionDay,
		&t.InstrumentID,
		&t.ExchangeInstID,
		&t.BandingUpperPrice,
		&t.BandingLowerPrice,
		&t.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanBar(rows rowScanner) (*md.Bar, error) {
	var b md.Bar
	err := rows.Scan(
		&b.BarType,
		&b.TradingDay,
		&b.UpdateTime,
		&b.InstrumentID,
		&b.ExchangeID,
		&b.Volume,
		&b.OpenInterest,
		&b.OpenPrice,
		&b.HighestPrice,
		&b.LowestPrice,
		&b.ClosePrice,
		&b.LastVolume,
		&b.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
