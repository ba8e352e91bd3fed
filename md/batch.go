package md

import (
	"sort"
)

// TickBatch is a write batch of ticks for a single trading day. The
// writers rely on upstream day grouping: a batch never spans days.
type TickBatch struct {
	TradingDay string
	Rows       []*Tick
}

// Append adds a tick to the batch.
func (b *TickBatch) Append(t *Tick) {
	b.Rows = append(b.Rows, t)
}

// Len returns the row count.
func (b *TickBatch) Len() int { return len(b.Rows) }

// SortByInstrumentTime orders rows by (instrument, timestamp) so
// on-disk rows stay clustered per instrument in time order.
func (b *TickBatch) SortByInstrumentTime() {
	sort.SliceStable(b.Rows, func(i, j int) bool {
		a, c := b.Rows[i], b.Rows[j]
		if a.InstrumentID != c.InstrumentID {
			return a.InstrumentID < c.InstrumentID
		}
		return a.Timestamp.Before(c.Timestamp)
	})
}

// GroupByInstrument splits the batch per instrument id, preserving
// row order within each group.
func (b *TickBatch) GroupByInstrument() map[string][]*Tick {
	groups := make(map[string][]*Tick)
	for _, t := range b.Rows {
		groups[t.InstrumentID] = append(groups[t.InstrumentID], t)
	}
	return groups
}

// BarBatch is a write batch of bars for a single trading day.
type BarBatch struct {
	TradingDay string
	Rows       []*Bar
}

// Append adds a bar to the batch.
func (b *BarBatch) Append(bar *Bar) {
	b.Rows = append(b.Rows, bar)
}

// Len returns the row count.
func (b *BarBatch) Len() int { return len(b.Rows) }

// SortByInstrumentTime orders rows by (instrument, interval, timestamp).
func (b *BarBatch) SortByInstrumentTime() {
	sort.SliceStable(b.Rows, func(i, j int) bool {
		a, c := b.Rows[i], b.Rows[j]
		if a.InstrumentID != c.InstrumentID {
			return a.InstrumentID < c.InstrumentID
		}
		if a.BarType != c.BarType {
			return a.BarType < c.BarType
		}
		return a.Timestamp.Before(c.Timestamp)
	})
}

// GroupByInstrument splits the batch per instrument id.
func (b *BarBatch) GroupByInstrument() map[string][]*Bar {
	groups := make(map[string][]*Bar)
	for _, bar := range b.Rows {
		groups[bar.InstrumentID] = append(groups[bar.InstrumentID], bar)
	}
	return groups
}

// GroupTicksByDay partitions an arbitrary tick slice into per-day
// batches, the shape the storage writers accept.
func GroupTicksByDay(ticks []*Tick) []*TickBatch {
	byDay := make(map[string]*TickBatch)
	var order []string
	for _, t := range ticks {
		day := t.Day()
		batch, ok := byDay[day]
		if !ok {
			batch = &TickBatch{TradingDay: day}
			byDay[day] = batch
			order = append(order, day)
		}
		batch.Append(t)
	}
	out := make([]*TickBatch, 0, len(order))
	for _, day := range order {
		out = append(out, byDay[day])
	}
	return out
}

// GroupBarsByDay partitions an arbitrary bar slice into per-day batches.
func GroupBarsByDay(bars []*Bar) []*BarBatch {
	byDay := make(map[string]*BarBatch)
	var order []string
	for _, bar := range bars {
		day := bar.Day()
		batch, ok := byDay[day]
		if !ok {
			batch = &BarBatch{TradingDay: day}
			byDay[day] = batch
			order = append(order, day)
		}
		batch.Append(bar)
	}
	out := make([]*BarBatch, 0, len(order))
	for _, day := range order {
		out = append(out, byDay[day])
	}
	return out
}
