// Package bar synthesizes fixed-interval candlestick bars from the
// tick stream, one generator per (instrument, interval).
//
// Generators are single-threaded per instrument: the gateway delivers
// each instrument's ticks through one dispatch at a time, so only the
// set-level map needs locking.
package bar

import (
	"github.com/openfutures/tickd/md"
)

// Generator builds bars for one (instrument, interval) pair. At most
// one bar is open at a time; a tick in a new window closes the open
// bar and opens the next.
type Generator struct {
	instrumentID string
	interval     md.Interval
	anchorMin    int // day-bar open anchor, minutes past midnight

	open     *md.Bar
	openSlot string

	// lastCum is the cumulative volume of the last applied tick. A new
	// bar snapshots it as last_volume so the closing tick's delta lands
	// in the window it opens, not in the gap between windows.
	lastCum int64
	haveCum bool

	onClose func(md.Bar)
}

// NewGenerator creates a generator. onClose is invoked synchronously
// with each closed bar; closed bars are immutable.
func NewGenerator(instrumentID string, interval md.Interval, anchorMinutes int, onClose func(md.Bar)) *Generator {
	return &Generator{
		instrumentID: instrumentID,
		interval:     interval,
		anchorMin:    anchorMinutes,
		onClose:      onClose,
	}
}

// Update applies one tick. Ticks without a usable last price or
// timestamp are ignored. Ticks that cross backwards into a prior slot
// are noise: they never reopen closed bars.
func (g *Generator) Update(t *md.Tick) {
	if !t.Valid() {
		return
	}

	slot := g.interval.SlotKey(t.Timestamp, t.TradingDay)

	if g.open == nil {
		g.openBar(t, slot)
		return
	}

	if slot != g.openSlot {
		// A stale slot key means an out-of-order tick behind the open
		// window; the open timestamp comparison rejects it.
		openAt := g.interval.OpenTime(t.Timestamp, t.TradingDay, g.anchorMin)
		if openAt.Before(g.open.Timestamp) {
			return
		}
		g.close()
		g.openBar(t, slot)
		return
	}

	g.apply(t)
}

// openBar starts a new window from its first tick: OHLC all at the
// last price, last_volume snapshotted from the cumulative counter as
// it stood at bar open. When the exchange resets the counter (new
// session), the snapshot falls back to the tick's own value so window
// volume never goes negative.
func (g *Generator) openBar(t *md.Tick, slot string) {
	lastVolume := t.Volume
	if g.haveCum && g.lastCum <= t.Volume {
		lastVolume = g.lastCum
	}
	g.open = &md.Bar{
		BarType:      g.interval.Tag(),
		TradingDay:   t.TradingDay,
		UpdateTime:   t.UpdateTime,
		InstrumentID: g.instrumentID,
		ExchangeID:   t.ExchangeID,
		Volume:       t.Volume - lastVolume,
		OpenInterest: t.OpenInterest,
		OpenPrice:    t.LastPrice,
		HighestPrice: t.LastPrice,
		LowestPrice:  t.LastPrice,
		ClosePrice:   t.LastPrice,
		LastVolume:   lastVolume,
		Timestamp:    g.interval.OpenTime(t.Timestamp, t.TradingDay, g.anchorMin),
	}
	g.openSlot = slot
	g.lastCum = t.Volume
	g.haveCum = true
}

// apply folds a tick into the open bar.
func (g *Generator) apply(t *md.Tick) {
	b := g.open
	if t.LastPrice > b.HighestPrice {
		b.HighestPrice = t.LastPrice
	}
	if t.LastPrice < b.LowestPrice {
		b.LowestPrice = t.LastPrice
	}
	b.ClosePrice = t.LastPrice
	b.Volume = t.Volume - b.LastVolume
	b.OpenInterest = t.OpenInterest
	b.UpdateTime = t.UpdateTime
	g.lastCum = t.Volume
	g.haveCum = true
}

// close emits the open bar and clears the window.
func (g *Generator) close() {
	if g.open == nil {
		return
	}
	closed := *g.open
	g.open = nil
	g.openSlot = ""
	if g.onClose != nil {
		g.onClose(closed)
	}
}

// Flush closes the still-open bar, if any. Called at shutdown so the
// last partial window of a session is not lost.
func (g *Generator) Flush() {
	g.close()
}

// Open returns a copy of the open bar and whether one exists. Test and
// inspection surface; the open bar itself stays owned by the generator.
func (g *Generator) Open() (md.Bar, bool) {
	if g.open == nil {
		return md.Bar{}, false
	}
	return *g.open, true
}

// Interval returns the generator's interval.
func (g *Generator) Interval() md.Interval { return g.interval }
