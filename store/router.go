// Package store presents the single storage façade over the tiered
// stack: the hot per-day SQLite tier, the cold columnar archive, and
// the append-only CSV tier. Callers save rows and query time ranges;
// the hot/cold split and the secondary copies stay hidden behind the
// router.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openfutures/tickd/alarm"
	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/md"
	appendlog "github.com/openfutures/tickd/store/append"
	"github.com/openfutures/tickd/store/cold"
	"github.com/openfutures/tickd/store/hot"
	"github.com/openfutures/tickd/sym"
)

// coldBatchThreshold bounds the router's cold-copy buffer. Cold
// partitions are rewritten whole on save, so rows are batched per
// (instrument, day) instead of trickling in tick by tick.
const coldBatchThreshold = 5000

// Router fans writes out to every tier and splits reads at the
// retention cutoff. Save calls are fire-and-forget: failures surface
// through logs and alarms, never to the producer.
type Router struct {
	hot       *hot.Store
	cold      *cold.Store
	appendLog *appendlog.Writer

	retentionDays int
	now           func() time.Time

	// Pending cold secondary copies, grouped the way the cold tier
	// partitions them.
	coldMu       sync.Mutex
	coldTicks    map[coldTickKey][]*md.Tick
	coldBars     map[coldBarKey][]*md.Bar
	coldBuffered int

	sink alarm.Sink
	log  *zap.SugaredLogger
}

type coldTickKey struct {
	instrumentID string
	day          string
}

type coldBarKey struct {
	instrumentID string
	interval     string
	day          string
}

// NewRouter wires the façade over the three tiers.
func NewRouter(h *hot.Store, c *cold.Store, a *appendlog.Writer, retentionDays int, sink alarm.Sink, log *zap.SugaredLogger) *Router {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &Router{
		hot:           h,
		cold:          c,
		appendLog:     a,
		retentionDays: retentionDays,
		now:           time.Now,
		coldTicks:     make(map[coldTickKey][]*md.Tick),
		coldBars:      make(map[coldBarKey][]*md.Bar),
		sink:          sink,
		log:           log.Named("router"),
	}
}

// SaveTicks fans a tick batch out to the hot tier, the append log, and
// the buffered cold secondary copy. Empty batches are a no-op.
func (r *Router) SaveTicks(rows []*md.Tick) {
	if len(rows) == 0 {
		return
	}
	r.hot.WriteTicks(rows)
	r.appendLog.WriteTicks(rows)

	r.coldMu.Lock()
	for _, t := range rows {
		key := coldTickKey{instrumentID: t.InstrumentID, day: t.Day()}
		r.coldTicks[key] = append(r.coldTicks[key], t)
	}
	r.coldBuffered += len(rows)
	flush := r.coldBuffered >= coldBatchThreshold
	r.coldMu.Unlock()

	if flush {
		r.flushCold()
	}
}

// SaveBars fans a bar batch out the same way.
func (r *Router) SaveBars(rows []*md.Bar) {
	if len(rows) == 0 {
		return
	}
	r.hot.WriteBars(rows)
	r.appendLog.WriteBars(rows)

	r.coldMu.Lock()
	for _, b := range rows {
		key := coldBarKey{instrumentID: b.InstrumentID, interval: b.BarType, day: b.Day()}
		r.coldBars[key] = append(r.coldBars[key], b)
	}
	r.coldBuffered += len(rows)
	flush := r.coldBuffered >= coldBatchThreshold
	r.coldMu.Unlock()

	if flush {
		r.flushCold()
	}
}

// flushCold writes the pending secondary copies to the cold tier. A
// failed partition is alarmed and dropped here; the rows still live in
// the hot tier and the append log.
func (r *Router) flushCold() {
	r.coldMu.Lock()
	ticks := r.coldTicks
	bars := r.coldBars
	r.coldTicks = make(map[coldTickKey][]*md.Tick)
	r.coldBars = make(map[coldBarKey][]*md.Bar)
	r.coldBuffered = 0
	r.coldMu.Unlock()

	for key, rows := range ticks {
		if _, err := r.cold.SaveTicks(key.instrumentID, key.day, rows); err != nil {
			r.alarm("cold tick copy failed", err)
		}
	}
	for key, rows := range bars {
		if _, err := r.cold.SaveBars(key.instrumentID, key.interval, key.day, rows); err != nil {
			r.alarm("cold bar copy failed", err)
		}
	}
}

func (r *Router) alarm(message string, err error) {
	r.log.Errorw(sym.Cold+" "+message, "error", err)
	if r.sink != nil {
		r.sink.Raise("store.router", message, err)
	}
}

// Cutoff returns the hot/cold boundary: midnight of the first day
// still served from the hot tier. Rows at or after it are hot; rows
// strictly before it belong to the cold tier.
func (r *Router) Cutoff() time.Time {
	now := r.now().In(md.CST)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, md.CST)
	return today.AddDate(0, 0, -r.retentionDays)
}

// QueryTicks answers a time-range query, splitting it at the retention
// cutoff and merging the tiers ordered by timestamp. No data is an
// empty slice, never an error.
func (r *Router) QueryTicks(instrumentID string, start, end time.Time) ([]*md.Tick, error) {
	if end.Before(start) {
		start, end = end, start
	}
	cutoff := r.Cutoff()

	var out []*md.Tick
	if start.Before(cutoff) {
		coldEnd := end
		if !coldEnd.Before(cutoff) {
			coldEnd = cutoff.Add(-time.Nanosecond)
		}
		rows, err := r.cold.QueryTicks(instrumentID, start, coldEnd)
		if err != nil {
			return nil, errors.Wrap(err, "cold tick query")
		}
		out = append(out, rows...)
	}
	if !end.Before(cutoff) {
		hotStart := start
		if hotStart.Before(cutoff) {
			hotStart = cutoff
		}
		rows, err := r.hot.QueryTicks(instrumentID, hotStart, end)
		if err != nil {
			return nil, errors.Wrap(err, "hot tick query")
		}
		out = append(out, rows...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// QueryBars answers a bar range query for one interval tag.
func (r *Router) QueryBars(instrumentID, intervalTag string, start, end time.Time) ([]*md.Bar, error) {
	if end.Before(start) {
		start, end = end, start
	}
	cutoff := r.Cutoff()

	var out []*md.Bar
	if start.Before(cutoff) {
		coldEnd := end
		if !coldEnd.Before(cutoff) {
			coldEnd = cutoff.Add(-time.Nanosecond)
		}
		rows, err := r.cold.QueryBars(instrumentID, intervalTag, start, coldEnd)
		if err != nil {
			return nil, errors.Wrap(err, "cold bar query")
		}
		out = append(out, rows...)
	}
	if !end.Before(cutoff) {
		hotStart := start
		if hotStart.Before(cutoff) {
			hotStart = cutoff
		}
		rows, err := r.hot.QueryBars(instrumentID, intervalTag, hotStart, end)
		if err != nil {
			return nil, errors.Wrap(err, "hot bar query")
		}
		out = append(out, rows...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Stop flushes the pending cold copies. The tiers themselves are
// stopped by their own lifecycle hooks.
func (r *Router) Stop(ctx context.Context) error {
	r.flushCold()
	r.log.Infow(sym.PulseClose + " Storage router stopped")
	return nil
}
