// Package archive moves aged rows from the hot SQLite tier into the
// cold columnar tier. A cycle is archive-verify-delete: nothing is
// removed from the hot tier until the cold copy has been written and
// its row count checked.
package archive

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/openfutures/tickd/alarm"
	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/store/cold"
	"github.com/openfutures/tickd/store/hot"
	"github.com/openfutures/tickd/sym"
)

// Archiver runs the hot-to-cold migration cycle. It is driven by the
// alarm scheduler or invoked manually; it holds no goroutines of its
// own.
type Archiver struct {
	hot  *hot.Store
	cold *cold.Store

	retentionDays int
	now           func() time.Time

	sink alarm.Sink
	log  *zap.SugaredLogger
}

// Report summarizes one completed cycle.
type Report struct {
	Cutoff         time.Time
	TickPartitions int
	BarPartitions  int
	RowsArchived   int
	RowsDeleted    int64
	Days           []string
}

// New builds an archiver over the two tiers.
func New(h *hot.Store, c *cold.Store, retentionDays int, sink alarm.Sink, log *zap.SugaredLogger) *Archiver {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &Archiver{
		hot:           h,
		cold:          c,
		retentionDays: retentionDays,
		now:           time.Now,
		sink:          sink,
		log:           log.Named("archiver"),
	}
}

// Cutoff is midnight of the oldest day still kept hot. Rows strictly
// before it are due for archiving.
func (a *Archiver) Cutoff() time.Time {
	now := a.now().In(md.CST)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, md.CST)
	return today.AddDate(0, 0, -a.retentionDays)
}

// Run executes one archive cycle: flush the hot buffers, collect every
// partition older than the cutoff, write each to the cold tier,
// verify the cold counts, and only then delete the rows from the hot
// tier and compact the touched day files. Any failure before the
// delete aborts the cycle with the hot tier untouched.
func (a *Archiver) Run(ctx context.Context) (*Report, error) {
	cutoff := a.Cutoff()
	a.log.Infow(sym.PulseOpen+" Archive cycle started", "cutoff", cutoff)

	if err := a.hot.Flush(); err != nil {
		return nil, a.abort("hot flush before archive", err)
	}

	tickParts, err := a.hot.TickPartitionsBefore(cutoff)
	if err != nil {
		return nil, a.abort("collect tick partitions", err)
	}
	barParts, err := a.hot.BarPartitionsBefore(cutoff)
	if err != nil {
		return nil, a.abort("collect bar partitions", err)
	}

	report := &Report{
		Cutoff:         cutoff,
		TickPartitions: len(tickParts),
		BarPartitions:  len(barParts),
	}
	if len(tickParts) == 0 && len(barParts) == 0 {
		a.log.Infow(sym.PulseClose + " Archive cycle finished, nothing due")
		return report, nil
	}

	days := make(map[string]struct{})
	for _, part := range tickParts {
		if err := ctx.Err(); err != nil {
			return nil, a.abort("archive cancelled", err)
		}
		count, err := a.cold.SaveTicks(part.InstrumentID, part.Day, part.Rows)
		if err != nil {
			return nil, a.abort("archive tick partition", err)
		}
		if want := distinctTickStamps(part.Rows); count < want {
			return nil, a.abort("verify tick partition",
				errors.Newf("cold partition %s/%s holds %d rows, expected at least %d",
					part.InstrumentID, part.Day, count, want))
		}
		report.RowsArchived += len(part.Rows)
		days[part.Day] = struct{}{}
	}
	for _, part := range barParts {
		if err := ctx.Err(); err != nil {
			return nil, a.abort("archive cancelled", err)
		}
		count, err := a.cold.SaveBars(part.InstrumentID, part.Interval, part.Day, part.Rows)
		if err != nil {
			return nil, a.abort("archive bar partition", err)
		}
		if want := distinctBarStamps(part.Rows); count < want {
			return nil, a.abort("verify bar partition",
				errors.Newf("cold partition %s/%s/%s holds %d rows, expected at least %d",
					part.Interval, part.InstrumentID, part.Day, count, want))
		}
		report.RowsArchived += len(part.Rows)
		days[part.Day] = struct{}{}
	}

	// Cold copies are verified; the hot rows may go.
	removed, err := a.hot.DeleteBefore(cutoff)
	if err != nil {
		return nil, a.abort("delete archived rows", err)
	}
	report.RowsDeleted = removed

	for day := range days {
		report.Days = append(report.Days, day)
	}
	sort.Strings(report.Days)
	for _, day := range report.Days {
		if err := a.hot.Vacuum(day); err != nil {
			// The cycle itself succeeded; compaction is retried next run.
			a.log.Warnw(sym.DB+" Day file compaction failed", "day", day, "error", err)
		}
	}

	a.log.Infow(sym.PulseClose+" Archive cycle finished",
		"tick_partitions", report.TickPartitions,
		"bar_partitions", report.BarPartitions,
		"rows_archived", report.RowsArchived,
		"rows_deleted", report.RowsDeleted,
		"days", report.Days)
	return report, nil
}

func (a *Archiver) abort(stage string, err error) error {
	err = errors.Wrap(err, stage)
	a.log.Errorw(sym.Alarm+" Archive cycle aborted, hot tier untouched", "error", err)
	if a.sink != nil {
		a.sink.Raise("archiver", "archive cycle aborted", err)
	}
	return err
}

func distinctTickStamps(rows []*md.Tick) int {
	seen := make(map[int64]struct{}, len(rows))
	for _, t := range rows {
		seen[t.Timestamp.UnixNano()] = struct{}{}
	}
	return len(seen)
}

func distinctBarStamps(rows []*md.Bar) int {
	seen := make(map[int64]struct{}, len(rows))
	for _, b := range rows {
		seen[b.Timestamp.UnixNano()] = struct{}{}
	}
	return len(seen)
}
