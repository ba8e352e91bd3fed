// Package cold is the cold storage tier: one compressed columnar block
// file per (instrument, day) for ticks and per (instrument, interval,
// day) for bars. Blocks are read and written whole; queries are
// full-file scans with a time-range filter, which is the right shape
// for data that is months old and touched rarely.
package cold

import (
	"compress/gzip"
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/sym"
)

// blockExt marks cold partition files: gzip-compressed gob columns.
const blockExt = ".colz"

// Store reads and writes cold partitions under one root directory.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	log *zap.SugaredLogger
}

// New creates the store and its root directory.
func New(dir string, log *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "create cold store dir %s", dir)
	}
	return &Store{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
		log:   log.Named("coldstore"),
	}, nil
}

func (s *Store) tickPath(instrumentID, day string) string {
	return filepath.Join(s.dir, "ticks", instrumentID, day+blockExt)
}

func (s *Store) barPath(instrumentID, interval, day string) string {
	return filepath.Join(s.dir, "bars", interval, instrumentID, day+blockExt)
}

// tickKey identifies a tick within a partition. Two real ticks can
// share a timestamp (exchange clocks tick in half-seconds), but their
// cumulative volumes differ; only a true re-save of the same row
// collapses.
type tickKey struct {
	unixNano  int64
	cumVolume int64
}

// SaveTicks merges rows into the (instrument, day) partition, keyed by
// (timestamp, cumulative volume) with the incoming row winning, and
// returns the partition's row count after the merge. Read-modify-write
// under the partition lock; the write lands via temp file and rename.
func (s *Store) SaveTicks(instrumentID, day string, rows []*md.Tick) (int, error) {
	if len(rows) == 0 {
		return s.CountTicks(instrumentID, day)
	}
	path := s.tickPath(instrumentID, day)
	lock := s.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	existing, err := readTickBlock(path)
	if err != nil {
		return 0, err
	}

	merged := make(map[tickKey]*md.Tick, len(existing)+len(rows))
	for _, t := range existing {
		merged[tickKey{t.Timestamp.UnixNano(), t.Volume}] = t
	}
	for _, t := range rows {
		merged[tickKey{t.Timestamp.UnixNano(), t.Volume}] = t
	}

	out := make([]*md.Tick, 0, len(merged))
	for _, t := range merged {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Volume < out[j].Volume
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	if err := writeTickBlock(path, out); err != nil {
		return 0, err
	}
	s.log.Debugw(sym.Cold+" Tick partition saved",
		"instrument", instrumentID,
		"day", day,
		"rows", len(out))
	return len(out), nil
}

// SaveBars merges rows into the (instrument, interval, day) partition.
func (s *Store) SaveBars(instrumentID, interval, day string, rows []*md.Bar) (int, error) {
	if len(rows) == 0 {
		return s.CountBars(instrumentID, interval, day)
	}
	path := s.barPath(instrumentID, interval, day)
	lock := s.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	existing, err := readBarBlock(path)
	if err != nil {
		return 0, err
	}

	merged := make(map[int64]*md.Bar, len(existing)+len(rows))
	for _, b := range existing {
		merged[b.Timestamp.UnixNano()] = b
	}
	for _, b := range rows {
		merged[b.Timestamp.UnixNano()] = b
	}

	out := make([]*md.Bar, 0, len(merged))
	for _, b := range merged {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	if err := writeBarBlock(path, out); err != nil {
		return 0, err
	}
	s.log.Debugw(sym.Cold+" Bar partition saved",
		"instrument", instrumentID,
		"interval", interval,
		"day", day,
		"rows", len(out))
	return len(out), nil
}

// QueryTicks scans the instrument's partitions whose day falls in the
// range and returns rows with timestamps in [start, end] inclusive,
// ordered by timestamp. Missing partitions read as no data.
func (s *Store) QueryTicks(instrumentID string, start, end time.Time) ([]*md.Tick, error) {
	if end.Before(start) {
		start, end = end, start
	}
	days := daysOnDisk(filepath.Join(s.dir, "ticks", instrumentID), start, end)

	var out []*md.Tick
	for _, day := range days {
		rows, err := readTickBlock(s.tickPath(instrumentID, day))
		if err != nil {
			return nil, err
		}
		for _, t := range rows {
			if inRange(t.Timestamp, start, end) {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// QueryBars scans the (instrument, interval) partitions in the range.
func (s *Store) QueryBars(instrumentID, interval string, start, end time.Time) ([]*md.Bar, error) {
	if end.Before(start) {
		start, end = end, start
	}
	days := daysOnDisk(filepath.Join(s.dir, "bars", interval, instrumentID), start, end)

	var out []*md.Bar
	for _, day := range days {
		rows, err := readBarBlock(s.barPath(instrumentID, interval, day))
		if err != nil {
			return nil, err
		}
		for _, b := range rows {
			if inRange(b.Timestamp, start, end) {
				out = append(out, b)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// CountTicks returns the row count of one partition, 0 when absent.
func (s *Store) CountTicks(instrumentID, day string) (int, error) {
	rows, err := readTickBlock(s.tickPath(instrumentID, day))
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// CountBars returns the row count of one partition, 0 when absent.
func (s *Store) CountBars(instrumentID, interval, day string) (int, error) {
	rows, err := readBarBlock(s.barPath(instrumentID, interval, day))
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// pathLock returns the per-partition mutex, created lazily.
func (s *Store) pathLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[path] = lock
	}
	return lock
}

// inRange checks [start, end] inclusive on both bounds.
func inRange(ts, start, end time.Time) bool {
	return !ts.Before(start) && !ts.After(end)
}

// daysOnDisk lists the partition days present for one directory that
// fall inside the query range, ascending. Partitions are keyed by
// trading day, which runs ahead of the calendar for night sessions, so
// the window extends past end by the maximum skew; the per-row range
// filter stays exact.
func daysOnDisk(dir string, start, end time.Time) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	lo, hi := md.FormatDay(start), md.FormatDay(end.AddDate(0, 0, md.TradingDaySkewDays))
	var days []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != blockExt {
			continue
		}
		day := name[:len(name)-len(blockExt)]
		if len(day) == 8 && day >= lo && day <= hi {
			days = append(days, day)
		}
	}
	sort.Strings(days)
	return days
}

// writeBlock gob-encodes a column block through gzip to a temp file,
// then renames it into place so readers never see a torn block.
func writeBlock(path string, block any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrapf(err, "create partition dir for %s", path)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return errors.Wrapf(err, "create %s", tmp)
	}

	gz := gzip.NewWriter(f)
	if err := gob.NewEncoder(gz).Encode(block); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "encode %s", path)
	}
	if err := errors.CombineErrors(gz.Close(), f.Close()); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "finish %s", path)
	}
	return errors.Wrapf(os.Rename(tmp, path), "replace %s", path)
}

// readBlock decodes one block; a missing file decodes as absent.
func readBlock(path string, block any) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return false, errors.Wrapf(err, "decompress %s", path)
	}
	defer gz.Close()

	if err := gob.NewDecoder(gz).Decode(block); err != nil {
		return false, errors.Wrapf(err, "decode %s", path)
	}
	return true, nil
}
