package hot

import (
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/sym"
)

// TickPartition is one (instrument, day) group of rows older than the
// archive cutoff. Partitions mirror the cold tier's file layout.
type TickPartition struct {
	Day          string
	InstrumentID string
	Rows         []*md.Tick
}

// BarPartition is one (instrument, interval, day) group.
type BarPartition struct {
	Day          string
	Interval     string
	InstrumentID string
	Rows         []*md.Bar
}

// TickPartitionsBefore collects every tick with Timestamp < cutoff,
// grouped by (instrument, day file). Reads go through fresh read-only
// handles; the write path is untouched.
func (s *Store) TickPartitionsBefore(cutoff time.Time) ([]TickPartition, error) {
	cutoff = cutoff.In(md.CST)
	var out []TickPartition
	err := s.eachOldDay(cutoff, func(day string, db *sql.DB) error {
		tables, err := listTables(db, "tick_")
		if err != nil {
			return err
		}
		for _, table := range tables {
			groups := make(map[string][]*md.Tick)
			q := "SELECT " + strings.Join(tickColumnNames, ", ") + " FROM " + table +
				" WHERE Timestamp < ? ORDER BY Timestamp"
			rows, err := db.Query(q, cutoff)
			if err != nil {
				return errors.Wrapf(err, "scan %s %s", day, table)
			}
			for rows.Next() {
				t, err := scanTick(rows)
				if err != nil {
					rows.Close()
					return errors.Wrapf(err, "scan %s %s", day, table)
				}
				groups[t.InstrumentID] = append(groups[t.InstrumentID], t)
			}
			if err := rows.Close(); err != nil {
				return errors.Wrapf(err, "close %s %s", day, table)
			}
			for id, ticks := range groups {
				out = append(out, TickPartition{Day: day, InstrumentID: id, Rows: ticks})
			}
		}
		return nil
	})
	sortTickPartitions(out)
	return out, err
}

// BarPartitionsBefore collects every bar with Timestamp < cutoff,
// grouped by (instrument, interval, day file).
func (s *Store) BarPartitionsBefore(cutoff time.Time) ([]BarPartition, error) {
	cutoff = cutoff.In(md.CST)
	type key struct{ id, interval string }
	var out []BarPartition
	err := s.eachOldDay(cutoff, func(day string, db *sql.DB) error {
		tables, err := listTables(db, "kline_")
		if err != nil {
			return err
		}
		for _, table := range tables {
			groups := make(map[key][]*md.Bar)
			q := "SELECT " + strings.Join(barColumnNames, ", ") + " FROM " + table +
				" WHERE Timestamp < ? ORDER BY Timestamp"
			rows, err := db.Query(q, cutoff)
			if err != nil {
				return errors.Wrapf(err, "scan %s %s", day, table)
			}
			for rows.Next() {
				b, err := scanBar(rows)
				if err != nil {
					rows.Close()
					return errors.Wrapf(err, "scan %s %s", day, table)
				}
				k := key{id: b.InstrumentID, interval: b.BarType}
				groups[k] = append(groups[k], b)
			}
			if err := rows.Close(); err != nil {
				return errors.Wrapf(err, "close %s %s", day, table)
			}
			for k, bars := range groups {
				out = append(out, BarPartition{Day: day, Interval: k.interval, InstrumentID: k.id, Rows: bars})
			}
		}
		return nil
	})
	sortBarPartitions(out)
	return out, err
}

// DeleteBefore removes every tick and bar row older than the cutoff
// from all day files, returning the rows removed. Callers archive
// first; this only runs after the cold copies are verified.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	cutoff = cutoff.In(md.CST)
	days, err := s.Days()
	if err != nil {
		return 0, err
	}
	limit := md.FormatDay(cutoff)

	var removed int64
	for _, day := range days {
		if day > limit {
			continue
		}
		lock := s.fileLock(day)
		lock.Lock()
		n, err := s.deleteDayBefore(day, cutoff)
		lock.Unlock()
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if removed > 0 {
		s.log.Infow(sym.DB+" Archived rows deleted from hot tier",
			"rows", removed,
			"cutoff", cutoff)
	}
	return removed, nil
}

func (s *Store) deleteDayBefore(day string, cutoff time.Time) (int64, error) {
	db, err := s.openDay(day)
	if err != nil {
		return 0, err
	}
	var removed int64
	for _, prefix := range []string{"tick_", "kline_"} {
		tables, err := listTables(db, prefix)
		if err != nil {
			return removed, err
		}
		for _, table := range tables {
			res, err := db.Exec("DELETE FROM "+table+" WHERE Timestamp < ?", cutoff)
			if err != nil {
				return removed, errors.Wrapf(err, "delete from %s %s", day, table)
			}
			if n, err := res.RowsAffected(); err == nil {
				removed += n
			}
		}
	}
	return removed, nil
}

// Vacuum compacts one day file, reclaiming the space freed by
// DeleteBefore.
func (s *Store) Vacuum(day string) error {
	lock := s.fileLock(day)
	lock.Lock()
	defer lock.Unlock()

	db, err := s.openDay(day)
	if err != nil {
		return err
	}
	if _, err := db.Exec("VACUUM"); err != nil {
		return errors.Wrapf(err, "vacuum %s", day)
	}
	s.log.Debugw(sym.DB+" Day file compacted", "day", day)
	return nil
}

// eachOldDay opens each on-disk day at or before the cutoff day
// read-only and runs fn over it.
func (s *Store) eachOldDay(cutoff time.Time, fn func(day string, db *sql.DB) error) error {
	days, err := s.Days()
	if err != nil {
		return err
	}
	limit := md.FormatDay(cutoff)
	for _, day := range days {
		if day > limit {
			continue
		}
		db, err := s.openDayReadOnly(day)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			return err
		}
		err = fn(day, db)
		db.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// listTables enumerates the per-instrument tables with a prefix.
func listTables(db *sql.DB, prefix string) ([]string, error) {
	rows, err := db.Query(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ?",
		prefix+"%")
	if err != nil {
		return nil, errors.Wrap(err, "list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan table name")
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func sortTickPartitions(parts []TickPartition) {
	sort.Slice(parts, func(i, j int) bool {
		if parts[i].Day != parts[j].Day {
			return parts[i].Day < parts[j].Day
		}
		return parts[i].InstrumentID < parts[j].InstrumentID
	})
}

func sortBarPartitions(parts []BarPartition) {
	sort.Slice(parts, func(i, j int) bool {
		if parts[i].Day != parts[j].Day {
			return parts[i].Day < parts[j].Day
		}
		if parts[i].InstrumentID != parts[j].InstrumentID {
			return parts[i].InstrumentID < parts[j].InstrumentID
		}
		return parts[i].Interval < parts[j].Interval
	})
}
