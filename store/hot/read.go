package hot

import (
	"database/sql"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/md"
)

// dayFilePattern matches hot day files: eight digits plus ".db".
var dayFilePattern = regexp.MustCompile(`^(\d{8})\.db$`)

// Days enumerates the trading days present on disk, ascending.
func (s *Store) Days() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "list hot store dir %s", s.cfg.Dir)
	}
	var days []string
	for _, e := range entries {
		if m := dayFilePattern.FindStringSubmatch(e.Name()); m != nil {
			days = append(days, m[1])
		}
	}
	return days, nil
}

// QueryTicks returns the instrument's ticks with timestamps in
// [start, end] inclusive, ordered by timestamp. Days without a file and
// day files without the instrument's table both read as no data.
func (s *Store) QueryTicks(instrumentID string, start, end time.Time) ([]*md.Tick, error) {
	rows, err := s.query(tickTable(instrumentID), tickColumnNames, "", start, end)
	if err != nil {
		return nil, err
	}
	out := make([]*md.Tick, 0, 64)
	defer rows.Close()
	for rows.Next() {
		t, err := scanTick(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan tick")
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "read ticks")
}

// QueryBars returns the instrument's bars for one interval tag with
// timestamps in [start, end] inclusive, ordered by timestamp.
func (s *Store) QueryBars(instrumentID, intervalTag string, start, end time.Time) ([]*md.Bar, error) {
	rows, err := s.query(barTable(instrumentID), barColumnNames, intervalTag, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]*md.Bar, 0, 64)
	defer rows.Close()
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan bar")
		}
		out = append(out, b)
	}
	return out, errors.Wrap(rows.Err(), "read bars")
}

// query runs the range select over every day file the range touches.
// A single day opens that file read-only; multiple days go through a
// fresh in-memory session with each file attached read-only and a
// UNION ALL across the per-file tables.
func (s *Store) query(table string, columns []string, barType string, start, end time.Time) (*sql.Rows, error) {
	if end.Before(start) {
		start, end = end, start
	}
	days := s.daysInRange(start, end)

	switch len(days) {
	case 0:
		return emptyRows()
	case 1:
		return s.querySingleDay(days[0], table, columns, barType, start, end)
	default:
		return s.queryMultiDay(days, table, columns, barType, start, end)
	}
}

// daysInRange lists the on-disk day files the time range can touch.
// Files are named by trading day, which runs ahead of the calendar for
// night sessions (a Friday-evening tick lives in Monday's file), so
// the candidate window extends past end by the maximum skew; the row
// predicate filters precisely.
func (s *Store) daysInRange(start, end time.Time) []string {
	all, err := s.Days()
	if err != nil {
		return nil
	}
	lo := md.FormatDay(start)
	hi := md.FormatDay(end.AddDate(0, 0, md.TradingDaySkewDays))
	var days []string
	for _, day := range all {
		if day >= lo && day <= hi {
			days = append(days, day)
		}
	}
	return days
}

// emptyRows produces an empty result set so callers see "no data", not
// an error, when no day file exists in the range.
func emptyRows() (*sql.Rows, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "open empty session")
	}
	defer db.Close()
	return db.Query("SELECT 1 WHERE 0")
}

// rangePredicate builds the shared WHERE clause. Both bounds are
// inclusive; start == end selects rows at exactly that timestamp.
// Bounds are normalized to the exchange zone: SQLite compares the
// driver's timestamp text lexically, so every bound value must carry
// the same zone offset the writers bind with.
func rangePredicate(barType string) (string, func(start, end time.Time) []any) {
	if barType == "" {
		return "Timestamp >= ? AND Timestamp <= ?", func(start, end time.Time) []any {
			return []any{start.In(md.CST), end.In(md.CST)}
		}
	}
	return "BarType = ? AND Timestamp >= ? AND Timestamp <= ?", func(start, end time.Time) []any {
		return []any{barType, start.In(md.CST), end.In(md.CST)}
	}
}

func (s *Store) querySingleDay(day, table string, columns []string, barType string, start, end time.Time) (*sql.Rows, error) {
	db, err := s.openDayReadOnly(day)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	ok, err := tableExists(db, "main", table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return emptyRows()
	}

	where, args := rangePredicate(barType)
	q := "SELECT " + strings.Join(columns, ", ") + " FROM " + table +
		" WHERE " + where + " ORDER BY Timestamp"
	rows, err := db.Query(q, args(start, end)...)
	return rows, errors.Wrapf(err, "query %s %s", day, table)
}

func (s *Store) queryMultiDay(days []string, table string, columns []string, barType string, start, end time.Time) (*sql.Rows, error) {
	session, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, errors.Wrap(err, "open query session")
	}
	defer session.Close()
	// Each pooled connection would get its own in-memory database; pin
	// the session to one connection so the attachments stay visible.
	session.SetMaxOpenConns(1)

	where, args := rangePredicate(barType)
	colList := strings.Join(columns, ", ")

	var branches []string
	var branchArgs []any
	for i, day := range days {
		alias := fmt.Sprintf("d%d", i)
		attach := fmt.Sprintf("ATTACH DATABASE 'file:%s?mode=ro' AS %s", s.dayPath(day), alias)
		if _, err := session.Exec(attach); err != nil {
			return nil, errors.Wrapf(err, "attach day %s", day)
		}
		ok, err := tableExists(session, alias, table)
		if err != nil {
			return nil, err
		}
		if !ok {
			// No data for this instrument that day.
			continue
		}
		branches = append(branches,
			"SELECT "+colList+" FROM "+alias+"."+table+" WHERE "+where)
		branchArgs = append(branchArgs, args(start, end)...)
	}

	if len(branches) == 0 {
		return emptyRows()
	}

	q := strings.Join(branches, " UNION ALL ") + " ORDER BY Timestamp"
	rows, err := session.Query(q, branchArgs...)
	return rows, errors.Wrapf(err, "query %d days of %s", len(days), table)
}

// openDayReadOnly opens a day file read-only, never through the cached
// write handle. Missing files surface as ErrNotFound for callers that
// want to skip them.
func (s *Store) openDayReadOnly(day string) (*sql.DB, error) {
	path := s.dayPath(day)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrNotFound, "day file %s", day)
		}
		return nil, errors.Wrapf(err, "stat day file %s", day)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "open day %s read-only", day)
	}
	return db, nil
}

// tableExists checks an attached schema for a table.
func tableExists(db *sql.DB, schema, table string) (bool, error) {
	var n int
	q := "SELECT count(*) FROM " + schema + ".sqlite_master WHERE type = 'table' AND name = ?"
	if err := db.QueryRow(q, table).Scan(&n); err != nil {
		return false, errors.Wrapf(err, "check table %s.%s", schema, table)
	}
	return n > 0, nil
}
