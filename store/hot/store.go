package hot

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/openfutures/tickd/alarm"
	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/internal/ids"
	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/sym"
)

// flushRetries bounds the transient-failure retry loop before a batch
// is aborted and alarmed. Base delay 50ms, doubling per attempt.
const flushRetries = 3

// stopFlushWait is how long Stop waits for outstanding flush goroutines.
const stopFlushWait = 30 * time.Second

// Config sizes the writer.
type Config struct {
	Dir              string        // day files live here, {YYYYMMDD}.db
	TickThreshold    int           // buffered ticks per day before flush (default 10000)
	BarThreshold     int           // buffered bars per day before flush (default 3000)
	MonitorInterval  time.Duration // zombie sweep interval (default 30s)
	MaxFlushLifetime time.Duration // flush age before it is reported (default 2m)
}

// flushInfo tracks one in-flight flush goroutine for the monitor.
type flushInfo struct {
	day     string
	kind    string // "tick" or "bar"
	rows    int
	started time.Time
}

// Store is the hot tier writer and reader. Writes are buffered per
// trading day and flushed by named goroutines at threshold; reads open
// day files read-only and never contend with the write path beyond
// SQLite's own WAL coordination.
type Store struct {
	cfg Config

	bufMu sync.Mutex
	ticks map[string][]*md.Tick
	bars  map[string][]*md.Bar

	// One mutex per day file so two flushes never interleave
	// transactions on the same database.
	fileMu    sync.Mutex
	fileLocks map[string]*sync.Mutex

	dbMu sync.Mutex
	dbs  map[string]*sql.DB

	monMu    sync.Mutex
	inFlight map[string]flushInfo

	flushWG sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	monWG  sync.WaitGroup

	sink alarm.Sink
	log  *zap.SugaredLogger
}

// New creates the store and its data directory.
func New(cfg Config, sink alarm.Sink, log *zap.SugaredLogger) (*Store, error) {
	if cfg.TickThreshold <= 0 {
		cfg.TickThreshold = 10_000
	}
	if cfg.BarThreshold <= 0 {
		cfg.BarThreshold = 3_000
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 30 * time.Second
	}
	if cfg.MaxFlushLifetime <= 0 {
		cfg.MaxFlushLifetime = 2 * time.Minute
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "create hot store dir %s", cfg.Dir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		cfg:       cfg,
		ticks:     make(map[string][]*md.Tick),
		bars:      make(map[string][]*md.Bar),
		fileLocks: make(map[string]*sync.Mutex),
		dbs:       make(map[string]*sql.DB),
		inFlight:  make(map[string]flushInfo),
		ctx:       ctx,
		cancel:    cancel,
		sink:      sink,
		log:       log.Named("hotstore"),
	}, nil
}

// Start launches the flush monitor and checks memory headroom against
// the configured buffer sizes.
func (s *Store) Start() {
	s.checkMemoryPressure()

	s.monWG.Add(1)
	go s.monitorLoop()

	s.log.Infow(sym.DB+" Hot store started",
		"dir", s.cfg.Dir,
		"tick_threshold", s.cfg.TickThreshold,
		"bar_threshold", s.cfg.BarThreshold)
}

// WriteTicks buffers ticks by trading day. A day buffer crossing the
// threshold is swapped out under the lock and handed to a named flush
// goroutine; the caller never waits on SQLite.
func (s *Store) WriteTicks(rows []*md.Tick) {
	s.bufMu.Lock()
	var full map[string][]*md.Tick
	for _, t := range rows {
		day := t.Day()
		s.ticks[day] = append(s.ticks[day], t)
		if len(s.ticks[day]) >= s.cfg.TickThreshold {
			if full == nil {
				full = make(map[string][]*md.Tick, 1)
			}
			full[day] = s.ticks[day]
			delete(s.ticks, day)
		}
	}
	s.bufMu.Unlock()

	for day, batch := range full {
		s.spawnFlush(day, "tick", len(batch), func() error {
			return s.flushTicks(day, batch)
		})
	}
}

// WriteBars buffers bars by trading day, same policy as WriteTicks.
func (s *Store) WriteBars(rows []*md.Bar) {
	s.bufMu.Lock()
	var full map[string][]*md.Bar
	for _, b := range rows {
		day := b.Day()
		s.bars[day] = append(s.bars[day], b)
		if len(s.bars[day]) >= s.cfg.BarThreshold {
			if full == nil {
				full = make(map[string][]*md.Bar, 1)
			}
			full[day] = s.bars[day]
			delete(s.bars, day)
		}
	}
	s.bufMu.Unlock()

	for day, batch := range full {
		s.spawnFlush(day, "bar", len(batch), func() error {
			return s.flushBars(day, batch)
		})
	}
}

// spawnFlush runs one flush under a short base58 name so its log lines
// and its monitor entry correlate.
func (s *Store) spawnFlush(day, kind string, rows int, fn func() error) {
	id := ids.Flush()
	s.monMu.Lock()
	s.inFlight[id] = flushInfo{day: day, kind: kind, rows: rows, started: time.Now()}
	s.monMu.Unlock()

	s.flushWG.Add(1)
	go func() {
		defer s.flushWG.Done()
		defer func() {
			s.monMu.Lock()
			delete(s.inFlight, id)
			s.monMu.Unlock()
		}()

		start := time.Now()
		if err := fn(); err != nil {
			s.log.Errorw(sym.DB+" Flush aborted",
				"flush_id", id,
				"day", day,
				"kind", kind,
				"rows", rows,
				"error", err)
			return
		}
		s.log.Infow(sym.DB+" Flush complete",
			"flush_id", id,
			"day", day,
			"kind", kind,
			"rows", rows,
			"elapsed", time.Since(start))
	}()
}

// monitorLoop sweeps the in-flight map and reports flushes that have
// outlived the configured lifetime. Zombies are reported, never killed.
func (s *Store) monitorLoop() {
	defer s.monWG.Done()
	ticker := time.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.monMu.Lock()
			for id, info := range s.inFlight {
				if age := time.Since(info.started); age > s.cfg.MaxFlushLifetime {
					s.log.Warnw(sym.DB+" Flush exceeded max lifetime",
						"flush_id", id,
						"day", info.day,
						"kind", info.kind,
						"rows", info.rows,
						"age", age)
				}
			}
			s.monMu.Unlock()
		}
	}
}

// flushTicks writes one day batch with retries; an exhausted batch is
// alarmed and dropped from the hot tier (the append log still has it).
func (s *Store) flushTicks(day string, rows []*md.Tick) error {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].InstrumentID != rows[j].InstrumentID {
			return rows[i].InstrumentID < rows[j].InstrumentID
		}
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
	return s.withRetries(day, "tick", len(rows), func(db *sql.DB) error {
		return insertTicks(db, rows)
	})
}

func (s *Store) flushBars(day string, rows []*md.Bar) error {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].InstrumentID != rows[j].InstrumentID {
			return rows[i].InstrumentID < rows[j].InstrumentID
		}
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})
	return s.withRetries(day, "bar", len(rows), func(db *sql.DB) error {
		return insertBars(db, rows)
	})
}

// withRetries serializes on the day-file mutex, opens or reuses the day
// database, and runs the insert with bounded retries. After the budget
// the batch is aborted and an alarm is raised.
func (s *Store) withRetries(day, kind string, rows int, fn func(*sql.DB) error) error {
	lock := s.fileLock(day)
	lock.Lock()
	defer lock.Unlock()

	var lastErr error
	delay := 50 * time.Millisecond
	for attempt := 1; attempt <= flushRetries; attempt++ {
		db, err := s.openDay(day)
		if err != nil {
			lastErr = err
		} else if err := fn(db); err != nil {
			lastErr = err
		} else {
			return nil
		}

		s.log.Warnw(sym.DB+" Flush attempt failed",
			"day", day,
			"kind", kind,
			"attempt", attempt,
			"error", lastErr)
		time.Sleep(delay)
		delay *= 2
	}

	if s.sink != nil {
		s.sink.Raise("hot.writer", "hot flush aborted after retries", lastErr)
	}
	return errors.Wrapf(errors.ErrBatchAborted, "%s flush %s (%d rows): %v", kind, day, rows, lastErr)
}

// insertTicks writes one sorted batch in a single transaction with
// per-instrument CREATE TABLE IF NOT EXISTS and prepared bulk inserts.
func insertTicks(db *sql.DB, rows []*md.Tick) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	created := map[string]bool{}
	stmts := map[string]*sql.Stmt{}
	defer func() {
		for _, st := range stmts {
			st.Close()
		}
	}()

	for _, t := range rows {
		table := tickTable(t.InstrumentID)
		if !created[table] {
			if _, err := tx.Exec(createTickTableSQL(t.InstrumentID)); err != nil {
				return errors.Wrapf(err, "create %s", table)
			}
			created[table] = true
		}
		st, ok := stmts[table]
		if !ok {
			st, err = tx.Prepare(insertSQL(table, tickColumnNames))
			if err != nil {
				return errors.Wrapf(err, "prepare %s", table)
			}
			stmts[table] = st
		}
		if _, err := st.Exec(tickValues(t)...); err != nil {
			return errors.Wrapf(err, "insert %s", table)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func insertBars(db *sql.DB, rows []*md.Bar) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	created := map[string]bool{}
	stmts := map[string]*sql.Stmt{}
	defer func() {
		for _, st := range stmts {
			st.Close()
		}
	}()

	for _, b := range rows {
		table := barTable(b.InstrumentID)
		if !created[table] {
			if _, err := tx.Exec(createBarTableSQL(b.InstrumentID)); err != nil {
				return errors.Wrapf(err, "create %s", table)
			}
			created[table] = true
		}
		st, ok := stmts[table]
		if !ok {
			st, err = tx.Prepare(insertSQL(table, barColumnNames))
			if err != nil {
				return errors.Wrapf(err, "prepare %s", table)
			}
			stmts[table] = st
		}
		if _, err := st.Exec(barValues(b)...); err != nil {
			return errors.Wrapf(err, "insert %s", table)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// fileLock returns the per-day-file mutex, creating it lazily.
func (s *Store) fileLock(day string) *sync.Mutex {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	lock, ok := s.fileLocks[day]
	if !ok {
		lock = &sync.Mutex{}
		s.fileLocks[day] = lock
	}
	return lock
}

// dayPath returns the day database file path.
func (s *Store) dayPath(day string) string {
	return filepath.Join(s.cfg.Dir, day+".db")
}

// openDay opens or reuses the writable handle for a day file, with WAL
// mode and a busy timeout so readers never starve a flush.
func (s *Store) openDay(day string) (*sql.DB, error) {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if db, ok := s.dbs[day]; ok {
		return db, nil
	}

	db, err := sql.Open("sqlite3", s.dayPath(day))
	if err != nil {
		return nil, errors.Wrapf(err, "open day db %s", day)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "%s on %s", pragma, day)
		}
	}

	s.dbs[day] = db
	s.log.Debugw(sym.DB+" Day database opened", "day", day, "path", s.dayPath(day))
	return db, nil
}

// closeDay drops and closes the cached write handle for a day. Used
// before deleting or vacuuming the file.
func (s *Store) closeDay(day string) {
	s.dbMu.Lock()
	db, ok := s.dbs[day]
	if ok {
		delete(s.dbs, day)
	}
	s.dbMu.Unlock()
	if ok {
		db.Close()
	}
}

// Flush synchronously writes every buffered row. Used by Stop and by
// tests; errors are aggregated so one bad day does not hide another.
func (s *Store) Flush() error {
	s.bufMu.Lock()
	ticks := s.ticks
	bars := s.bars
	s.ticks = make(map[string][]*md.Tick)
	s.bars = make(map[string][]*md.Bar)
	s.bufMu.Unlock()

	var errs error
	for day, batch := range ticks {
		if err := s.flushTicks(day, batch); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	for day, batch := range bars {
		if err := s.flushBars(day, batch); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

// Stop drains the buffers synchronously, waits up to 30s for in-flight
// flushes, and closes every day handle. Flushes still running after the
// wait are logged and left to finish on their own.
func (s *Store) Stop(ctx context.Context) error {
	s.cancel()
	s.monWG.Wait()

	flushErr := s.Flush()

	done := make(chan struct{})
	go func() {
		s.flushWG.Wait()
		close(done)
	}()

	wait := stopFlushWait
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < wait {
			wait = until
		}
	}

	select {
	case <-done:
	case <-time.After(wait):
		s.monMu.Lock()
		for id, info := range s.inFlight {
			s.log.Warnw(sym.DB+" Flush still running at shutdown",
				"flush_id", id,
				"day", info.day,
				"kind", info.kind,
				"age", time.Since(info.started))
		}
		s.monMu.Unlock()
	}

	s.dbMu.Lock()
	for day, db := range s.dbs {
		db.Close()
		delete(s.dbs, day)
	}
	s.dbMu.Unlock()

	s.log.Infow(sym.PulseClose + " Hot store stopped")
	return flushErr
}

// Buffered returns the current buffered row counts, for health checks.
func (s *Store) Buffered() (ticks, bars int) {
	s.bufMu.Lock()
	defer s.bufMu.Unlock()
	for _, rows := range s.ticks {
		ticks += len(rows)
	}
	for _, rows := range s.bars {
		bars += len(rows)
	}
	return ticks, bars
}
