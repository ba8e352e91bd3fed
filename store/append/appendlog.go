package appendlog

import (
	"encoding/csv"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/sym"
)

// Row kinds; each kind has its own directory tree and header.
const (
	kindTick = "ticks"
	kindBar  = "bars"
)

// failedWritesFile records degraded-mode failures for operator recovery.
const failedWritesFile = "failed_writes.log"

// dequeueTick bounds how long a worker blocks on its queue, keeping
// shutdown responsive and giving quiet periods a flush opportunity.
const dequeueTick = time.Second

// Config sizes the writer pool.
type Config struct {
	Dir            string        // CSV root; kind/day/instrument trees beneath it
	Workers        int           // writer goroutines (default 4)
	BatchThreshold int           // buffered rows per worker before flush (default 500)
	QueueCapacity  int           // per-worker queue capacity (default 256)
	SubmitTimeout  time.Duration // bounded enqueue wait before the direct-write fallback (default 5s)
	JoinTimeout    time.Duration // per-worker Stop join bound (default 5s)
}

// fileKey identifies one CSV file.
type fileKey struct {
	kind         string
	day          string
	instrumentID string
}

// group is one routed unit of work: rows for a single file.
type group struct {
	key      fileKey
	records  [][]string
	sentinel bool
}

// Writer appends tick and bar rows to per-day, per-contract CSV files
// through a fixed pool of sharded workers. The same instrument always
// lands on the same worker, so a contract's file is never contended
// across workers; the per-file locks only matter for the degraded
// direct-write path.
type Writer struct {
	cfg Config

	queues []chan group
	wg     []*sync.WaitGroup

	fileMu    sync.Mutex
	fileLocks map[fileKey]*sync.Mutex

	failMu sync.Mutex

	rowsWritten  atomic.Uint64
	directWrites atomic.Uint64
	failedWrites atomic.Uint64

	stopped atomic.Bool

	log *zap.SugaredLogger
}

// New creates the writer and its root directory.
func New(cfg Config, log *zap.SugaredLogger) (*Writer, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchThreshold <= 0 {
		cfg.BatchThreshold = 500
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 5 * time.Second
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 5 * time.Second
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "create append log dir %s", cfg.Dir)
	}

	w := &Writer{
		cfg:       cfg,
		queues:    make([]chan group, cfg.Workers),
		wg:        make([]*sync.WaitGroup, cfg.Workers),
		fileLocks: make(map[fileKey]*sync.Mutex),
		log:       log.Named("appendlog"),
	}
	for i := range w.queues {
		w.queues[i] = make(chan group, cfg.QueueCapacity)
		w.wg[i] = &sync.WaitGroup{}
	}
	return w, nil
}

// Start launches the worker pool.
func (w *Writer) Start() {
	for i := range w.queues {
		w.wg[i].Add(1)
		go w.worker(i)
	}
	w.log.Infow(sym.CSV+" Append log started",
		"dir", w.cfg.Dir,
		"workers", w.cfg.Workers,
		"batch_threshold", w.cfg.BatchThreshold)
}

// WriteTicks routes tick rows to their workers, grouped per file.
func (w *Writer) WriteTicks(rows []*md.Tick) {
	groups := make(map[fileKey][][]string)
	for _, t := range rows {
		key := fileKey{kind: kindTick, day: t.Day(), instrumentID: t.InstrumentID}
		groups[key] = append(groups[key], tickRecord(t))
	}
	for key, records := range groups {
		w.submit(group{key: key, records: records})
	}
}

// WriteBars routes bar rows to their workers, grouped per file.
func (w *Writer) WriteBars(rows []*md.Bar) {
	groups := make(map[fileKey][][]string)
	for _, b := range rows {
		key := fileKey{kind: kindBar, day: b.Day(), instrumentID: b.InstrumentID}
		groups[key] = append(groups[key], barRecord(b))
	}
	for key, records := range groups {
		w.submit(group{key: key, records: records})
	}
}

// submit enqueues one group with a bounded wait. On timeout the group
// is written directly to file, bypassing the queue; if even that fails
// the loss is recorded in failed_writes.log. Rows are never silently
// dropped.
func (w *Writer) submit(g group) {
	q := w.queues[w.shard(g.key.instrumentID)]

	select {
	case q <- g:
		return
	default:
	}

	select {
	case q <- g:
		return
	case <-time.After(w.cfg.SubmitTimeout):
	}

	// A direct write can land ahead of rows for the same file still
	// sitting in the worker's buffer, so line order within a saturated
	// file is not arrival order. Loss-free either way; CloseDay's
	// dedup+sort restores timestamp order at end of session.
	w.directWrites.Add(1)
	w.log.Warnw(sym.CSV+" Worker queue saturated, writing directly",
		"instrument", g.key.instrumentID,
		"day", g.key.day,
		"rows", len(g.records))
	if err := w.writeFile(g.key, g.records); err != nil {
		w.recordFailure(g.key, len(g.records), err)
	}
}

// shard maps an instrument to its worker with a stable hash, so the
// assignment survives restarts and does not depend on map iteration or
// language-default hashing.
func (w *Writer) shard(instrumentID string) int {
	h := fnv.New32a()
	h.Write([]byte(instrumentID))
	return int(h.Sum32() % uint32(len(w.queues)))
}

// worker drains its queue, buffering rows per file and flushing at the
// batch threshold, on a trading-day change, or when the queue goes
// quiet with rows still buffered.
func (w *Writer) worker(i int) {
	defer w.wg[i].Done()

	buf := make(map[fileKey][][]string)
	total := 0
	currentDay := ""

	flushAll := func() {
		for key, records := range buf {
			if err := w.writeFile(key, records); err != nil {
				w.recordFailure(key, len(records), err)
			}
		}
		buf = make(map[fileKey][][]string)
		total = 0
	}

	for {
		select {
		case g := <-w.queues[i]:
			if g.sentinel {
				flushAll()
				return
			}
			if currentDay != "" && g.key.day != currentDay {
				// Trading day rolled over; close out the old day's
				// buffers before accepting the new day's rows.
				flushAll()
			}
			currentDay = g.key.day
			buf[g.key] = append(buf[g.key], g.records...)
			total += len(g.records)
			if total >= w.cfg.BatchThreshold {
				flushAll()
			}
		case <-time.After(dequeueTick):
			if total > 0 {
				flushAll()
			}
		}
	}
}

// writeFile appends records to the file for key, creating the day
// directory and writing the header when the file is empty. Serialized
// by the per-file lock; worker writes and degraded direct writes never
// interleave rows.
func (w *Writer) writeFile(key fileKey, records [][]string) error {
	lock := w.fileLock(key)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Join(w.cfg.Dir, key.kind, key.day)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrapf(err, "create day dir %s", dir)
	}

	path := filepath.Join(dir, key.instrumentID+".csv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		header := tickHeader
		if key.kind == kindBar {
			header = barHeader
		}
		if err := cw.Write(header); err != nil {
			return errors.Wrapf(err, "write header %s", path)
		}
	}
	for _, rec := range records {
		if err := cw.Write(rec); err != nil {
			return errors.Wrapf(err, "append %s", path)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrapf(err, "flush %s", path)
	}

	w.rowsWritten.Add(uint64(len(records)))
	return nil
}

// fileLock returns the per-file mutex, created lazily.
func (w *Writer) fileLock(key fileKey) *sync.Mutex {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()
	lock, ok := w.fileLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		w.fileLocks[key] = lock
	}
	return lock
}

// recordFailure appends one line to failed_writes.log. This is the
// last stop: the row data is gone from this tier, and the operator
// recovers it from the hot store using the logged coordinates.
func (w *Writer) recordFailure(key fileKey, rows int, cause error) {
	w.failedWrites.Add(1)
	w.log.Errorw(sym.CSV+" Append write failed, recording loss",
		"instrument", key.instrumentID,
		"day", key.day,
		"rows", rows,
		"error", cause)

	line := fmt.Sprintf("%s | %s | %s | %d | %v\n",
		time.Now().Format(time.RFC3339), key.day, key.instrumentID, rows, cause)

	w.failMu.Lock()
	defer w.failMu.Unlock()
	f, err := os.OpenFile(filepath.Join(w.cfg.Dir, failedWritesFile),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		w.log.Errorw(sym.CSV+" Cannot open failed_writes.log", "error", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		w.log.Errorw(sym.CSV+" Cannot append failed_writes.log", "error", err)
	}
}

// Stop injects a sentinel per worker and joins each with a bounded
// wait. Workers flush their buffers on the way out; one that misses
// its deadline is logged and left behind.
func (w *Writer) Stop() {
	if !w.stopped.CompareAndSwap(false, true) {
		return
	}

	for i := range w.queues {
		select {
		case w.queues[i] <- group{sentinel: true}:
		case <-time.After(w.cfg.JoinTimeout):
			w.log.Warnw(sym.CSV+" Worker refused sentinel", "worker", i)
			continue
		}

		done := make(chan struct{})
		go func(wg *sync.WaitGroup) {
			wg.Wait()
			close(done)
		}(w.wg[i])

		select {
		case <-done:
		case <-time.After(w.cfg.JoinTimeout):
			w.log.Warnw(sym.CSV+" Worker did not exit within join timeout", "worker", i)
		}
	}

	w.log.Infow(sym.PulseClose+" Append log stopped",
		"rows_written", w.rowsWritten.Load(),
		"direct_writes", w.directWrites.Load(),
		"failed_writes", w.failedWrites.Load())
}

// Stats reports writer counters for health checks and tests.
func (w *Writer) Stats() (written, direct, failed uint64) {
	return w.rowsWritten.Load(), w.directWrites.Load(), w.failedWrites.Load()
}
