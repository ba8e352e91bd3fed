package appendlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	tt "github.com/openfutures/tickd/internal/testing"
	"github.com/openfutures/tickd/md"
)

func newTestWriter(t *testing.T, cfg Config) *Writer {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	w, err := New(cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	return w
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestAppendWritesHeaderOnce(t *testing.T) {
	w := newTestWriter(t, Config{})
	w.Start()
	defer w.Stop()

	w.WriteTicks([]*md.Tick{tt.Tick("rb2501", tt.Day, tt.At(t, "09:00:15"), 3500.0, 10)})
	w.WriteTicks([]*md.Tick{tt.Tick("rb2501", tt.Day, tt.At(t, "09:00:45"), 3502.0, 25)})

	path := filepath.Join(w.cfg.Dir, "ticks", tt.Day, "rb2501.csv")
	require.Eventually(t, func() bool {
		if _, err := os.Stat(path); err != nil {
			return false
		}
		return len(readCSV(t, path)) == 3
	}, 5*time.Second, 20*time.Millisecond)

	records := readCSV(t, path)
	assert.Equal(t, tickHeader, records[0])
	assert.Equal(t, "3500", records[1][2])
	assert.Equal(t, "3502", records[2][2])
	assert.Equal(t, "rb2501", records[1][42])
}

func TestSameInstrumentAlwaysSameWorker(t *testing.T) {
	w := newTestWriter(t, Config{Workers: 4})
	first := w.shard("rb2501")
	for i := 0; i < 16; i++ {
		assert.Equal(t, first, w.shard("rb2501"))
	}
	// Spread across workers is the point of sharding; a handful of
	// distinct ids must not all land on one queue.
	seen := map[int]bool{}
	for _, id := range []string{"rb2501", "ag2506", "cu2503", "IF2501", "au2512", "ni2504", "sc2505", "i2509"} {
		seen[w.shard(id)] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestOverflowFallsBackToDirectWrite(t *testing.T) {
	// Workers never started: the queue saturates immediately and every
	// overflowing group takes the direct-write path. No rows are lost
	// to the fallback and no failures are recorded.
	w := newTestWriter(t, Config{Workers: 1, QueueCapacity: 2, SubmitTimeout: 10 * time.Millisecond})

	for i := 0; i < 10; i++ {
		w.WriteTicks([]*md.Tick{
			tt.Tick("rb2501", tt.Day, tt.At(t, "09:00:00").Add(time.Duration(i)*time.Second), 3500.0, int64(i)),
		})
	}

	_, direct, failed := w.Stats()
	assert.Equal(t, uint64(8), direct, "two groups queued, eight written directly")
	assert.Zero(t, failed)

	path := filepath.Join(w.cfg.Dir, "ticks", tt.Day, "rb2501.csv")
	records := readCSV(t, path)
	assert.Len(t, records, 9) // header + eight direct rows

	_, err := os.Stat(filepath.Join(w.cfg.Dir, failedWritesFile))
	assert.True(t, os.IsNotExist(err), "failed_writes.log must stay empty")
}

func TestSaturationLosesNothing(t *testing.T) {
	w := newTestWriter(t, Config{
		Workers:       1,
		QueueCapacity: 10,
		SubmitTimeout: 50 * time.Millisecond,
	})
	w.Start()

	for i := 0; i < 100; i++ {
		w.WriteTicks([]*md.Tick{
			tt.Tick("rb2501", tt.Day, tt.At(t, "09:00:00").Add(time.Duration(i)*time.Millisecond), 3500.0, int64(i)),
		})
	}
	w.Stop()

	path := filepath.Join(w.cfg.Dir, "ticks", tt.Day, "rb2501.csv")
	records := readCSV(t, path)
	require.Len(t, records, 101, "header plus every submitted row")

	// Every submitted timestamp is present exactly once.
	seen := make(map[string]int)
	for _, rec := range records[1:] {
		seen[rec[len(rec)-1]]++
	}
	assert.Len(t, seen, 100)

	_, _, failed := w.Stats()
	assert.Zero(t, failed)
	_, err := os.Stat(filepath.Join(w.cfg.Dir, failedWritesFile))
	assert.True(t, os.IsNotExist(err))
}

func TestFailedDirectWriteIsRecorded(t *testing.T) {
	w := newTestWriter(t, Config{Workers: 1, QueueCapacity: 1, SubmitTimeout: 10 * time.Millisecond})

	// A file where the ticks kind directory should be makes every
	// write attempt fail.
	require.NoError(t, os.WriteFile(filepath.Join(w.cfg.Dir, "ticks"), []byte("x"), 0o640))

	w.WriteTicks([]*md.Tick{tt.Tick("rb2501", tt.Day, tt.At(t, "09:00:15"), 3500.0, 10)}) // queued
	w.WriteTicks([]*md.Tick{tt.Tick("rb2501", tt.Day, tt.At(t, "09:00:45"), 3502.0, 25)}) // direct, fails

	_, _, failed := w.Stats()
	require.Equal(t, uint64(1), failed)

	raw, err := os.ReadFile(filepath.Join(w.cfg.Dir, failedWritesFile))
	require.NoError(t, err)
	line := string(raw)
	assert.Contains(t, line, " | "+tt.Day+" | rb2501 | 1 | ")
}

func TestBarRowsGoToBarTree(t *testing.T) {
	w := newTestWriter(t, Config{})
	w.Start()

	w.WriteBars([]*md.Bar{tt.Bar("rb2501", tt.Day, "1m", tt.At(t, "09:00:00"), 3500.0, 15)})
	w.Stop()

	path := filepath.Join(w.cfg.Dir, "bars", tt.Day, "rb2501.csv")
	records := readCSV(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, barHeader, records[0])
	assert.Equal(t, "1m", records[1][0])
	assert.Equal(t, "15", records[1][5])
}

func TestDayRolloverFlushesOldDay(t *testing.T) {
	w := newTestWriter(t, Config{BatchThreshold: 10_000})
	w.Start()

	w.WriteTicks([]*md.Tick{tt.Tick("rb2501", "20251105", tt.AtDay(t, "20251105", "22:59:59"), 3500.0, 10)})
	w.WriteTicks([]*md.Tick{tt.Tick("rb2501", "20251106", tt.AtDay(t, "20251106", "09:00:01"), 3501.0, 20)})

	oldPath := filepath.Join(w.cfg.Dir, "ticks", "20251105", "rb2501.csv")
	require.Eventually(t, func() bool {
		_, err := os.Stat(oldPath)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond, "day change must flush the old day without waiting for the threshold")

	w.Stop()
	newPath := filepath.Join(w.cfg.Dir, "ticks", "20251106", "rb2501.csv")
	assert.Len(t, readCSV(t, newPath), 2)
}
