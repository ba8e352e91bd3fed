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

func writeSessionFixture(t *testing.T, dir string) string {
	t.Helper()
	w := newTestWriter(t, Config{Dir: dir})
	w.Start()

	base := tt.At(t, "09:00:00")
	w.WriteTicks([]*md.Tick{
		tt.Tick("rb2501", tt.Day, base.Add(2*time.Second), 3502.0, 25),
		tt.Tick("rb2501", tt.Day, base, 3500.0, 10),
		// Duplicate timestamp: the later append must win.
		tt.Tick("rb2501", tt.Day, base, 3499.0, 11),
		tt.Tick("rb2501", tt.Day, base.Add(time.Second), 3501.0, 20),
	})
	w.Stop()
	return filepath.Join(dir, "ticks", tt.Day, "rb2501.csv")
}

func TestDedupKeepsLastAndSorts(t *testing.T) {
	path := writeSessionFixture(t, t.TempDir())

	require.NoError(t, DedupFile(path))

	records := readCSV(t, path)
	require.Len(t, records, 4) // header + three distinct timestamps

	priceCol, tsCol := 2, len(tickHeader)-1
	assert.Equal(t, "3499", records[1][priceCol], "last occurrence wins for the duplicated timestamp")
	for i := 2; i < len(records); i++ {
		assert.Less(t, records[i-1][tsCol], records[i][tsCol])
	}
}

func TestDedupIsIdempotent(t *testing.T) {
	path := writeSessionFixture(t, t.TempDir())

	require.NoError(t, DedupFile(path))
	first := readCSV(t, path)

	require.NoError(t, DedupFile(path))
	second := readCSV(t, path)

	assert.Equal(t, first, second)
}

func TestCloseDayArchivesAndRemoves(t *testing.T) {
	dir := t.TempDir()
	writeSessionFixture(t, dir)
	log := zap.NewNop().Sugar()

	require.NoError(t, CloseDay(dir, tt.Day, log))

	dayDir := filepath.Join(dir, "ticks", tt.Day)
	_, err := os.Stat(dayDir)
	assert.True(t, os.IsNotExist(err), "day directory is removed after archiving")

	archive := filepath.Join(dir, "ticks", tt.Day+".tar.gz")
	info, err := os.Stat(archive)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// Second run is a no-op, not an error.
	require.NoError(t, CloseDay(dir, tt.Day, log))
}

func TestCloseDayMissingDayIsNoOp(t *testing.T) {
	require.NoError(t, CloseDay(t.TempDir(), "20200101", zap.NewNop().Sugar()))
}

func TestDedupEmptyAndHeaderOnlyFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o640))
	require.NoError(t, DedupFile(path))

	headerOnly := filepath.Join(dir, "header.csv")
	f, err := os.Create(headerOnly)
	require.NoError(t, err)
	require.NoError(t, csv.NewWriter(f).WriteAll([][]string{tickHeader}))
	require.NoError(t, f.Close())
	require.NoError(t, DedupFile(headerOnly))
}
