package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	tt "github.com/openfutures/tickd/internal/testing"
	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/store/cold"
	"github.com/openfutures/tickd/store/hot"
)

const oldDay = "20251020" // past a 7-day retention anchored at tt.Day

type rig struct {
	hot      *hot.Store
	cold     *cold.Store
	archiver *Archiver
	coldDir  string
}

func newRig(t *testing.T) *rig {
	t.Helper()
	base := t.TempDir()
	nop := zap.NewNop().Sugar()

	h, err := hot.New(hot.Config{Dir: filepath.Join(base, "hot")}, nil, nop)
	require.NoError(t, err)
	t.Cleanup(func() { h.Stop(context.Background()) })

	coldDir := filepath.Join(base, "cold")
	c, err := cold.New(coldDir, nop)
	require.NoError(t, err)

	a := New(h, c, 7, nil, nop)
	a.now = func() time.Time { return tt.At(t, "15:30:00") }
	return &rig{hot: h, cold: c, archiver: a, coldDir: coldDir}
}

func (r *rig) seedOldTicks(t *testing.T) []*md.Tick {
	t.Helper()
	rows := []*md.Tick{
		tt.Tick("rb2501", oldDay, tt.AtDay(t, oldDay, "09:00:15"), 3400.0, 10),
		tt.Tick("rb2501", oldDay, tt.AtDay(t, oldDay, "09:00:45"), 3401.0, 25),
	}
	r.hot.WriteTicks(rows)
	require.NoError(t, r.hot.Flush())
	return rows
}

func TestRunArchivesVerifiesAndDeletes(t *testing.T) {
	r := newRig(t)
	r.seedOldTicks(t)

	// Today's rows must survive the cycle.
	r.hot.WriteTicks([]*md.Tick{tt.Tick("rb2501", tt.Day, tt.At(t, "09:00:15"), 3500.0, 5)})
	require.NoError(t, r.hot.Flush())

	report, err := r.archiver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TickPartitions)
	assert.Equal(t, 2, report.RowsArchived)
	assert.Equal(t, int64(2), report.RowsDeleted)
	assert.Equal(t, []string{oldDay}, report.Days)

	n, err := r.cold.CountTicks("rb2501", oldDay)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	gone, err := r.hot.QueryTicks("rb2501",
		tt.AtDay(t, oldDay, "00:00:00"), tt.AtDay(t, oldDay, "23:00:00"))
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := r.hot.QueryTicks("rb2501", tt.At(t, "00:00:00"), tt.At(t, "23:00:00"))
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestRunWithNothingDue(t *testing.T) {
	r := newRig(t)
	r.hot.WriteTicks([]*md.Tick{tt.Tick("rb2501", tt.Day, tt.At(t, "09:00:15"), 3500.0, 5)})
	require.NoError(t, r.hot.Flush())

	report, err := r.archiver.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.TickPartitions)
	assert.Zero(t, report.RowsDeleted)
}

func TestRunIsIdempotent(t *testing.T) {
	r := newRig(t)
	r.seedOldTicks(t)

	_, err := r.archiver.Run(context.Background())
	require.NoError(t, err)

	report, err := r.archiver.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.RowsArchived)

	n, err := r.cold.CountTicks("rb2501", oldDay)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunArchivesBarPartitionsPerInterval(t *testing.T) {
	r := newRig(t)
	r.hot.WriteBars([]*md.Bar{
		tt.Bar("rb2501", oldDay, "1m", tt.AtDay(t, oldDay, "09:01:00"), 3400.0, 15),
		tt.Bar("rb2501", oldDay, "5m", tt.AtDay(t, oldDay, "09:05:00"), 3401.0, 60),
	})
	require.NoError(t, r.hot.Flush())

	report, err := r.archiver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.BarPartitions)

	n, err := r.cold.CountBars("rb2501", "1m", oldDay)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = r.cold.CountBars("rb2501", "5m", oldDay)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAbortedCycleLeavesHotUntouched(t *testing.T) {
	r := newRig(t)
	r.seedOldTicks(t)

	// A file where the cold tier needs a directory makes the save fail.
	require.NoError(t, os.MkdirAll(r.coldDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(r.coldDir, "ticks"), []byte("x"), 0o640))

	_, err := r.archiver.Run(context.Background())
	require.Error(t, err)

	kept, err := r.hot.QueryTicks("rb2501",
		tt.AtDay(t, oldDay, "00:00:00"), tt.AtDay(t, oldDay, "23:00:00"))
	require.NoError(t, err)
	assert.Len(t, kept, 2, "hot rows survive an aborted cycle")
}

func TestCancelledContextAborts(t *testing.T) {
	r := newRig(t)
	r.seedOldTicks(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.archiver.Run(ctx)
	require.Error(t, err)

	kept, err := r.hot.QueryTicks("rb2501",
		tt.AtDay(t, oldDay, "00:00:00"), tt.AtDay(t, oldDay, "23:00:00"))
	require.NoError(t, err)
	assert.Len(t, kept, 2)
}
