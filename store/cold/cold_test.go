package cold

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	tt "github.com/openfutures/tickd/internal/testing"
	"github.com/openfutures/tickd/md"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), zap.NewNop().Sugar())
	require.NoError(t, err)
	return s
}

func TestTickSaveQueryRoundTrip(t *testing.T) {
	s := newTestStore(t)

	rows := []*md.Tick{
		tt.Tick("rb2501", tt.Day, tt.At(t, "09:00:15"), 3500.0, 10),
		tt.Tick("rb2501", tt.Day, tt.At(t, "09:00:45"), 3502.0, 25),
	}
	n, err := s.SaveTicks("rb2501", tt.Day, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.QueryTicks("rb2501", tt.At(t, "09:00:00"), tt.At(t, "10:00:00"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3500.0, got[0].LastPrice)
	assert.Equal(t, int64(25), got[1].Volume)
	assert.True(t, got[0].Timestamp.Equal(rows[0].Timestamp))
	assert.Equal(t, "SHFE", got[0].ExchangeID)
}

func TestSaveMergesReplayedRowsLastWins(t *testing.T) {
	s := newTestStore(t)

	at := tt.At(t, "09:00:15")
	_, err := s.SaveTicks("rb2501", tt.Day, []*md.Tick{tt.Tick("rb2501", tt.Day, at, 3500.0, 10)})
	require.NoError(t, err)

	// Re-archiving the same row (same timestamp and cumulative volume)
	// must not duplicate it, and the fresher copy wins.
	n, err := s.SaveTicks("rb2501", tt.Day, []*md.Tick{
		tt.Tick("rb2501", tt.Day, at, 3501.0, 10),
		tt.Tick("rb2501", tt.Day, at.Add(time.Second), 3502.0, 20),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.QueryTicks("rb2501", at, at.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3501.0, got[0].LastPrice)
}

func TestSaveKeepsDistinctTicksSharingTimestamp(t *testing.T) {
	s := newTestStore(t)

	// Exchange clocks tick in half-seconds, so two real ticks can
	// share a timestamp; their cumulative volumes keep them apart.
	at := tt.At(t, "09:00:15")
	n, err := s.SaveTicks("rb2501", tt.Day, []*md.Tick{
		tt.Tick("rb2501", tt.Day, at, 3500.0, 10),
		tt.Tick("rb2501", tt.Day, at, 3501.0, 14),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.QueryTicks("rb2501", at, at)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(10), got[0].Volume)
	assert.Equal(t, int64(14), got[1].Volume)
}

func TestQueryFindsNightSessionPartition(t *testing.T) {
	s := newTestStore(t)

	// A Friday 21:30 tick is archived under the following Monday's
	// trading day; a query over Friday evening must still reach it.
	friday := tt.AtDay(t, "20251107", "21:30:00")
	monday := "20251110"
	_, err := s.SaveTicks("rb2501", monday, []*md.Tick{
		tt.Tick("rb2501", monday, friday, 3500.0, 10),
	})
	require.NoError(t, err)

	got, err := s.QueryTicks("rb2501",
		tt.AtDay(t, "20251107", "21:00:00"),
		tt.AtDay(t, "20251107", "23:00:00"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Timestamp.Equal(friday))
}

func TestQueryRangeFilterInclusive(t *testing.T) {
	s := newTestStore(t)

	at := tt.At(t, "09:30:00")
	_, err := s.SaveTicks("rb2501", tt.Day, []*md.Tick{
		tt.Tick("rb2501", tt.Day, at.Add(-time.Second), 3499.0, 5),
		tt.Tick("rb2501", tt.Day, at, 3500.0, 10),
		tt.Tick("rb2501", tt.Day, at.Add(time.Second), 3501.0, 15),
	})
	require.NoError(t, err)

	got, err := s.QueryTicks("rb2501", at, at)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3500.0, got[0].LastPrice)
}

func TestQuerySpansPartitions(t *testing.T) {
	s := newTestStore(t)

	days := []string{"20251027", "20251028", "20251029"}
	for i, day := range days {
		_, err := s.SaveTicks("rb2501", day, []*md.Tick{
			tt.Tick("rb2501", day, tt.AtDay(t, day, "10:00:00"), 3500.0 + float64(i), int64(i+1)),
		})
		require.NoError(t, err)
	}

	got, err := s.QueryTicks("rb2501",
		tt.AtDay(t, "20251027", "00:00:00"),
		tt.AtDay(t, "20251029", "23:59:59"))
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Timestamp.Before(got[i].Timestamp))
	}
}

func TestQueryMissingPartitionIsEmpty(t *testing.T) {
	s := newTestStore(t)
	got, err := s.QueryTicks("rb2501", tt.At(t, "09:00:00"), tt.At(t, "10:00:00"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBarPartitionsKeyedByInterval(t *testing.T) {
	s := newTestStore(t)

	_, err := s.SaveBars("rb2501", "1m", tt.Day, []*md.Bar{
		tt.Bar("rb2501", tt.Day, "1m", tt.At(t, "09:00:00"), 3500.0, 15),
	})
	require.NoError(t, err)
	_, err = s.SaveBars("rb2501", "5m", tt.Day, []*md.Bar{
		tt.Bar("rb2501", tt.Day, "5m", tt.At(t, "09:00:00"), 3501.0, 40),
	})
	require.NoError(t, err)

	oneMin, err := s.QueryBars("rb2501", "1m", tt.At(t, "09:00:00"), tt.At(t, "10:00:00"))
	require.NoError(t, err)
	require.Len(t, oneMin, 1)
	assert.Equal(t, int64(15), oneMin[0].Volume)

	fiveMin, err := s.QueryBars("rb2501", "5m", tt.At(t, "09:00:00"), tt.At(t, "10:00:00"))
	require.NoError(t, err)
	require.Len(t, fiveMin, 1)
	assert.Equal(t, int64(40), fiveMin[0].Volume)

	n, err := s.CountBars("rb2501", "1m", tt.Day)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCountMissingPartitionIsZero(t *testing.T) {
	s := newTestStore(t)
	n, err := s.CountTicks("rb2501", tt.Day)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEmptySaveIsNoOp(t *testing.T) {
	s := newTestStore(t)
	n, err := s.SaveTicks("rb2501", tt.Day, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
