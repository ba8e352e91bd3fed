package alarm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfutures/tickd/bus"
	"github.com/openfutures/tickd/errors"
)

func newTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	b := bus.New(bus.Config{}, zap.NewNop().Sugar())
	b.Start()
	t.Cleanup(b.Stop)
	return b
}

func TestSinkPublishesAlarm(t *testing.T) {
	b := newTestBus(t)

	var got atomic.Int64
	var lastSource atomic.Value
	b.Subscribe(bus.KindAlarm, func(_ context.Context, ev bus.Event) error {
		fired, ok := ev.Payload.(bus.AlarmFired)
		require.True(t, ok)
		lastSource.Store(fired.Source)
		got.Add(1)
		return nil
	})

	sink := NewBusSink(b, 0, zap.NewNop().Sugar())
	sink.Raise("hot.writer", "flush failed", errors.New("disk full"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && got.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, int64(1), got.Load())
	assert.Equal(t, "hot.writer", lastSource.Load())
	assert.Equal(t, uint64(0), sink.Suppressed())
}

func TestSinkThrottlesPerSource(t *testing.T) {
	b := newTestBus(t)

	var got atomic.Int64
	b.Subscribe(bus.KindAlarm, func(_ context.Context, _ bus.Event) error {
		got.Add(1)
		return nil
	})

	// Burst of 1 per source: the first alarm passes, the rest of the
	// burst is suppressed locally.
	sink := NewBusSink(b, 6, zap.NewNop().Sugar())
	for i := 0; i < 10; i++ {
		sink.Raise("hot.writer", "flush failed", nil)
	}
	// A different source has its own budget.
	sink.Raise("append.worker", "csv write failed", nil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && got.Load() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, int64(2), got.Load())
	assert.Equal(t, uint64(9), sink.Suppressed())
}

func TestSinkNilErrorAccepted(t *testing.T) {
	b := newTestBus(t)
	sink := NewBusSink(b, 0, zap.NewNop().Sugar())
	assert.NotPanics(t, func() {
		sink.Raise("archive", "verification mismatch", nil)
	})
}

func TestSchedulerRejectsBadCron(t *testing.T) {
	b := newTestBus(t)
	_, err := NewScheduler(Config{ArchiveCron: "not a cron"}, b, zap.NewNop().Sugar())
	require.Error(t, err)

	_, err = NewScheduler(Config{SessionCloseCron: "99 99 * * *"}, b, zap.NewNop().Sugar())
	require.Error(t, err)
}

func TestSchedulerFirePublishesTask(t *testing.T) {
	b := newTestBus(t)

	var archives atomic.Int64
	b.Subscribe(bus.KindArchive, func(_ context.Context, ev bus.Event) error {
		fired, ok := ev.Payload.(bus.TaskFired)
		require.True(t, ok)
		assert.Equal(t, "archive", fired.Task)
		assert.NotEmpty(t, fired.Day)
		archives.Add(1)
		return nil
	})

	s, err := NewScheduler(Config{ArchiveCron: "30 15 * * 1-5"}, b, zap.NewNop().Sugar())
	require.NoError(t, err)
	s.fire(bus.KindArchive, "archive")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && archives.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, int64(1), archives.Load())
}

func TestSchedulerStartStop(t *testing.T) {
	b := newTestBus(t)
	s, err := NewScheduler(Config{
		ArchiveCron:      "30 15 * * 1-5",
		SessionCloseCron: "0 16 * * 1-5",
	}, b, zap.NewNop().Sugar())
	require.NoError(t, err)

	s.Start()
	s.Stop()
}
