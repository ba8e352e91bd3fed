package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/md"
)

func newTestBus(t *testing.T, cfg Config) *Bus {
	t.Helper()
	b := New(cfg, zap.NewNop().Sugar())
	b.Start()
	t.Cleanup(b.Stop)
	return b
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPublishBeforeStart(t *testing.T) {
	b := New(Config{}, zap.NewNop().Sugar())
	err := b.Publish(Event{Kind: KindTick})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotRunning))
}

func TestSyncDelivery(t *testing.T) {
	b := newTestBus(t, Config{})

	var got atomic.Int64
	b.Subscribe(KindTick, func(ctx context.Context, ev Event) error {
		got.Add(1)
		return nil
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(Event{Kind: KindTick, Payload: &md.Tick{}}))
	}
	waitFor(t, func() bool { return got.Load() == 10 }, "sync handler did not receive all events")
}

func TestAsyncDelivery(t *testing.T) {
	b := newTestBus(t, Config{})

	var got atomic.Int64
	b.SubscribeAsync(KindAlarm, func(ctx context.Context, ev Event) error {
		got.Add(1)
		return nil
	})

	require.NoError(t, b.Publish(Event{Kind: KindAlarm, Payload: AlarmFired{Source: "test"}}))
	waitFor(t, func() bool { return got.Load() == 1 }, "async handler did not run")
}

func TestTraceIDPropagation(t *testing.T) {
	b := newTestBus(t, Config{})

	traces := make(chan string, 2)
	b.Subscribe(KindBar, func(ctx context.Context, ev Event) error {
		traces <- TraceFrom(ctx)
		return nil
	})

	// Explicit trace id passes through.
	require.NoError(t, b.Publish(Event{Kind: KindBar, TraceID: "trace-1"}))
	assert.Equal(t, "trace-1", <-traces)

	// Missing trace id is filled in by the bus.
	require.NoError(t, b.Publish(Event{Kind: KindBar}))
	assert.NotEmpty(t, <-traces)
}

func TestHandlerPanicIsolation(t *testing.T) {
	b := newTestBus(t, Config{})

	var survivor atomic.Int64
	b.Subscribe(KindTick, func(ctx context.Context, ev Event) error {
		panic("boom")
	})
	b.Subscribe(KindTick, func(ctx context.Context, ev Event) error {
		survivor.Add(1)
		return nil
	})

	require.NoError(t, b.Publish(Event{Kind: KindTick}))
	waitFor(t, func() bool { return survivor.Load() == 1 }, "surviving handler did not run")
	waitFor(t, func() bool { return b.Stats().HandlerErrors >= 1 }, "panic not counted")
}

func TestUnsubscribeIdempotent(t *testing.T) {
	b := newTestBus(t, Config{})

	var got atomic.Int64
	id := b.Subscribe(KindTimer, func(ctx context.Context, ev Event) error {
		got.Add(1)
		return nil
	})

	b.Unsubscribe(KindTimer, id)
	b.Unsubscribe(KindTimer, id) // second removal is a no-op
	b.Unsubscribe(KindTimer, "no-such-id")

	require.NoError(t, b.Publish(Event{Kind: KindTimer}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), got.Load())
}

func TestTicksNeverDropped(t *testing.T) {
	// One market worker, tiny queue, slow handler: the publisher must
	// outrun the consumer and exercise the overflow path.
	b := newTestBus(t, Config{MarketWorkers: 1, GeneralWorkers: 1, QueueCapacity: 2})

	var got atomic.Int64
	release := make(chan struct{})
	var once sync.Once
	b.Subscribe(KindTick, func(ctx context.Context, ev Event) error {
		once.Do(func() { <-release })
		got.Add(1)
		return nil
	})

	const total = 100
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	for i := 0; i < total; i++ {
		require.NoError(t, b.Publish(Event{Kind: KindTick, Payload: &md.Tick{}}))
	}

	waitFor(t, func() bool { return got.Load() == total }, "ticks were lost under overflow")
	assert.Equal(t, uint64(0), b.Stats().Dropped)
}

func TestNonTickDroppedWhenSaturated(t *testing.T) {
	b := newTestBus(t, Config{MarketWorkers: 1, GeneralWorkers: 1, QueueCapacity: 1})

	block := make(chan struct{})
	b.Subscribe(KindAlarm, func(ctx context.Context, ev Event) error {
		<-block
		return nil
	})
	defer close(block)

	// Saturate the single worker plus the queue slot, then overflow.
	var dropErr error
	for i := 0; i < 10; i++ {
		if err := b.Publish(Event{Kind: KindAlarm}); err != nil {
			dropErr = err
			break
		}
	}
	require.Error(t, dropErr)
	assert.True(t, errors.Is(dropErr, errors.ErrQueueFull))
	assert.GreaterOrEqual(t, b.Stats().Dropped, uint64(1))
}

func TestTimerEvents(t *testing.T) {
	b := newTestBus(t, Config{TimerInterval: 10 * time.Millisecond})

	var ticks atomic.Int64
	b.Subscribe(KindTimer, func(ctx context.Context, ev Event) error {
		_, ok := ev.Payload.(TimerTick)
		require.True(t, ok)
		ticks.Add(1)
		return nil
	})

	waitFor(t, func() bool { return ticks.Load() >= 3 }, "timer did not fire")
}

func TestStopIsIdempotentAndDrains(t *testing.T) {
	b := New(Config{}, zap.NewNop().Sugar())
	b.Start()

	var got atomic.Int64
	b.Subscribe(KindTick, func(ctx context.Context, ev Event) error {
		got.Add(1)
		return nil
	})
	for i := 0; i < 20; i++ {
		require.NoError(t, b.Publish(Event{Kind: KindTick}))
	}

	b.Stop()
	b.Stop() // idempotent

	assert.Equal(t, int64(20), got.Load(), "queued events must be drained before workers exit")
	assert.False(t, b.Running())

	err := b.Publish(Event{Kind: KindAlarm})
	require.Error(t, err)
}

func TestMarketOrderPerInstrumentAcrossWorkers(t *testing.T) {
	// Four market workers, three interleaved instrument streams: each
	// instrument's ticks must be dispatched in publish order even
	// though the pool drains concurrently.
	b := newTestBus(t, Config{MarketWorkers: 4, GeneralWorkers: 1})

	var mu sync.Mutex
	seen := make(map[string][]int64)
	b.Subscribe(KindTick, func(ctx context.Context, ev Event) error {
		tick := ev.Payload.(*md.Tick)
		// Uneven handler latency makes cross-worker interleaving
		// visible when serialization is broken.
		if tick.Volume%7 == 0 {
			time.Sleep(time.Millisecond)
		}
		mu.Lock()
		seen[tick.InstrumentID] = append(seen[tick.InstrumentID], tick.Volume)
		mu.Unlock()
		return nil
	})

	const perInstrument = 200
	instruments := []string{"rb2501", "ag2502", "cu2503"}
	for seq := 0; seq < perInstrument; seq++ {
		for _, id := range instruments {
			require.NoError(t, b.Publish(Event{
				Kind:    KindTick,
				Payload: &md.Tick{InstrumentID: id, Volume: int64(seq)},
			}))
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		total := 0
		for _, seqs := range seen {
			total += len(seqs)
		}
		return total == perInstrument*len(instruments)
	}, "not all ticks dispatched")

	mu.Lock()
	defer mu.Unlock()
	for id, seqs := range seen {
		require.Len(t, seqs, perInstrument, "instrument %s lost ticks", id)
		for i := 1; i < len(seqs); i++ {
			require.Less(t, seqs[i-1], seqs[i],
				"instrument %s dispatched out of order at position %d", id, i)
		}
	}
}

func TestOverflowKeepsTickOrder(t *testing.T) {
	// Single worker, single queue slot, handler blocked on the first
	// tick: most of the stream spills to the overflow list. Once the
	// handler is released, the pumped ticks must neither overtake nor
	// be overtaken by direct enqueues.
	b := newTestBus(t, Config{MarketWorkers: 1, GeneralWorkers: 1, QueueCapacity: 1})

	var mu sync.Mutex
	var seen []int64
	release := make(chan struct{})
	var once sync.Once
	b.Subscribe(KindTick, func(ctx context.Context, ev Event) error {
		once.Do(func() { <-release })
		mu.Lock()
		seen = append(seen, ev.Payload.(*md.Tick).Volume)
		mu.Unlock()
		return nil
	})

	const total = 30
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(release)
	}()
	for i := 0; i < total; i++ {
		require.NoError(t, b.Publish(Event{
			Kind:    KindTick,
			Payload: &md.Tick{InstrumentID: "rb2501", Volume: int64(i)},
		}))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == total
	}, "ticks lost under overflow")

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < total; i++ {
		require.Equal(t, int64(i), seen[i], "saturated stream reordered at position %d", i)
	}
	assert.GreaterOrEqual(t, b.Stats().Overflowed, uint64(1),
		"stream never spilled, saturation not exercised")
}

func TestMarketKindRouting(t *testing.T) {
	assert.True(t, KindTick.IsMarket())
	assert.True(t, KindBar.IsMarket())
	assert.False(t, KindTimer.IsMarket())
	assert.False(t, KindAlarm.IsMarket())
	assert.False(t, KindMDLogin.IsMarket())
}
