package bus

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/sym"
)

// Bus states. Transitions are idempotent:
// created → running → draining → stopped.
const (
	stateCreated int32 = iota
	stateRunning
	stateDraining
	stateStopped
)

// publishRetries bounds the backoff loop before the overflow/drop
// decision. Base delay 1ms, doubling per attempt.
const publishRetries = 5

// drainGrace is how long Stop waits per queue for workers to exit.
const drainGrace = 3 * time.Second

// Handler processes one event. The context carries the trace id; a
// returned error is logged with it and never propagates to the
// publisher or to other handlers.
type Handler func(ctx context.Context, ev Event) error

// Mode selects how a subscription's handler is scheduled.
type Mode int

const (
	// Sync handlers run on the queue's worker pool.
	Sync Mode = iota
	// Async handlers run on the bus's cooperative task runtime: one
	// background goroutine consuming a bounded task channel.
	Async
)

type subscription struct {
	id      string
	kind    Kind
	handler Handler
	mode    Mode
}

// queue is one bounded event lane. The general queue is a single
// channel drained by a shared worker pool; the market queue is sharded
// into one channel per worker, routed by instrument, so same-instrument
// events stay serialized on one goroutine.
type queue struct {
	name    string
	chs     []chan Event
	workers int
	wg      sync.WaitGroup
}

// route picks the channel for a shard key. A single-channel queue
// ignores the key; a sharded queue hashes it the way the append log
// shards its workers, so the assignment is stable.
func (q *queue) route(key string) chan Event {
	if len(q.chs) == 1 {
		return q.chs[0]
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return q.chs[h.Sum32()%uint32(len(q.chs))]
}

// shardKey is the per-instrument serialization key for market events.
// Non-market payloads fall back to the trace id, which only spreads
// load; they carry no ordering contract.
func shardKey(ev Event) string {
	switch p := ev.Payload.(type) {
	case *md.Tick:
		return p.InstrumentID
	case *md.Bar:
		return p.InstrumentID
	}
	return ev.TraceID
}

type asyncTask struct {
	sub *subscription
	ev  Event
}

// Config sizes the bus.
type Config struct {
	GeneralWorkers int           // general-queue pool size (default 2)
	MarketWorkers  int           // market-queue pool size (default 2× general)
	QueueCapacity  int           // soft capacity per queue (default 4096)
	TimerInterval  time.Duration // periodic timer event interval; 0 disables
}

// Stats is a snapshot of the bus counters.
type Stats struct {
	Delivered     uint64 // handler invocations completed
	Dropped       uint64 // non-tick events discarded after retries
	Overflowed    uint64 // ticks diverted to the unbounded overflow list
	HandlerErrors uint64 // handler errors and recovered panics
}

// Bus routes events between producers and subscribers. See the package
// comment for the queue and overflow policy.
type Bus struct {
	market  *queue
	general *queue

	subMu sync.RWMutex
	subs  map[Kind][]*subscription

	state atomic.Int32

	// Unbounded tick overflow, drained by the pump goroutine.
	overflowMu  sync.Mutex
	overflow    []Event
	overflowSig chan struct{}

	asyncCh chan asyncTask

	ctx    context.Context
	cancel context.CancelFunc
	aux    sync.WaitGroup // timer, pump, async runner

	timerInterval time.Duration
	timerSeq      atomic.Uint64

	delivered     atomic.Uint64
	dropped       atomic.Uint64
	overflowed    atomic.Uint64
	handlerErrors atomic.Uint64

	log *zap.SugaredLogger
}

// New creates a bus. Call Start before publishing.
func New(cfg Config, log *zap.SugaredLogger) *Bus {
	general := cfg.GeneralWorkers
	if general <= 0 {
		general = 2
	}
	market := cfg.MarketWorkers
	if market <= 0 {
		market = 2 * general
	}
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = 4096
	}

	// One market channel per worker: the shard is the ordering domain.
	marketChs := make([]chan Event, market)
	for i := range marketChs {
		marketChs[i] = make(chan Event, capacity)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		market:        &queue{name: "market", chs: marketChs, workers: market},
		general:       &queue{name: "general", chs: []chan Event{make(chan Event, capacity)}, workers: general},
		subs:          make(map[Kind][]*subscription),
		overflowSig:   make(chan struct{}, 1),
		asyncCh:       make(chan asyncTask, capacity),
		ctx:           ctx,
		cancel:        cancel,
		timerInterval: cfg.TimerInterval,
		log:           log.Named("bus"),
	}
}

// Subscribe registers a sync handler for a kind and returns the
// subscription id for Unsubscribe.
func (b *Bus) Subscribe(kind Kind, handler Handler) string {
	return b.subscribe(kind, handler, Sync)
}

// SubscribeAsync registers a handler on the cooperative task runtime.
func (b *Bus) SubscribeAsync(kind Kind, handler Handler) string {
	return b.subscribe(kind, handler, Async)
}

func (b *Bus) subscribe(kind Kind, handler Handler, mode Mode) string {
	sub := &subscription{
		id:      uuid.NewString(),
		kind:    kind,
		handler: handler,
		mode:    mode,
	}
	b.subMu.Lock()
	b.subs[kind] = append(b.subs[kind], sub)
	b.subMu.Unlock()
	return sub.id
}

// Unsubscribe removes a subscription by id. Idempotent: removing an
// unknown id is a no-op.
func (b *Bus) Unsubscribe(kind Kind, id string) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	subs := b.subs[kind]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[kind] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Start spawns the worker pools, the overflow pump, the async runner,
// and the timer producer. Idempotent.
func (b *Bus) Start() {
	if !b.state.CompareAndSwap(stateCreated, stateRunning) {
		return
	}

	for _, q := range []*queue{b.market, b.general} {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go b.worker(q, q.chs[i%len(q.chs)])
		}
	}

	b.aux.Add(1)
	go b.pump()

	b.aux.Add(1)
	go b.asyncRunner()

	if b.timerInterval > 0 {
		b.aux.Add(1)
		go b.timer()
	}

	b.log.Infow(sym.PulseOpen+" Event bus started",
		"market_workers", b.market.workers,
		"general_workers", b.general.workers,
		"queue_capacity", cap(b.market.chs[0]),
		"timer_interval", b.timerInterval)
}

// Publish routes an event to its queue. The fast path is non-blocking;
// a full queue triggers bounded exponential backoff, after which ticks
// spill to the overflow list (never dropped) and other events are
// discarded with an error log.
func (b *Bus) Publish(ev Event) error {
	switch b.state.Load() {
	case stateCreated, stateStopped:
		return errors.Wrapf(errors.ErrNotRunning, "publish %s", ev.Kind)
	case stateDraining:
		// Ticks are still welcome while workers drain; anything else
		// is a drop at this point.
		if ev.Kind != KindTick {
			return errors.Wrapf(errors.ErrDraining, "publish %s", ev.Kind)
		}
	}

	if ev.TraceID == "" {
		ev.TraceID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	q := b.general
	if ev.Kind.IsMarket() {
		q = b.market
	}
	ch := q.route(shardKey(ev))

	// While earlier ticks wait in the overflow list, later ticks must
	// queue behind them even if channel capacity has freed up, or the
	// never-drop path would reorder a saturated stream.
	if ev.Kind == KindTick && b.enqueueBehindOverflow(ev) {
		return nil
	}

	select {
	case ch <- ev:
		return nil
	default:
	}

	// Queue full: bounded backoff before the overflow/drop decision.
	delay := time.Millisecond
	for attempt := 0; attempt < publishRetries; attempt++ {
		select {
		case ch <- ev:
			return nil
		case <-time.After(delay):
			delay *= 2
		}
	}

	if ev.Kind == KindTick {
		b.overflowMu.Lock()
		b.overflow = append(b.overflow, ev)
		b.overflowMu.Unlock()
		b.overflowed.Add(1)
		select {
		case b.overflowSig <- struct{}{}:
		default:
		}
		return nil
	}

	b.dropped.Add(1)
	b.log.Errorw("Event dropped, queue full after retries",
		"kind", ev.Kind,
		"queue", q.name,
		"trace_id", ev.TraceID)
	return errors.Wrapf(errors.ErrQueueFull, "publish %s", ev.Kind)
}

// enqueueBehindOverflow appends the tick to the overflow list when the
// list is non-empty, preserving FIFO order behind ticks that spilled
// earlier. Reports whether the tick was taken.
func (b *Bus) enqueueBehindOverflow(ev Event) bool {
	b.overflowMu.Lock()
	if len(b.overflow) == 0 {
		b.overflowMu.Unlock()
		return false
	}
	b.overflow = append(b.overflow, ev)
	b.overflowMu.Unlock()
	b.overflowed.Add(1)
	select {
	case b.overflowSig <- struct{}{}:
	default:
	}
	return true
}

// worker drains one channel until it receives a sentinel.
func (b *Bus) worker(q *queue, ch chan Event) {
	defer q.wg.Done()
	for ev := range ch {
		if ev.Kind == kindSentinel {
			return
		}
		b.dispatch(ev)
	}
}

// dispatch fans one event out to its subscribers. Sync handlers run
// inline on this worker; async handlers are queued on the task runtime.
func (b *Bus) dispatch(ev Event) {
	b.subMu.RLock()
	subs := b.subs[ev.Kind]
	snapshot := make([]*subscription, len(subs))
	copy(snapshot, subs)
	b.subMu.RUnlock()

	ctx := WithTrace(b.ctx, ev.TraceID)
	for _, sub := range snapshot {
		if sub.mode == Async {
			select {
			case b.asyncCh <- asyncTask{sub: sub, ev: ev}:
			default:
				b.dropped.Add(1)
				b.log.Errorw("Async task dropped, runtime saturated",
					"kind", ev.Kind,
					"trace_id", ev.TraceID)
			}
			continue
		}
		b.runHandler(ctx, sub, ev)
	}
}

// runHandler invokes one handler, isolating panics and logging errors
// with the trace id. A handler fault never affects other handlers.
func (b *Bus) runHandler(ctx context.Context, sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerErrors.Add(1)
			b.log.Errorw("Handler panic recovered",
				"kind", ev.Kind,
				"trace_id", ev.TraceID,
				"panic", r)
		}
	}()

	if err := sub.handler(ctx, ev); err != nil {
		b.handlerErrors.Add(1)
		b.log.Errorw("Handler error",
			"kind", ev.Kind,
			"trace_id", ev.TraceID,
			"error", err)
		return
	}
	b.delivered.Add(1)
}

// pump drains the tick overflow list back into the market queue. It
// blocks on the queue send, so an overflowed tick waits for capacity
// instead of being dropped.
func (b *Bus) pump() {
	defer b.aux.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.overflowSig:
		}

		for {
			b.overflowMu.Lock()
			if len(b.overflow) == 0 {
				b.overflowMu.Unlock()
				break
			}
			ev := b.overflow[0]
			b.overflowMu.Unlock()

			select {
			case b.market.route(shardKey(ev)) <- ev:
			case <-b.ctx.Done():
				return
			}

			// Pop only after the send lands, so publishers keep
			// queueing behind this tick until it is really in the
			// channel.
			b.overflowMu.Lock()
			b.overflow = b.overflow[1:]
			b.overflowMu.Unlock()
		}
	}
}

// asyncRunner is the cooperative task runtime: one goroutine running
// queued async handlers in order.
func (b *Bus) asyncRunner() {
	defer b.aux.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case task := <-b.asyncCh:
			ctx := WithTrace(b.ctx, task.ev.TraceID)
			b.runHandler(ctx, task.sub, task.ev)
		}
	}
}

// timer publishes the periodic timer event on the general queue.
func (b *Bus) timer() {
	defer b.aux.Done()
	ticker := time.NewTicker(b.timerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case at := <-ticker.C:
			seq := b.timerSeq.Add(1)
			// Best effort: a full general queue drops timer ticks
			// after retries, which subscribers tolerate by design.
			_ = b.Publish(Event{
				Kind:    KindTimer,
				Source:  "bus.timer",
				Payload: TimerTick{At: at, Seq: seq},
			})
		}
	}
}

// Stop drains both queues and joins all goroutines. Each queue gets a
// bounded grace period; workers that fail to exit are logged, never
// killed. Idempotent.
func (b *Bus) Stop() {
	if !b.state.CompareAndSwap(stateRunning, stateDraining) {
		return
	}
	b.log.Infow(sym.PulseClose + " Event bus draining")

	// Give the pump a chance to re-enqueue overflowed ticks before the
	// sentinels go in behind them.
	deadline := time.Now().Add(drainGrace)
	for time.Now().Before(deadline) {
		b.overflowMu.Lock()
		pending := len(b.overflow)
		b.overflowMu.Unlock()
		if pending == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	for _, q := range []*queue{b.market, b.general} {
		b.drainQueue(q)
	}

	b.cancel()
	b.aux.Wait()

	b.state.Store(stateStopped)
	stats := b.Stats()
	b.log.Infow(sym.PulseClose+" Event bus stopped",
		"delivered", stats.Delivered,
		"dropped", stats.Dropped,
		"overflowed", stats.Overflowed,
		"handler_errors", stats.HandlerErrors)
}

// drainQueue enqueues one sentinel per worker, behind whatever is
// already queued on that worker's channel, and joins the pool with a
// grace period.
func (b *Bus) drainQueue(q *queue) {
	for i := 0; i < q.workers; i++ {
		select {
		case q.chs[i%len(q.chs)] <- Event{Kind: kindSentinel}:
		case <-time.After(drainGrace):
			b.log.Warnw("Queue refused sentinel within grace period",
				"queue", q.name,
				"grace", drainGrace)
			return
		}
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainGrace):
		b.log.Warnw("Queue workers did not exit within grace period",
			"queue", q.name,
			"grace", drainGrace)
	}
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Delivered:     b.delivered.Load(),
		Dropped:       b.dropped.Load(),
		Overflowed:    b.overflowed.Load(),
		HandlerErrors: b.handlerErrors.Load(),
	}
}

// Running reports whether the bus accepts publishes.
func (b *Bus) Running() bool {
	return b.state.Load() == stateRunning
}
