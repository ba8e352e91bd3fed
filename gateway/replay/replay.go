// Package replay is the offline gateway adapter: it replays a recorded
// tick stream from a JSON-lines file or an in-memory slice, publishing
// the same session and tick events a live feed would. It exists for
// tests, backfills, and running the pipeline without an upstream.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/openfutures/tickd/bus"
	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/gateway"
	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/sym"
)

const source = "gateway.replay"

// Config selects the tick source and pacing. Ticks takes precedence
// over Path when both are set.
type Config struct {
	Path  string        // JSON-lines file, one wire tick per line
	Ticks []*md.Tick    // in-memory stream, already normalized
	Delay time.Duration // pause between ticks; 0 replays as fast as possible
}

// Adapter replays a recorded stream once and then idles until Stop.
type Adapter struct {
	cfg Config
	bus *bus.Bus
	log *zap.SugaredLogger

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds the adapter; replay begins on Start.
func New(cfg Config, b *bus.Bus, log *zap.SugaredLogger) *Adapter {
	return &Adapter{cfg: cfg, bus: b, log: log.Named("replay")}
}

// Start loads the stream, publishes both session events, and begins
// publishing ticks. A missing or unreadable file fails Start.
func (a *Adapter) Start(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return errors.New("replay adapter already started")
	}
	ticks := a.cfg.Ticks
	if len(ticks) == 0 {
		loaded, err := loadFile(a.cfg.Path)
		if err != nil {
			return err
		}
		ticks = loaded
	}

	// Both gateway sessions open immediately: the registry's gate sees
	// a complete login pair and subscribes before the first tick lands.
	tradingDay := md.Today()
	if len(ticks) > 0 {
		tradingDay = ticks[0].Day()
	}
	a.publish(bus.KindMDLogin, bus.GatewaySession{Gateway: "md", Success: true})
	a.publish(bus.KindTDLogin, bus.GatewaySession{Gateway: "td", Success: true, TradingDay: tradingDay})

	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.run(ctx, ticks)
	return nil
}

// Stop halts the replay and joins the publisher.
func (a *Adapter) Stop(ctx context.Context) error {
	if !a.started.Load() {
		return errors.Wrap(errors.ErrNotRunning, "replay stop")
	}
	a.cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.ErrShutdownTimeout, "replay stop")
	}
}

// SubscribeMarketData is accepted and ignored: a recording already
// fixes which instruments flow.
func (a *Adapter) SubscribeMarketData(instrumentIDs []string) error {
	a.log.Debugw("Replay subscription accepted", "instruments", len(instrumentIDs))
	return nil
}

func (a *Adapter) run(ctx context.Context, ticks []*md.Tick) {
	defer a.wg.Done()
	published := 0
	for _, tick := range ticks {
		if ctx.Err() != nil {
			break
		}
		if !tick.Valid() {
			a.log.Warnw(sym.Tick+" Invalid recorded tick dropped", "instrument", tick.InstrumentID)
			continue
		}
		a.publish(bus.KindTick, tick)
		published++
		if a.cfg.Delay > 0 {
			select {
			case <-time.After(a.cfg.Delay):
			case <-ctx.Done():
			}
		}
	}
	a.log.Infow(sym.PulseClose+" Replay finished", "ticks", published)
}

func (a *Adapter) publish(kind bus.Kind, payload any) {
	err := a.bus.Publish(bus.Event{
		Kind:    kind,
		Source:  source,
		Time:    time.Now(),
		Payload: payload,
	})
	if err != nil && !errors.IsDrainingError(err) {
		a.log.Errorw(sym.Bus+" Replay publish failed", "kind", kind, "error", err)
	}
}

// loadFile parses a JSON-lines recording into normalized ticks.
// Malformed lines abort the load; a recording is trusted input.
func loadFile(path string) ([]*md.Tick, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open replay file %s", path)
	}
	defer f.Close()

	var ticks []*md.Tick
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var w gateway.WireTick
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, errors.Wrapf(err, "replay file %s line %d", path, line)
		}
		ticks = append(ticks, w.Normalize())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read replay file %s", path)
	}
	return ticks, nil
}
