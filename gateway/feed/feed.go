// Package feed is the websocket quote-stream adapter. It dials the
// configured stream, decodes JSON frames into wire ticks, normalizes
// them, and publishes the result on the event bus. The connection is
// self-healing: on any read or dial error the adapter backs off and
// redials, replaying the active subscription.
package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/openfutures/tickd/bus"
	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/gateway"
	"github.com/openfutures/tickd/sym"
)

// source tags the events this adapter publishes.
const source = "gateway.feed"

// Config locates the quote stream and bounds the reconnect backoff.
type Config struct {
	URL          string
	ReconnectMax time.Duration // cap on the dial backoff (default 30s)
}

// frame is one message off the stream. Session frames carry the
// exchange-assigned trading day; tick frames carry a quote.
type frame struct {
	Type       string            `json:"type"` // "tick" or "session"
	TradingDay string            `json:"trading_day,omitempty"`
	Tick       *gateway.WireTick `json:"tick,omitempty"`
}

// subscribeFrame is the request sent upstream for quote delivery.
type subscribeFrame struct {
	Op          string   `json:"op"`
	Instruments []string `json:"instruments"`
}

// Adapter is the websocket gateway. It satisfies gateway.Adapter.
type Adapter struct {
	cfg Config
	bus *bus.Bus
	log *zap.SugaredLogger

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribed []string

	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds the adapter; the session opens on Start.
func New(cfg Config, b *bus.Bus, log *zap.SugaredLogger) *Adapter {
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	return &Adapter{cfg: cfg, bus: b, log: log.Named("feed")}
}

// Start launches the dial loop. The adapter keeps redialing until
// Stop; a live session is reported through the md_login event, not
// the Start return.
func (a *Adapter) Start(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return errors.New("feed adapter already started")
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.run(ctx)
	return nil
}

// Stop closes the session and joins the dial loop, honoring the
// context deadline.
func (a *Adapter) Stop(ctx context.Context) error {
	if !a.started.Load() {
		return errors.Wrap(errors.ErrNotRunning, "feed stop")
	}
	a.cancel()
	a.closeConn()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.log.Infow(sym.PulseClose + " Feed adapter stopped")
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.ErrShutdownTimeout, "feed stop")
	}
}

// SubscribeMarketData requests quote delivery for the instruments. The
// list is retained and replayed after every reconnect; when the
// session is down the request is queued, not failed.
func (a *Adapter) SubscribeMarketData(instrumentIDs []string) error {
	a.mu.Lock()
	a.subscribed = append([]string(nil), instrumentIDs...)
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		a.log.Infow(sym.Gate+" Subscription queued until the session opens",
			"instruments", len(instrumentIDs))
		return nil
	}
	return a.sendSubscribe(conn, instrumentIDs)
}

func (a *Adapter) sendSubscribe(conn *websocket.Conn, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := conn.WriteJSON(subscribeFrame{Op: "subscribe", Instruments: ids}); err != nil {
		return errors.Wrap(err, "send subscribe frame")
	}
	a.log.Infow(sym.Gate+" Market-data subscription sent", "instruments", len(ids))
	return nil
}

// run is the dial-read-redial loop.
func (a *Adapter) run(ctx context.Context) {
	defer a.wg.Done()
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.log.Warnw(sym.Alarm+" Feed dial failed, backing off",
				"url", a.cfg.URL,
				"backoff", backoff,
				"error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > a.cfg.ReconnectMax {
				backoff = a.cfg.ReconnectMax
			}
			continue
		}
		backoff = time.Second

		a.mu.Lock()
		a.conn = conn
		ids := a.subscribed
		a.mu.Unlock()

		a.log.Infow(sym.PulseOpen+" Feed session open", "url", a.cfg.URL)
		a.publish(bus.KindMDLogin, bus.GatewaySession{Gateway: "md", Success: true})
		if err := a.sendSubscribe(conn, ids); err != nil {
			a.log.Errorw(sym.Alarm+" Subscription replay failed", "error", err)
		}

		a.readLoop(ctx, conn)

		a.mu.Lock()
		a.conn = nil
		a.mu.Unlock()
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		a.log.Warnw(sym.Alarm + " Feed session lost, redialing")
	}
}

// readLoop decodes frames until the connection dies.
func (a *Adapter) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() == nil {
				a.log.Debugw("Feed read ended", "error", err)
			}
			return
		}
		switch f.Type {
		case "tick":
			if f.Tick == nil {
				continue
			}
			tick := f.Tick.Normalize()
			if !tick.Valid() {
				a.log.Warnw(sym.Tick+" Invalid tick dropped",
					"instrument", f.Tick.InstrumentID,
					"update_time", f.Tick.UpdateTime)
				continue
			}
			a.publish(bus.KindTick, tick)
		case "session":
			a.publish(bus.KindTDLogin, bus.GatewaySession{
				Gateway:    "td",
				Success:    true,
				TradingDay: f.TradingDay,
			})
		default:
			a.log.Debugw("Unknown feed frame", "type", f.Type)
		}
	}
}

func (a *Adapter) publish(kind bus.Kind, payload any) {
	err := a.bus.Publish(bus.Event{
		Kind:    kind,
		Source:  source,
		Time:    time.Now(),
		Payload: payload,
	})
	if err != nil && !errors.IsDrainingError(err) {
		a.log.Errorw(sym.Bus+" Feed publish failed", "kind", kind, "error", err)
	}
}

func (a *Adapter) closeConn() {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	a.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
