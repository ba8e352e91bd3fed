package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openfutures/tickd/bus"
	"github.com/openfutures/tickd/gateway"
	"github.com/openfutures/tickd/md"
)

var upgrader = websocket.Upgrader{}

// startServer runs one handler per websocket connection and returns
// the ws:// URL.
func startServer(t *testing.T, handler func(conn *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type collector struct {
	mu     sync.Mutex
	events []bus.Event
}

func (c *collector) handler(_ context.Context, ev bus.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) snapshot() []bus.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bus.Event(nil), c.events...)
}

func newTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	b := bus.New(bus.Config{}, zap.NewNop().Sugar())
	b.Start()
	t.Cleanup(b.Stop)
	return b
}

func wireTick(id string, updateTime string) *gateway.WireTick {
	return &gateway.WireTick{
		InstrumentID: id,
		ExchangeID:   "SHFE",
		TradingDay:   "20251105",
		ActionDay:    "20251105",
		LastPrice:    3500.0,
		Volume:       10,
		UpdateTime:   updateTime,
	}
}

func startAdapter(t *testing.T, url string, b *bus.Bus) *Adapter {
	t.Helper()
	a := New(Config{URL: url}, b, zap.NewNop().Sugar())
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Stop(ctx)
	})
	return a
}

func TestFeedPublishesSessionAndTicks(t *testing.T) {
	url := startServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(frame{Type: "session", TradingDay: "20251105"})
		conn.WriteJSON(frame{Type: "tick", Tick: wireTick("rb2501", "09:00:15")})
		conn.WriteJSON(frame{Type: "tick", Tick: wireTick("rb2501", "09:00:16")})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	b := newTestBus(t)
	var logins, sessions, ticks collector
	b.Subscribe(bus.KindMDLogin, logins.handler)
	b.Subscribe(bus.KindTDLogin, sessions.handler)
	b.Subscribe(bus.KindTick, ticks.handler)

	startAdapter(t, url, b)

	require.Eventually(t, func() bool { return ticks.count() == 2 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return logins.count() == 1 && sessions.count() == 1 }, 5*time.Second, 10*time.Millisecond)

	session := sessions.snapshot()[0].Payload.(bus.GatewaySession)
	assert.Equal(t, "20251105", session.TradingDay)
	assert.True(t, session.Success)

	tick := ticks.snapshot()[0].Payload.(*md.Tick)
	assert.Equal(t, "rb2501", tick.InstrumentID)
	assert.Equal(t, 9, tick.Timestamp.In(md.CST).Hour())
}

func TestInvalidTicksAreDropped(t *testing.T) {
	bad := wireTick("rb2501", "") // no wall clock, fails validation
	url := startServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(frame{Type: "tick", Tick: bad})
		conn.WriteJSON(frame{Type: "tick", Tick: wireTick("rb2501", "09:00:15")})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	b := newTestBus(t)
	var ticks collector
	b.Subscribe(bus.KindTick, ticks.handler)
	startAdapter(t, url, b)

	require.Eventually(t, func() bool { return ticks.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, ticks.count())
}

func TestSubscriptionReplayedOnConnect(t *testing.T) {
	got := make(chan []string, 2)
	url := startServer(t, func(conn *websocket.Conn) {
		var sub subscribeFrame
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		got <- sub.Instruments
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	b := newTestBus(t)
	a := New(Config{URL: url}, b, zap.NewNop().Sugar())

	// Issued before the session exists: queued, then replayed on dial.
	require.NoError(t, a.SubscribeMarketData([]string{"rb2501", "ag2502"}))
	require.NoError(t, a.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Stop(ctx)
	}()

	select {
	case ids := <-got:
		assert.Equal(t, []string{"rb2501", "ag2502"}, ids)
	case <-time.After(5 * time.Second):
		t.Fatal("subscribe frame never arrived")
	}
}

func TestReconnectAfterSessionLoss(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	url := startServer(t, func(conn *websocket.Conn) {
		mu.Lock()
		dials++
		first := dials == 1
		mu.Unlock()
		if first {
			return // drop the first session immediately
		}
		conn.WriteJSON(frame{Type: "tick", Tick: wireTick("rb2501", "09:00:15")})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	b := newTestBus(t)
	var logins, ticks collector
	b.Subscribe(bus.KindMDLogin, logins.handler)
	b.Subscribe(bus.KindTick, ticks.handler)
	startAdapter(t, url, b)

	require.Eventually(t, func() bool { return ticks.count() == 1 }, 10*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, logins.count(), 2, "each session open publishes a login")
}

func TestStopBeforeStart(t *testing.T) {
	a := New(Config{URL: "ws://127.0.0.1:1"}, newTestBus(t), zap.NewNop().Sugar())
	assert.Error(t, a.Stop(context.Background()))
}
