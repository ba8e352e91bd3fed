// Package registry loads the static instrument table, tracks
// per-contract state in a fixed slab, and issues the one bulk
// market-data subscription once both gateway sessions are ready.
package registry

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/openfutures/tickd/bus"
	"github.com/openfutures/tickd/errors"
	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/sym"
)

// SubscriptionIssuer is the capability the registry uses to request
// market data. The gateway adapter implements it; the registry never
// holds the adapter itself.
type SubscriptionIssuer interface {
	SubscribeMarketData(instrumentIDs []string) error
}

// TradingDayHolder receives the trading day captured from the trade
// session event. Set-once semantics live in the holder.
type TradingDayHolder interface {
	SetTradingDay(day string, source string)
}

// sidecar is the optional contracts.toml overlay: whole exchanges can
// be disabled before registration.
type sidecar struct {
	Exchanges map[string]bool `toml:"exchanges"`
}

// Registry is the contract table plus the subscription gate.
type Registry struct {
	slab  []md.Contract
	index map[string]int
	mu    sync.RWMutex // guards slab mutable fields and gate state

	issuer SubscriptionIssuer
	days   TradingDayHolder

	marketReady   bool
	tradeReady    bool
	dispatched    bool
	marketReadyAt time.Time

	guardInterval time.Duration
	guardTimeout  time.Duration
	guardCtx      context.Context
	guardCancel   context.CancelFunc
	guardWG       sync.WaitGroup

	log *zap.SugaredLogger
}

// Config holds registry construction parameters.
type Config struct {
	TablePath     string        // JSON instrument_id → exchange_id
	SidecarPath   string        // optional contracts.toml
	GuardInterval time.Duration // default 3s
	GuardTimeout  time.Duration // default 60s
}

// New loads the instrument table and builds the slab. Entries with
// unknown exchanges are logged and skipped; exchanges disabled in the
// sidecar are dropped before registration.
func New(cfg Config, issuer SubscriptionIssuer, days TradingDayHolder, log *zap.SugaredLogger) (*Registry, error) {
	if cfg.GuardInterval <= 0 {
		cfg.GuardInterval = 3 * time.Second
	}
	if cfg.GuardTimeout <= 0 {
		cfg.GuardTimeout = 60 * time.Second
	}

	table, err := loadTable(cfg.TablePath, cfg.SidecarPath, log)
	if err != nil {
		return nil, err
	}

	// The slab is sized once from the table; contracts are referred to
	// by index afterwards, never reallocated.
	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	slab := make([]md.Contract, len(ids))
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		slab[i] = md.Contract{InstrumentID: id, ExchangeID: table[id]}
		index[id] = i
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		slab:          slab,
		index:         index,
		issuer:        issuer,
		days:          days,
		guardInterval: cfg.GuardInterval,
		guardTimeout:  cfg.GuardTimeout,
		guardCtx:      ctx,
		guardCancel:   cancel,
		log:           log.Named("registry"),
	}

	r.log.Infow(sym.Book+" Instrument table loaded",
		"contracts", len(slab),
		"path", cfg.TablePath)
	return r, nil
}

// loadTable reads the JSON instrument table and applies the sidecar.
func loadTable(path, sidecarPath string, log *zap.SugaredLogger) (map[string]md.Exchange, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read instrument table %s", path)
	}

	var entries map[string]string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrapf(err, "parse instrument table %s", path)
	}

	disabled := map[string]bool{}
	if sidecarPath != "" {
		var sc sidecar
		if _, err := toml.DecodeFile(sidecarPath, &sc); err != nil {
			if !os.IsNotExist(err) {
				return nil, errors.Wrapf(err, "parse contracts sidecar %s", sidecarPath)
			}
		} else {
			for ex, enabled := range sc.Exchanges {
				if !enabled {
					disabled[ex] = true
				}
			}
		}
	}

	table := make(map[string]md.Exchange, len(entries))
	for id, exStr := range entries {
		ex, err := md.ParseExchange(exStr)
		if err != nil {
			log.Warnw(sym.Book+" Skipping instrument with unknown exchange",
				"instrument", id,
				"exchange", exStr)
			continue
		}
		if disabled[exStr] {
			continue
		}
		table[id] = ex
	}
	return table, nil
}

// Lookup returns a copy of the contract entry for an instrument.
func (r *Registry) Lookup(instrumentID string) (md.Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[instrumentID]
	if !ok {
		return md.Contract{}, false
	}
	return r.slab[i], true
}

// Len returns the number of registered contracts.
func (r *Registry) Len() int { return len(r.slab) }

// Instruments returns all registered instrument ids in stable order.
func (r *Registry) Instruments() []string {
	ids := make([]string, len(r.slab))
	for i := range r.slab {
		ids[i] = r.slab[i].InstrumentID
	}
	return ids
}

// Touch records a tick arrival for an instrument. Unknown instruments
// are ignored; the tick path never blocks on registry state.
func (r *Registry) Touch(instrumentID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.index[instrumentID]; ok {
		r.slab[i].LastTickAt = at
	}
}

// HandleSession consumes gateway session events and arms the gate. It
// is registered on the bus for both login kinds.
func (r *Registry) HandleSession(ctx context.Context, ev bus.Event) error {
	session, ok := ev.Payload.(bus.GatewaySession)
	if !ok {
		return errors.Newf("unexpected payload %T on %s", ev.Payload, ev.Kind)
	}
	if !session.Success {
		r.log.Warnw(sym.Gate+" Gateway login failed", "gateway", session.Gateway)
		return nil
	}

	r.mu.Lock()
	switch ev.Kind {
	case bus.KindMDLogin:
		if !r.marketReady {
			r.marketReady = true
			r.marketReadyAt = time.Now()
		}
	case bus.KindTDLogin:
		r.tradeReady = true
		if session.TradingDay != "" && r.days != nil {
			r.days.SetTradingDay(session.TradingDay, "td_login")
		}
	}
	armed := r.marketReady && r.tradeReady && !r.dispatched
	if armed {
		r.dispatched = true
	}
	r.mu.Unlock()

	r.log.Infow(sym.Gate+" Gateway session ready",
		"gateway", session.Gateway,
		"trading_day", session.TradingDay,
		"trace_id", bus.TraceFrom(ctx))

	if armed {
		return r.dispatchSubscription()
	}
	return nil
}

// dispatchSubscription issues the one bulk subscription of the process
// lifetime and marks every contract subscribed.
func (r *Registry) dispatchSubscription() error {
	ids := r.Instruments()
	if err := r.issuer.SubscribeMarketData(ids); err != nil {
		return errors.Wrap(err, "bulk market-data subscription")
	}

	r.mu.Lock()
	for i := range r.slab {
		r.slab[i].Subscribed = true
	}
	r.mu.Unlock()

	r.log.Infow(sym.Gate+" Bulk subscription dispatched", "instruments", len(ids))
	return nil
}

// StartGuard launches the gating guard: if the market session has been
// ready for guardTimeout without a trade session, the guard forces the
// gate open with the local date as trading day. Market-data capture is
// never blocked indefinitely by trading-login problems.
func (r *Registry) StartGuard() {
	r.guardWG.Add(1)
	go func() {
		defer r.guardWG.Done()
		ticker := time.NewTicker(r.guardInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.guardCtx.Done():
				return
			case <-ticker.C:
				if r.guardFire() {
					return
				}
			}
		}
	}()
}

// guardFire checks the timeout condition once, returning true when the
// guard has fired (or has nothing left to do).
func (r *Registry) guardFire() bool {
	r.mu.Lock()
	if r.dispatched {
		r.mu.Unlock()
		return true
	}
	if !r.marketReady || r.tradeReady || time.Since(r.marketReadyAt) < r.guardTimeout {
		r.mu.Unlock()
		return false
	}
	r.tradeReady = true
	r.dispatched = true
	r.mu.Unlock()

	fallback := md.Today()
	r.log.Warnw(sym.Gate+" Trade session timeout, forcing subscription gate",
		"waited", r.guardTimeout,
		"fallback_trading_day", fallback)
	if r.days != nil {
		r.days.SetTradingDay(fallback, "guard_fallback")
	}

	if err := r.dispatchSubscription(); err != nil {
		r.log.Errorw(sym.Gate+" Forced subscription failed", "error", err)
	}
	return true
}

// StopGuard cancels the guard goroutine.
func (r *Registry) StopGuard() {
	r.guardCancel()
	r.guardWG.Wait()
}

// Dispatched reports whether the bulk subscription has been issued.
func (r *Registry) Dispatched() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dispatched
}
