// Package tickd wires the market-data pipeline together: the runtime
// context shared across components and the daemon that builds, starts,
// and supervises them.
package tickd

import (
	"sync"

	"go.uber.org/zap"

	"github.com/openfutures/tickd/config"
	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/sym"
)

// Runtime is the process-wide context threaded into constructors: the
// configuration snapshot and the trading-day holder. There are no free
// singletons beyond the logger; everything else reaches state through
// here.
type Runtime struct {
	cfg *config.Config

	mu        sync.RWMutex
	day       string
	daySource string

	log *zap.SugaredLogger
}

// NewRuntime snapshots the configuration.
func NewRuntime(cfg *config.Config, log *zap.SugaredLogger) *Runtime {
	return &Runtime{cfg: cfg, log: log.Named("runtime")}
}

// Config returns the configuration snapshot taken at startup.
func (r *Runtime) Config() *config.Config { return r.cfg }

// SetTradingDay records the trading day, first writer wins. The trade
// session event is the authoritative source; the registry guard's
// local-date fallback only lands when no session ever delivered one.
func (r *Runtime) SetTradingDay(day, source string) {
	if day == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.day != "" {
		if r.day != day {
			r.log.Warnw(sym.Gate+" Conflicting trading day ignored",
				"held", r.day,
				"held_source", r.daySource,
				"ignored", day,
				"ignored_source", source)
		}
		return
	}
	r.day = day
	r.daySource = source
	r.log.Infow(sym.Gate+" Trading day set", "day", day, "source", source)
}

// TradingDay returns the held trading day, falling back to the local
// date with a warning when no session has delivered one yet.
func (r *Runtime) TradingDay() string {
	r.mu.RLock()
	day := r.day
	r.mu.RUnlock()
	if day != "" {
		return day
	}
	fallback := md.Today()
	r.log.Warnw(sym.Gate+" Trading day not set, using local date", "fallback", fallback)
	return fallback
}

// TradingDaySource reports where the held day came from, "" when
// unset.
func (r *Runtime) TradingDaySource() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.daySource
}
