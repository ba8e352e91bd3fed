// Package alarm carries operational alarms from the storage writers to
// the event bus and runs the calendar-driven maintenance schedule.
package alarm

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openfutures/tickd/bus"
	"github.com/openfutures/tickd/sym"
)

// Sink is the capability writers raise alarms through. They depend on
// this interface, never on the bus concretely.
type Sink interface {
	Raise(source, message string, err error)
}

// BusSink publishes system.alarm events, throttled per source so a
// failing writer cannot storm the general queue.
type BusSink struct {
	bus *bus.Bus

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   float64

	suppressed uint64

	log *zap.SugaredLogger
}

// NewBusSink creates a sink. perMinute bounds alarms per source; zero
// or negative disables throttling.
func NewBusSink(b *bus.Bus, perMinute float64, log *zap.SugaredLogger) *BusSink {
	return &BusSink{
		bus:      b,
		limiters: make(map[string]*rate.Limiter),
		perMin:   perMinute,
		log:      log.Named("alarm"),
	}
}

// Raise publishes one alarm event. Throttled alarms are still logged
// locally, only the bus event is suppressed.
func (s *BusSink) Raise(source, message string, err error) {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	s.log.Errorw(sym.Alarm+" "+message, "source", source, "error", errStr)

	if !s.allow(source) {
		s.mu.Lock()
		s.suppressed++
		s.mu.Unlock()
		return
	}

	_ = s.bus.Publish(bus.Event{
		Kind:   bus.KindAlarm,
		Source: source,
		Payload: bus.AlarmFired{
			Source:  source,
			Message: message,
			Err:     errStr,
			At:      time.Now(),
		},
	})
}

// allow checks the per-source limiter, creating it lazily.
func (s *BusSink) allow(source string) bool {
	if s.perMin <= 0 {
		return true
	}
	s.mu.Lock()
	lim, ok := s.limiters[source]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.perMin/60.0), 1)
		s.limiters[source] = lim
	}
	s.mu.Unlock()
	return lim.Allow()
}

// Suppressed returns how many alarms the throttle has swallowed.
func (s *BusSink) Suppressed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressed
}
