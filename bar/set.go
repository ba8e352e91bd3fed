package bar

import (
	"sync"

	"go.uber.org/zap"

	"github.com/openfutures/tickd/md"
	"github.com/openfutures/tickd/sym"
)

// Set owns one generator group per instrument, each group holding one
// generator per configured interval. Lookup is double-checked: the
// fast path reads the map under RLock; a miss re-checks and inserts
// under the write lock.
type Set struct {
	intervals []md.Interval
	anchorMin int

	mu   sync.RWMutex
	gens map[string][]*Generator

	onClose func(md.Bar)
	log     *zap.SugaredLogger
}

// NewSet creates a generator set for the configured intervals. onClose
// receives every closed bar from every generator; the daemon wires it
// to publish the bar event and submit the bar to storage.
func NewSet(intervals []md.Interval, anchorMinutes int, onClose func(md.Bar), log *zap.SugaredLogger) *Set {
	return &Set{
		intervals: intervals,
		anchorMin: anchorMinutes,
		gens:      make(map[string][]*Generator),
		onClose:   onClose,
		log:       log.Named("bar"),
	}
}

// Update routes one tick to the instrument's generators, creating them
// on first sight of the instrument.
func (s *Set) Update(t *md.Tick) {
	if !t.Valid() {
		return
	}
	for _, g := range s.generators(t.InstrumentID) {
		g.Update(t)
	}
}

// generators returns the instrument's generator group, creating it
// under the write lock when missing.
func (s *Set) generators(instrumentID string) []*Generator {
	s.mu.RLock()
	gens, ok := s.gens[instrumentID]
	s.mu.RUnlock()
	if ok {
		return gens
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check: another goroutine may have inserted between the locks.
	if gens, ok := s.gens[instrumentID]; ok {
		return gens
	}

	gens = make([]*Generator, 0, len(s.intervals))
	for _, iv := range s.intervals {
		gens = append(gens, NewGenerator(instrumentID, iv, s.anchorMin, s.onClose))
	}
	s.gens[instrumentID] = gens

	s.log.Debugw(sym.Bar+" Generators created",
		"instrument", instrumentID,
		"intervals", len(gens))
	return gens
}

// FlushOpen closes every still-open bar across all instruments. Called
// at shutdown; flushed bars go through the normal close path.
func (s *Set) FlushOpen() {
	s.mu.RLock()
	groups := make([][]*Generator, 0, len(s.gens))
	for _, gens := range s.gens {
		groups = append(groups, gens)
	}
	s.mu.RUnlock()

	flushed := 0
	for _, gens := range groups {
		for _, g := range gens {
			if _, open := g.Open(); open {
				g.Flush()
				flushed++
			}
		}
	}
	if flushed > 0 {
		s.log.Infow(sym.Bar+" Open bars flushed at shutdown", "count", flushed)
	}
}

// Instruments returns how many instruments have generator groups.
func (s *Set) Instruments() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.gens)
}
