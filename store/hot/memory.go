package hot

import (
	"github.com/openfutures/tickd/sym"
)

// approxTickBytes and approxBarBytes are rough in-memory row footprints
// used to size the buffer estimate against available memory.
const (
	approxTickBytes = 512
	approxBarBytes  = 160
)

// checkMemoryPressure compares the configured buffer ceilings against
// available system memory at start. A day of heavy trading can hold
// several day buffers at threshold simultaneously; the check warns when
// headroom looks thin rather than refusing to start.
func (s *Store) checkMemoryPressure() {
	total, available, err := getMemoryStats()
	if err != nil {
		// Can't check, assume OK.
		return
	}

	// Worst case per day buffer, times a generous allowance for
	// concurrent day buffers plus in-flight flush copies.
	perDay := uint64(s.cfg.TickThreshold)*approxTickBytes + uint64(s.cfg.BarThreshold)*approxBarBytes
	estimate := perDay * 8

	if estimate > available/4 {
		s.log.Warnw(sym.DB+" Hot store buffers are large for available memory",
			"estimated_bytes", estimate,
			"available_bytes", available,
			"total_bytes", total,
			"tick_threshold", s.cfg.TickThreshold,
			"bar_threshold", s.cfg.BarThreshold)
	}
}
