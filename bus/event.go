// Package bus is the in-process publish/subscribe dispatcher for the
// pipeline. It routes market-rate traffic (ticks, bars) and control
// traffic (sessions, timers, alarms) through separate bounded queues,
// each drained by its own worker pool. The market queue is sharded by
// instrument across its workers, so events for one instrument are
// always dispatched in publish order on a single goroutine.
//
// Delivery is at-least-once per subscriber. Tick events are never
// dropped: when the market queue saturates they spill into an
// unbounded overflow list drained by a pump goroutine. Non-tick events
// are dropped after a bounded retry budget, with an error log.
package bus

import (
	"strings"
	"time"
)

// Kind is a namespaced event type. The namespace prefix selects the
// queue: "market.*" events ride the market queue, everything else the
// general queue.
type Kind string

// marketPrefix selects the market queue.
const marketPrefix = "market."

// Event kinds routed through the bus.
const (
	// Market-rate events.
	KindTick Kind = "market.tick" // payload *md.Tick
	KindBar  Kind = "market.bar"  // payload *md.Bar

	// Gateway session events.
	KindMDLogin   Kind = "gateway.md_login"  // payload GatewaySession
	KindTDLogin   Kind = "gateway.td_login"  // payload GatewaySession
	KindSubscribe Kind = "gateway.subscribe" // payload SubscribeRequest

	// Time-driven and operational events.
	KindTimer        Kind = "timer.tick"         // payload TimerTick
	KindAlarm        Kind = "system.alarm"       // payload AlarmFired
	KindArchive      Kind = "task.archive"       // payload TaskFired
	KindSessionClose Kind = "task.session_close" // payload TaskFired

	// kindSentinel unblocks one worker during drain. Never dispatched.
	kindSentinel Kind = "bus.sentinel"
)

// IsMarket reports whether the kind rides the market queue.
func (k Kind) IsMarket() bool {
	return strings.HasPrefix(string(k), marketPrefix)
}

// Event is one routed message. Payload is typed per kind; handlers
// registered for a kind may assert the documented payload type.
type Event struct {
	Kind    Kind
	TraceID string // correlation id; the bus fills it in when absent
	Source  string // producer name, e.g. "gateway.feed"
	Time    time.Time
	Payload any
}

// GatewaySession is published when a gateway session opens or fails.
type GatewaySession struct {
	Gateway    string // "md" or "td"
	Success    bool
	TradingDay string // exchange-assigned trading day, td sessions only
}

// SubscribeRequest is the bulk market-data subscription issued once by
// the contract registry after both gateway sessions are ready.
type SubscribeRequest struct {
	InstrumentIDs []string
}

// TimerTick is the periodic timer payload. Time-driven subscribers
// (archiver triggers, health checks) key off it instead of owning
// their own clocks.
type TimerTick struct {
	At  time.Time
	Seq uint64
}

// AlarmFired is an operational alarm raised by a writer or scheduler.
type AlarmFired struct {
	Source  string
	Message string
	Err     string // rendered error, "" when the alarm is informational
	At      time.Time
}

// TaskFired is a scheduled-task trigger (archive cycle, post-session
// CSV maintenance). Day is the trading day the task applies to.
type TaskFired struct {
	Task string
	Day  string
	At   time.Time
}
