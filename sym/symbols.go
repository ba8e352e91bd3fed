// Package sym defines canonical symbols for tickd subsystem log markers.
// These symbols are stable across CLI output, log lines, and documentation.
//
// Every long-lived subsystem logs with its glyph so a day of mixed output
// can be scanned (or grepped) by eye: storage lines carry ⊔, gateway
// session lines carry ⌾, scheduler lines carry ꩜.
package sym

// Subsystem markers.
const (
	Bus  = "⇶" // event bus routing and queue lifecycle
	Tick = "⌁" // tick stream (gateway → bus → storage)
	Bar  = "▤" // bar synthesis and bar close events
	Book = "☰" // contract registry / instrument table
	DB   = "⊔" // hot storage layer (per-day SQLite files)
	CSV  = "⎙" // append-only CSV writer
	Cold = "❄" // cold archive and retention moves
	Gate = "⌾" // gateway sessions and subscriptions
)

// System lifecycle markers.
const (
	Pulse      = "꩜" // scheduler, timers, periodic work
	PulseOpen  = "✿" // graceful startup
	PulseClose = "❀" // graceful shutdown
	Alarm      = "◉" // alarm events (aborted batches, degraded writers)
)

// entry binds a glyph to its name and description.
type entry struct {
	glyph       string
	name        string
	description string
}

// registry is the canonical glyph table, in display order.
var registry = []entry{
	{Bus, "bus", "event bus routing and queue lifecycle"},
	{Tick, "tick", "tick stream"},
	{Bar, "bar", "bar synthesis"},
	{Book, "book", "contract registry"},
	{DB, "db", "hot storage layer"},
	{CSV, "csv", "append-only CSV writer"},
	{Cold, "cold", "cold archive"},
	{Gate, "gate", "gateway sessions"},
	{Pulse, "pulse", "scheduler and timers"},
	{PulseOpen, "open", "graceful startup"},
	{PulseClose, "close", "graceful shutdown"},
	{Alarm, "alarm", "alarm events"},
}

// Lookup tables built from the registry at init time.
var (
	nameToGlyph map[string]string
	glyphToName map[string]string
)

func init() {
	nameToGlyph = make(map[string]string, len(registry))
	glyphToName = make(map[string]string, len(registry))
	for _, e := range registry {
		nameToGlyph[e.name] = e.glyph
		glyphToName[e.glyph] = e.name
	}
}

// FromName returns the glyph for a subsystem name, or "" if unknown.
func FromName(name string) string {
	return nameToGlyph[name]
}

// Name returns the subsystem name for a glyph, or "" if unknown.
func Name(glyph string) string {
	return glyphToName[glyph]
}

// Description returns the human-readable description for a glyph.
func Description(glyph string) string {
	for _, e := range registry {
		if e.glyph == glyph {
			return e.description
		}
	}
	return ""
}

// All returns every registered glyph in display order.
func All() []string {
	out := make([]string, len(registry))
	for i, e := range registry {
		out[i] = e.glyph
	}
	return out
}
