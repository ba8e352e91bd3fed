package logger

// Output controls what categories of information are shown at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
//
// Verbosity Levels:
//
//	0 (default) - User-facing output only: query results, errors, final status
//	1 (-v)      - + Progress, startup info, session status, flush summaries
//	2 (-vv)     - + Query timing, config loaded, subscription detail
//	3 (-vvv)    - + SQL statements, per-batch flush internals
//	4 (-vvvv)   - + Raw gateway frames

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults OutputCategory = iota // Query results, command output
	OutputErrors                        // Errors with resolution steps
	OutputStatus                        // Final success/failure status

	// Level 1 (-v) - Informational
	OutputProgress // Progress indicators (e.g., "archived 3/7 partitions")
	OutputStartup  // Startup banners, config summary
	OutputSessions // Gateway session status

	// Level 2 (-vv) - Detailed
	OutputTiming // Operation timing (e.g., "query took 42ms")
	OutputConfig // Config values loaded/applied

	// Level 3 (-vvv) - Debug
	OutputSQL     // Individual SQL statements executed
	OutputFlushes // Per-batch flush internals

	// Level 4 (-vvvv) - Full dump
	OutputFrames // Raw gateway frames
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	OutputResults: VerbosityUser,
	OutputErrors:  VerbosityUser,
	OutputStatus:  VerbosityUser,

	OutputProgress: VerbosityInfo,
	OutputStartup:  VerbosityInfo,
	OutputSessions: VerbosityInfo,

	OutputTiming: VerbosityDebug,
	OutputConfig: VerbosityDebug,

	OutputSQL:     VerbosityTrace,
	OutputFlushes: VerbosityTrace,

	OutputFrames: VerbosityAll,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		return verbosity >= VerbosityAll
	}
	return verbosity >= minLevel
}

// categoryNames provides human-readable names for output categories
var categoryNames = map[OutputCategory]string{
	OutputResults:  "results",
	OutputErrors:   "errors",
	OutputStatus:   "status",
	OutputProgress: "progress",
	OutputStartup:  "startup",
	OutputSessions: "sessions",
	OutputTiming:   "timing",
	OutputConfig:   "config",
	OutputSQL:      "sql",
	OutputFlushes:  "flushes",
	OutputFrames:   "frames",
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}
