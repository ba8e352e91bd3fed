package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		wantErr    bool
	}{
		{
			name:       "JSON output mode",
			jsonOutput: true,
			wantErr:    false,
		},
		{
			name:       "Console output mode",
			jsonOutput: false,
			wantErr:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset global logger
			Logger = nil
			JSONOutput = false

			err := Initialize(tt.jsonOutput)
			if (err != nil) != tt.wantErr {
				t.Errorf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				if Logger == nil {
					t.Error("Initialize() did not set global Logger")
				}
				if JSONOutput != tt.jsonOutput {
					t.Errorf("Initialize() JSONOutput = %v, want %v", JSONOutput, tt.jsonOutput)
				}
			}

			// Cleanup
			if Logger != nil {
				Logger.Sync()
				Logger = nil
			}
		})
	}
}

func TestInitializeWithLevel(t *testing.T) {
	tests := []struct {
		name  string
		level zapcore.Level
	}{
		{"warn level", zapcore.WarnLevel},
		{"info level", zapcore.InfoLevel},
		{"debug level", zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil

			if err := InitializeWithLevel(false, tt.level); err != nil {
				t.Fatalf("InitializeWithLevel() error = %v", err)
			}
			if Logger == nil {
				t.Fatal("InitializeWithLevel() did not set global Logger")
			}

			Logger.Sync()
			Logger = nil
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{3, zapcore.DebugLevel},
		{7, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		if got := VerbosityToLevel(tt.verbosity); got != tt.want {
			t.Errorf("VerbosityToLevel(%d) = %v, want %v", tt.verbosity, got, tt.want)
		}
	}
}

func TestShouldOutput(t *testing.T) {
	tests := []struct {
		verbosity int
		category  OutputCategory
		want      bool
	}{
		{0, OutputResults, true},
		{0, OutputErrors, true},
		{0, OutputProgress, false},
		{1, OutputProgress, true},
		{1, OutputTiming, false},
		{2, OutputTiming, true},
		{2, OutputSQL, false},
		{3, OutputSQL, true},
		{3, OutputFrames, false},
		{4, OutputFrames, true},
	}

	for _, tt := range tests {
		if got := ShouldOutput(tt.verbosity, tt.category); got != tt.want {
			t.Errorf("ShouldOutput(%d, %s) = %v, want %v",
				tt.verbosity, CategoryName(tt.category), got, tt.want)
		}
	}
}

func TestTraceIDContext(t *testing.T) {
	ctx := context.Background()

	if got := TraceIDFromContext(ctx); got != "" {
		t.Errorf("TraceIDFromContext(empty) = %q, want empty", got)
	}

	ctx = WithTraceID(ctx, "evt_9f3k")
	if got := TraceIDFromContext(ctx); got != "evt_9f3k" {
		t.Errorf("TraceIDFromContext = %q, want evt_9f3k", got)
	}

	fields := FieldsFromContext(ctx)
	if len(fields) != 2 || fields[0] != FieldTraceID || fields[1] != "evt_9f3k" {
		t.Errorf("FieldsFromContext = %v", fields)
	}
}

func TestLoggerFromContext(t *testing.T) {
	Logger = newTestLogger(t)
	defer func() {
		Logger.Sync()
		Logger = nil
	}()

	// Without context fields, the global logger comes back
	if got := LoggerFromContext(context.Background()); got != Logger {
		t.Error("LoggerFromContext(empty) should return the global logger")
	}

	// With a trace id, a child logger comes back; must not panic in use
	ctx := WithTraceID(context.Background(), "evt_x")
	child := LoggerFromContext(ctx)
	if child == Logger {
		t.Error("LoggerFromContext with trace id should return a child logger")
	}
	child.Infow("traced message", "key", "value")
}

func TestCleanup(t *testing.T) {
	tests := []struct {
		name        string
		setupLogger bool
	}{
		{"Cleanup with initialized logger", true},
		{"Cleanup with nil logger (should not panic)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setupLogger {
				Logger = newTestLogger(t)
			} else {
				Logger = nil
			}

			defer func() {
				if r := recover(); r != nil {
					t.Errorf("Cleanup() panicked unexpectedly: %v", r)
				}
			}()

			Cleanup()

			if tt.setupLogger && Logger == nil {
				t.Error("Cleanup() should not nil out the logger")
			}

			Logger = nil
		})
	}
}

// newTestLogger creates a logger for testing without modifying global state
func newTestLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()

	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)

	zapLogger, err := config.Build()
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}

	return zapLogger.Sugar()
}

// TestLoggingFunctions tests the package-level logging functions
func TestLoggingFunctions(t *testing.T) {
	Logger = newTestLogger(t)
	defer func() {
		if Logger != nil {
			Logger.Sync()
			Logger = nil
		}
	}()

	t.Run("Info functions", func(t *testing.T) {
		Info("test")
		Infof("test %s", "format")
		Infow("test", "key", "value")
	})

	t.Run("Error functions", func(t *testing.T) {
		Error("test")
		Errorf("test %s", "format")
		Errorw("test", "key", "value")
	})

	t.Run("Warn functions", func(t *testing.T) {
		Warn("test")
		Warnf("test %s", "format")
		Warnw("test", "key", "value")
	})

	t.Run("Debug functions", func(t *testing.T) {
		Debug("test")
		Debugf("test %s", "format")
		Debugw("test", "key", "value")
	})

	t.Run("Symbol helpers", func(t *testing.T) {
		PulseInfow("scheduler started", "spec", "0 16 * * *")
		PulseOpenInfow("starting")
		PulseCloseInfow("stopping")
		DBInfow("flushed", FieldRows, 100)
		DBDebugw("table created", FieldInstrument, "cu2511")
		GateInfow("session up", FieldExchange, "SHFE")
		AlarmWarnw("batch aborted", FieldTradingDay, "20251027")
		AlarmErrorw("direct write failed", FieldFile, "x.csv")
	})

	t.Run("With nil logger (should not panic)", func(t *testing.T) {
		Logger = nil

		Info("test")
		Infof("test %s", "format")
		Infow("test", "key", "value")
		Error("test")
		Errorf("test %s", "format")
		Errorw("test", "key", "value")
		Warn("test")
		Warnf("test %s", "format")
		Warnw("test", "key", "value")
		Debug("test")
		Debugf("test %s", "format")
		Debugw("test", "key", "value")
		PulseInfow("test")
		DBInfow("test")
		AlarmErrorw("test")
	})
}

// BenchmarkInfow benchmarks structured Info logging
func BenchmarkInfow(b *testing.B) {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	config.OutputPaths = []string{"/dev/null"}

	zapLogger, err := config.Build()
	if err != nil {
		b.Fatal(err)
	}
	Logger = zapLogger.Sugar()
	defer func() {
		Logger.Sync()
		Logger = nil
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Infow("test message", "iteration", i, "key", "value")
	}
}
