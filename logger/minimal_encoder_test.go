package logger

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// stripANSI removes ANSI color codes from a string for testing
func stripANSI(str string) string {
	ansiRegex := regexp.MustCompile(`\x1b\[[0-9;]*m`)
	return ansiRegex.ReplaceAllString(str, "")
}

// TestMinimalEncoderNeverDiscardsFields ensures the minimal encoder NEVER
// silently discards log fields. Debugging a live pipeline depends on it.
func TestMinimalEncoderNeverDiscardsFields(t *testing.T) {
	encoder := newMinimalEncoder()

	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Now(),
		LoggerName: "test",
		Message:    "Testing field preservation",
	}

	testFields := []struct {
		field    zapcore.Field
		mustFind string // What we must find in the output
	}{
		// Known keys render as bare values
		{zap.String("instrument", "cu2511"), "cu2511"},
		{zap.String("trading_day", "20251027"), "20251027"},
		{zap.Int("rows", 10000), "10000 rows"},
		{zap.Int64("duration_ms", 42), "42ms"},
		{zap.String("trace_id", "evt_9f3k"), "evt_9f3k"},

		// Arbitrary keys must fall through as key=value
		{zap.String("random_field_xyz", "important_data"), "random_field_xyz=important_data"},
		{zap.Int("critical_count", 999), "critical_count=999"},
		{zap.Bool("degraded", true), "degraded=true"},
		{zap.Float64("fill_ratio", 0.8), "fill_ratio=0.8"},
		{zap.Strings("exchanges", []string{"SHFE", "DCE"}), "exchanges"},
		{zap.String("error", "disk full"), "error=disk full"},

		// Exotic types must still surface in some form
		{zap.Duration("elapsed", 5 * time.Second), "elapsed"},
		{zap.Uint64("bytes", 5000000000), "bytes=5000000000"},
		{zap.Error(nil), ""}, // nil error shouldn't crash
	}

	var allFields []zapcore.Field
	for _, tf := range testFields {
		allFields = append(allFields, tf.field)
	}

	buf, err := encoder.EncodeEntry(entry, allFields)
	if err != nil {
		t.Fatalf("Failed to encode entry: %v", err)
	}

	cleanOutput := stripANSI(buf.String())

	for _, tf := range testFields {
		if tf.mustFind != "" && !strings.Contains(cleanOutput, tf.mustFind) {
			t.Errorf("field was silently discarded from log output: %s\noutput: %s", tf.mustFind, cleanOutput)
		}
	}
}

// TestMinimalEncoderSymbolLeadsMessage verifies the symbol field is hoisted
// out of the field list and prefixed to the message.
func TestMinimalEncoderSymbolLeadsMessage(t *testing.T) {
	encoder := newMinimalEncoder()

	entry := zapcore.Entry{
		Level:      zapcore.InfoLevel,
		Time:       time.Now(),
		LoggerName: "store.hot",
		Message:    "Flushed batch",
	}

	fields := []zapcore.Field{
		zap.String(FieldSymbol, "⊔"),
		zap.Int("rows", 3000),
	}

	buf, err := encoder.EncodeEntry(entry, fields)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}

	cleanOutput := stripANSI(buf.String())

	symbolIdx := strings.Index(cleanOutput, "⊔")
	msgIdx := strings.Index(cleanOutput, "Flushed batch")
	if symbolIdx == -1 {
		t.Fatalf("symbol missing from output: %s", cleanOutput)
	}
	if msgIdx == -1 {
		t.Fatalf("message missing from output: %s", cleanOutput)
	}
	if symbolIdx > msgIdx {
		t.Errorf("symbol should precede message: %s", cleanOutput)
	}
	if strings.Contains(cleanOutput, "symbol=") {
		t.Errorf("symbol should not render as key=value: %s", cleanOutput)
	}
}

func TestMinimalEncoderLevelMarkers(t *testing.T) {
	encoder := newMinimalEncoder()

	tests := []struct {
		level    zapcore.Level
		wantText string
	}{
		{zapcore.InfoLevel, ""},
		{zapcore.WarnLevel, "WARN"},
		{zapcore.ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		entry := zapcore.Entry{
			Level:   tt.level,
			Time:    time.Now(),
			Message: "msg",
		}
		buf, err := encoder.EncodeEntry(entry, nil)
		if err != nil {
			t.Fatalf("encode at %v: %v", tt.level, err)
		}
		cleanOutput := stripANSI(buf.String())
		if tt.wantText == "" {
			if strings.Contains(cleanOutput, "INFO") {
				t.Errorf("info lines should not carry a level marker: %s", cleanOutput)
			}
			continue
		}
		if !strings.Contains(cleanOutput, tt.wantText) {
			t.Errorf("expected %q in output: %s", tt.wantText, cleanOutput)
		}
	}
}

func TestAbbreviateName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bus", "bus"},
		{"store.hot", "s.hot"},
		{"store.append.worker", "s.append.worker"},
		{"gateway.feed", "g.feed"},
	}

	for _, tt := range tests {
		if got := abbreviateName(tt.in); got != tt.want {
			t.Errorf("abbreviateName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSetThemeRejectsUnknown(t *testing.T) {
	orig := currentTheme
	defer SetTheme(orig)

	SetTheme("gruvbox")
	if currentTheme != "gruvbox" {
		t.Fatalf("SetTheme(gruvbox) did not apply")
	}
	SetTheme("neon-mess")
	if currentTheme != "gruvbox" {
		t.Errorf("unknown theme should be ignored, got %q", currentTheme)
	}
}
