package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/openfutures/tickd/sym"
)

// Color palettes for different themes
const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
)

// Gruvbox Dark color palette (warm, muted, easy on eyes)
type gruvboxColors struct {
	fg       string
	aqua     string
	orange   string
	yellow   string
	green    string
	blue     string
	purple   string
	red      string
	redBg    string
	yellowBg string
}

var gruvbox = gruvboxColors{
	fg:       "\x1b[38;5;223m", // Soft cream (#ebdbb2)
	aqua:     "\x1b[38;5;108m", // Muted cyan-green (#8ec07c)
	orange:   "\x1b[38;5;208m", // Warm orange (#fe8019)
	yellow:   "\x1b[38;5;214m", // Soft yellow (#fabd2f)
	green:    "\x1b[38;5;142m", // Muted green (#b8bb26)
	blue:     "\x1b[38;5;109m", // Soft blue (#83a598)
	purple:   "\x1b[38;5;175m", // Muted purple (#d3869b)
	red:      "\x1b[38;5;167m", // Warm red (#fb4934)
	redBg:    "\x1b[48;5;88m",  // Dark red background
	yellowBg: "\x1b[48;5;58m",  // Dark yellow background
}

// Everforest Dark color palette (natural forest greens)
type everforestColors struct {
	fg          string
	greenBright string
	greenMid    string
	greenDeep   string
	aqua        string
	orange      string
	yellow      string
	red         string
	redBg       string
	yellowBg    string
}

var everforest = everforestColors{
	fg:          "\x1b[38;5;223m", // Soft beige (#d3c6aa)
	greenBright: "\x1b[38;5;108m", // Bright green (#a7c080)
	greenMid:    "\x1b[38;5;107m", // Mid green (#83c092) - timestamps
	greenDeep:   "\x1b[38;5;65m",  // Deep green (#7fbbb3) - secondary
	aqua:        "\x1b[38;5;109m", // Blue-green (#7fbbb3) - ids
	orange:      "\x1b[38;5;208m", // Warm orange (#e69875) - components
	yellow:      "\x1b[38;5;179m", // Soft yellow (#dbbc7f) - warnings
	red:         "\x1b[38;5;167m", // Warm red (#e67e80) - errors
	redBg:       "\x1b[48;5;52m",  // Dark red background
	yellowBg:    "\x1b[48;5;58m",  // Dark yellow background
}

// Current active theme (set by logger.Initialize from env)
var currentTheme = "everforest"

// SetTheme configures the color scheme for log output
func SetTheme(theme string) {
	if theme == "everforest" || theme == "gruvbox" {
		currentTheme = theme
	}
}

// Theme-aware color getters
func colorTime() string {
	if currentTheme == "everforest" {
		return everforest.greenMid
	}
	return gruvbox.aqua
}

func colorComponent(name string) string {
	// Hash for consistent color per component
	hash := 0
	for _, c := range name {
		hash += int(c)
	}

	if currentTheme == "everforest" {
		if hash%3 == 0 {
			return everforest.greenBright
		} else if hash%3 == 1 {
			return everforest.greenDeep
		}
		return everforest.orange
	}

	if hash%2 == 0 {
		return gruvbox.orange
	}
	return gruvbox.yellow
}

func colorMessage(msg string) string {
	lower := strings.ToLower(msg)

	if currentTheme == "everforest" {
		// Strong green presence: data-path operations are green
		if strings.Contains(lower, "flush") || strings.Contains(lower, "query") ||
			strings.Contains(lower, "archive") || strings.Contains(lower, "bar") {
			return everforest.greenBright
		}
		if strings.Contains(lower, "subscribe") || strings.Contains(lower, "session") ||
			strings.Contains(lower, "gateway") || strings.Contains(lower, "connected") {
			return everforest.greenMid
		}
		if strings.Contains(lower, "starting") || strings.Contains(lower, "started") ||
			strings.Contains(lower, "stopping") || strings.Contains(lower, "config") {
			return everforest.greenDeep
		}
		return everforest.fg
	}

	if strings.Contains(lower, "subscribe") || strings.Contains(lower, "session") ||
		strings.Contains(lower, "gateway") || strings.Contains(lower, "connected") {
		return gruvbox.blue
	}
	if strings.Contains(lower, "flush") || strings.Contains(lower, "query") ||
		strings.Contains(lower, "archive") || strings.Contains(lower, "bar") {
		return gruvbox.green
	}
	if strings.Contains(lower, "starting") || strings.Contains(lower, "started") ||
		strings.Contains(lower, "stopping") || strings.Contains(lower, "config") {
		return gruvbox.orange
	}
	return gruvbox.fg
}

// colorizeSymbols wraps subsystem glyphs in the symbol color so markers
// stand out in a wall of output.
func colorizeSymbols(text string) string {
	symbolColor := gruvbox.green
	if currentTheme == "everforest" {
		symbolColor = everforest.greenBright
	}
	for _, glyph := range sym.All() {
		if strings.Contains(text, glyph) {
			text = strings.ReplaceAll(text, glyph, symbolColor+glyph+colorReset)
		}
	}
	return text
}

func colorID() string {
	if currentTheme == "everforest" {
		return everforest.aqua
	}
	return gruvbox.blue
}

func colorNumber() string {
	if currentTheme == "everforest" {
		return everforest.greenBright
	}
	return gruvbox.purple
}

func colorFg() string {
	if currentTheme == "everforest" {
		return everforest.fg
	}
	return gruvbox.fg
}

func colorWarn() (string, string) {
	if currentTheme == "everforest" {
		return everforest.yellow, everforest.yellowBg
	}
	return gruvbox.yellow, gruvbox.yellowBg
}

func colorError() (string, string) {
	if currentTheme == "everforest" {
		return everforest.red, everforest.redBg
	}
	return gruvbox.red, gruvbox.redBg
}

// minimalEncoder implements a calm, compact console encoder with theme support.
// Format: "13:04:35  s.hot  ⊔ flushed tick batch  cu2511 20251027 10000 rows 42ms"
type minimalEncoder struct {
	zapcore.Encoder // Embed a base encoder for field serialization
	buf             *buffer.Buffer
}

func newMinimalEncoder() *minimalEncoder {
	baseEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	return &minimalEncoder{
		Encoder: baseEncoder,
		buf:     buffer.NewPool().Get(),
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{
		Encoder: enc.Encoder.Clone(),
		buf:     buffer.NewPool().Get(),
	}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := buffer.NewPool().Get()

	// Time: theme-aware color
	final.AppendString(colorTime())
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	// Level: only show for WARN/ERROR with bold + background
	if ent.Level != zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(levelColorString(ent.Level))
	}

	// Component name (abbreviated): theme-aware color for visual grouping
	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(colorComponent(ent.LoggerName))
		final.AppendString(abbreviateName(ent.LoggerName))
		final.AppendString(colorReset)
	}

	// Symbol field, if present, leads the message
	symbol, rest := splitSymbolField(fields)
	final.AppendString("  ")
	if symbol != "" {
		final.AppendString(colorizeSymbols(symbol))
		final.AppendString(" ")
	}

	// Message
	final.AppendString(colorMessage(ent.Message))
	final.AppendString(ent.Message)
	final.AppendString(colorReset)

	// Fields: known keys as bare colored values, the rest as key=value
	if len(rest) > 0 {
		final.AppendString("  ")
		final.AppendString(renderFields(rest))
	}

	final.AppendString("\n")
	return final, nil
}

// levelColorString returns bold + colored + background for WARN/ERROR
func levelColorString(level zapcore.Level) string {
	warnColor, warnBg := colorWarn()
	errColor, errBg := colorError()

	switch level {
	case zapcore.WarnLevel:
		return colorBold + warnBg + warnColor + "WARN" + colorReset
	case zapcore.ErrorLevel:
		return colorBold + errBg + errColor + "ERROR" + colorReset
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return colorBold + errBg + errColor + level.CapitalString() + colorReset
	default:
		return ""
	}
}

// abbreviateName shortens component names: store.hot -> s.hot, bus -> bus
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

// splitSymbolField pulls the symbol field out of the field list so the glyph
// can lead the log line instead of trailing it as a key=value pair.
func splitSymbolField(fields []zapcore.Field) (string, []zapcore.Field) {
	for i, f := range fields {
		if f.Key == FieldSymbol && f.Type == zapcore.StringType {
			rest := make([]zapcore.Field, 0, len(fields)-1)
			rest = append(rest, fields[:i]...)
			rest = append(rest, fields[i+1:]...)
			return f.String, rest
		}
	}
	return "", fields
}

// getFieldValue extracts the value from a zap field. Routing through a
// MapObjectEncoder covers every field type zap can produce; a field must
// never be silently discarded from the console line.
func getFieldValue(field zapcore.Field) string {
	if field.Type == zapcore.StringType {
		return field.String
	}

	mapEnc := zapcore.NewMapObjectEncoder()
	field.AddTo(mapEnc)
	if v, ok := mapEnc.Fields[field.Key]; ok && v != nil {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// renderFields formats structured fields for the console line.
// Identity-ish keys render as bare colored values, counters get unit
// suffixes, everything else falls back to key=value.
func renderFields(fields []zapcore.Field) string {
	var values []string

	for _, field := range fields {
		val := getFieldValue(field)
		if val == "" {
			continue
		}
		switch field.Key {
		case FieldTraceID, FieldBatchID, FieldFlushID, FieldInstrument, FieldExchange:
			values = append(values, colorID()+val+colorReset)
		case FieldTradingDay, FieldDay, FieldInterval, FieldQueue, FieldKind:
			values = append(values, colorFg()+val+colorReset)
		case FieldRows:
			values = append(values, colorNumber()+val+colorReset+" rows")
		case FieldCount:
			values = append(values, colorNumber()+val+colorReset)
		case FieldDurationMS:
			values = append(values, colorNumber()+val+colorReset+"ms")
		default:
			values = append(values, colorFg()+field.Key+"="+colorReset+val)
		}
	}

	return strings.Join(values, " ")
}
