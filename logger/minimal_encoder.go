package logger

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// Everforest-ish palette; disabled when NO_COLOR is set
const (
	colorReset = "\x1b[0m"
	colorBold  = "\x1b[1m"
	colorTime  = "\x1b[38;5;107m"
	colorName  = "\x1b[38;5;208m"
	colorKey   = "\x1b[38;5;109m"
	colorWarn  = "\x1b[38;5;179m\x1b[48;5;58m"
	colorError = "\x1b[38;5;167m\x1b[48;5;52m"
)

var bufferPool = buffer.NewPool()

// minimalEncoder implements a calm, compact console encoder.
// Format: "13:04:35  pulse  Batch complete  batch=3 succeeded=97"
type minimalEncoder struct {
	*zapcore.MapObjectEncoder // accumulated With() fields
	color                     bool
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{
		MapObjectEncoder: zapcore.NewMapObjectEncoder(),
		color:            os.Getenv("NO_COLOR") == "",
	}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	clone := zapcore.NewMapObjectEncoder()
	for k, v := range enc.Fields {
		clone.Fields[k] = v
	}
	return &minimalEncoder{MapObjectEncoder: clone, color: enc.color}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := bufferPool.Get()

	final.AppendString(enc.paint(colorTime, ent.Time.Format("15:04:05")))

	// Level: only shown for WARN and above
	if ent.Level > zapcore.InfoLevel {
		final.AppendString("  ")
		final.AppendString(enc.levelString(ent.Level))
	} else if ent.Level == zapcore.DebugLevel {
		final.AppendString("  DEBUG")
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(enc.paint(colorName, ent.LoggerName))
	}

	final.AppendString("  ")
	final.AppendString(ent.Message)

	if rendered := enc.renderFields(fields); rendered != "" {
		final.AppendString("  ")
		final.AppendString(rendered)
	}

	final.AppendString("\n")
	return final, nil
}

func (enc *minimalEncoder) levelString(level zapcore.Level) string {
	switch level {
	case zapcore.WarnLevel:
		return enc.paint(colorBold+colorWarn, "WARN")
	default:
		return enc.paint(colorBold+colorError, level.CapitalString())
	}
}

// renderFields merges context fields with entry fields and prints them as
// key=value pairs sorted by key.
func (enc *minimalEncoder) renderFields(fields []zapcore.Field) string {
	merged := zapcore.NewMapObjectEncoder()
	for k, v := range enc.Fields {
		merged.Fields[k] = v
	}
	for _, f := range fields {
		f.AddTo(merged)
	}
	if len(merged.Fields) == 0 {
		return ""
	}

	keys := make([]string, 0, len(merged.Fields))
	for k := range merged.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, enc.paint(colorKey, k)+"="+formatValue(merged.Fields[k]))
	}
	return strings.Join(parts, " ")
}

func (enc *minimalEncoder) paint(color, s string) string {
	if !enc.color {
		return s
	}
	return color + s + colorReset
}

func formatValue(v interface{}) string {
	s := fmt.Sprintf("%v", v)
	if strings.ContainsAny(s, " \t") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
