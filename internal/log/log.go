package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

var currentLevel atomic.Value // stores slog.Level

// LevelTrace is a custom trace level below debug
const LevelTrace = slog.Level(-8)

// sink wraps the writer so atomic.Value always holds one concrete type
type sink struct{ w io.Writer }

var output atomic.Value // stores sink

func init() {
	level, err := parseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = slog.LevelInfo
	}

	currentLevel.Store(level)

	var w io.Writer = os.Stderr
	if dir := os.Getenv("LOG_DIR"); dir != "" {
		w = io.MultiWriter(os.Stderr, NewDailyFile(dir))
	}
	output.Store(sink{w})

	updateHandler()
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "ERROR":
		return slog.LevelError, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "TRACE":
		return LevelTrace, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s", s)
	}
}

// redactedKeys are attribute keys whose values never reach the log output
var redactedKeys = map[string]bool{
	"access_token":   true,
	"refresh_token":  true,
	"internal_token": true,
	"remote_token":   true,
	"code_verifier":  true,
	"authorization":  true,
}

// replaceAttr renders the trace level by name, redacts credential-bearing
// attributes and formats the timestamp for the chosen output
func replaceAttr(jsonFormat bool) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		switch {
		case a.Key == slog.TimeKey && jsonFormat:
			return slog.String("timestamp", a.Value.Time().UTC().Format(time.RFC3339Nano))
		case a.Key == slog.TimeKey:
			return slog.String(slog.TimeKey, a.Value.Time().Format("2006-01-02 15:04:05.000-07:00"))
		case a.Key == slog.LevelKey:
			if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
				return slog.String(slog.LevelKey, "TRACE")
			}
		case redactedKeys[strings.ToLower(a.Key)]:
			if a.Value.String() != "" {
				return slog.String(a.Key, "***")
			}
		}
		return a
	}
}

func newHandler(w io.Writer, level slog.Level) slog.Handler {
	jsonFormat := strings.EqualFold(os.Getenv("LOG_FORMAT"), "json")
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr(jsonFormat)}
	if jsonFormat {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// updateHandler recreates the default handler with the current level and output
func updateHandler() {
	level := currentLevel.Load().(slog.Level)
	w := output.Load().(sink).w
	slog.SetDefault(slog.New(newHandler(w, level)))
}

// SetOutput replaces the destination of all log records; nil restores stderr
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	output.Store(sink{w})
	updateHandler()
}

// SetLogLevel atomically updates the log level at runtime
func SetLogLevel(level string) error {
	newLevel, err := parseLevel(level)
	if err != nil {
		return err
	}

	currentLevel.Store(newLevel)
	updateHandler()

	LogInfoWithFields("logging", "Log level changed", map[string]any{
		"new_level": level,
	})

	return nil
}

// GetLogLevel returns the current log level as a string
func GetLogLevel() string {
	level := currentLevel.Load().(slog.Level)

	switch level {
	case slog.LevelError:
		return "error"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelInfo:
		return "info"
	case slog.LevelDebug:
		return "debug"
	case LevelTrace:
		return "trace"
	default:
		return "unknown"
	}
}

func Logf(format string, args ...any) {
	slog.Default().Info(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...any) {
	slog.Default().Error(fmt.Sprintf(format, args...))
}

func LogWarn(format string, args ...any) {
	slog.Default().Warn(fmt.Sprintf(format, args...))
}

func LogDebug(format string, args ...any) {
	slog.Default().Debug(fmt.Sprintf(format, args...))
}

func LogTrace(format string, args ...any) {
	if currentLevel.Load().(slog.Level) <= LevelTrace {
		slog.Default().Log(context.Background(), LevelTrace, fmt.Sprintf(format, args...))
	}
}

func buildArgs(component string, fields map[string]any) []any {
	args := make([]any, 0, len(fields)*2+2)
	args = append(args, "component", component)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func LogInfoWithFields(component, message string, fields map[string]any) {
	slog.Default().Info(message, buildArgs(component, fields)...)
}

func LogDebugWithFields(component, message string, fields map[string]any) {
	slog.Default().Debug(message, buildArgs(component, fields)...)
}

func LogErrorWithFields(component, message string, fields map[string]any) {
	slog.Default().Error(message, buildArgs(component, fields)...)
}

func LogWarnWithFields(component, message string, fields map[string]any) {
	slog.Default().Warn(message, buildArgs(component, fields)...)
}

func LogTraceWithFields(component, message string, fields map[string]any) {
	if currentLevel.Load().(slog.Level) <= LevelTrace {
		slog.Default().Log(context.Background(), LevelTrace, message, buildArgs(component, fields)...)
	}
}
