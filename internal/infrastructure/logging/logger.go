package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/cliqr-core/internal/infrastructure/config"
)

// Logger is the daemon's structured logger, a thin wrap of slog with
// the rig's default fields baked in. Every line carries service and
// version, so a journald stream mixing several bench services still
// filters cleanly.
//
// The zero value is unusable; construct with New or Default.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of the configuration.
//
// JSON to stdout is the service-mode default: systemd hands it to
// journald and field queries work. Text format reads better when
// running the recorder by hand on the bench. Unknown levels fall back
// to info rather than failing startup; a chatty recorder beats no
// recorder.
func New(cfg config.LoggingConfig, version string) *Logger {
	handler := newHandler(cfg).WithAttrs([]slog.Attr{
		slog.String("service", "cliqr"),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// newHandler picks the destination and encoding.
func newHandler(cfg config.LoggingConfig) slog.Handler {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}

// parseLevel maps a config string onto a slog level, defaulting to
// info for anything unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger carrying extra default attributes.
// Components tag themselves once instead of on every line:
//
//	hw := logger.With("component", "hardware")
//	hw.Info("board connected", "board", id)
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the bootstrap logger used before configuration is
// loaded: JSON to stdout at info level, version "dev". Config-load
// failures still come out structured.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
