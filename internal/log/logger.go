package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is a slog.Logger tagged with the component that owns it. Attributes
// added through With survive a later WithComponent, and the component key is
// written exactly once per record.
type Logger struct {
	*slog.Logger
	root      *slog.Logger
	attrs     []any
	component string
}

// Config holds logger configuration. A nil Handler writes text to stdout at Level.
type Config struct {
	Level     slog.Level
	Component string
	Handler   slog.Handler
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	h := cfg.Handler
	if h == nil {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level})
	}
	return wrap(slog.New(h), nil, cfg.Component)
}

// Default wraps the process-wide slog default.
func Default() *Logger {
	return wrap(slog.Default(), nil, ComponentApp)
}

func wrap(root *slog.Logger, attrs []any, component string) *Logger {
	if component == "" {
		component = ComponentApp
	}
	l := root.With(FieldComponent, component)
	if len(attrs) > 0 {
		l = l.With(attrs...)
	}
	return &Logger{Logger: l, root: root, attrs: attrs, component: component}
}

// With returns a logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	attrs := make([]any, 0, len(l.attrs)+len(args))
	attrs = append(append(attrs, l.attrs...), args...)
	return wrap(l.root, attrs, l.component)
}

// WithComponent returns a copy of l reporting as component.
func (l *Logger) WithComponent(component string) *Logger {
	return wrap(l.root, l.attrs, component)
}

func (l *Logger) Component() string { return l.component }

// SetDefault installs logger as the slog default so package-level slog calls
// share its handler.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.root)
}

// ParseLevel maps a LOG_LEVEL value to a slog level. Unknown values map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// NewHandler builds a text or json handler writing to w.
func NewHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}
