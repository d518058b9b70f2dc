package diag

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config configures a Logger.
type Config struct {
	// Level is the minimum severity written: debug, info, warn or error.
	Level string
	// Format selects the handler: "json" or "text" (default).
	Format string
	// Output is where events are written. Defaults to os.Stderr.
	Output io.Writer
	// Localizer translates "@Module:StrID" messages. Defaults to NewLocalizer("en", nil).
	Localizer *Localizer
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: os.Stderr,
	}
}

// groupStack is the LIFO stack of open group labels.
type groupStack struct {
	mu     sync.Mutex
	labels []string
}

func (g *groupStack) push(label string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.labels = append(g.labels, label)
	return strings.Join(g.labels, "/")
}

func (g *groupStack) pop() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.labels) == 0 {
		return "", false
	}
	path := strings.Join(g.labels, "/")
	g.labels = g.labels[:len(g.labels)-1]
	return path, true
}

func (g *groupStack) path() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return strings.Join(g.labels, "/")
}

func (g *groupStack) depth() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.labels)
}

// Logger is a Sink backed by log/slog.
type Logger struct {
	log       *slog.Logger
	loc       *Localizer
	groups    *groupStack
	component string
}

// New creates a Logger. It does not touch the slog default logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.Localizer == nil {
		cfg.Localizer = NewLocalizer("en", nil)
	}

	opts := &slog.HandlerOptions{
		Level: ParseSeverity(cfg.Level).Level(),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelFatal {
					a.Value = slog.StringValue(Fatal.String())
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	return &Logger{
		log:    slog.New(handler),
		loc:    cfg.Localizer,
		groups: &groupStack{},
	}
}

// WithComponent returns a logger tagging events with a component name. The
// derived logger shares the group stack of l.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		log:       l.log,
		loc:       l.loc,
		groups:    l.groups,
		component: name,
	}
}

// Slog returns the underlying slog logger.
func (l *Logger) Slog() *slog.Logger {
	return l.log
}

// Localizer returns the localizer used for message ids.
func (l *Logger) Localizer() *Localizer {
	return l.loc
}

// WriteEvent implements Sink.
func (l *Logger) WriteEvent(sev Severity, msg, ctx string, loc Location) {
	attrs := make([]slog.Attr, 0, 4)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if g := l.groups.path(); g != "" {
		attrs = append(attrs, slog.String("group", g))
	}
	if ctx != "" {
		attrs = append(attrs, slog.String("context", l.loc.Translate(ctx)))
	}
	if src := loc.String(); src != "" {
		attrs = append(attrs, slog.String("source", src))
	}
	l.log.LogAttrs(context.Background(), sev.Level(), l.loc.Translate(msg), attrs...)
}

// PushGroup implements Sink.
func (l *Logger) PushGroup(label, ctx string) {
	path := l.groups.push(l.loc.Translate(label))

	attrs := []slog.Attr{slog.String("group", path)}
	if ctx != "" {
		attrs = append(attrs, slog.String("context", l.loc.Translate(ctx)))
	}
	l.log.LogAttrs(context.Background(), slog.LevelDebug, "group begin", attrs...)
}

// PopGroup implements Sink. Popping an empty stack is a no-op.
func (l *Logger) PopGroup() {
	path, ok := l.groups.pop()
	if !ok {
		return
	}
	l.log.LogAttrs(context.Background(), slog.LevelDebug, "group end", slog.String("group", path))
}

// Depth returns the number of open groups.
func (l *Logger) Depth() int {
	return l.groups.depth()
}

// Debug logs a debug event with slog-style key/value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.logArgs(slog.LevelDebug, msg, args...)
}

// Info logs an info event.
func (l *Logger) Info(msg string, args ...any) {
	l.logArgs(slog.LevelInfo, msg, args...)
}

// Warn logs a warning event.
func (l *Logger) Warn(msg string, args ...any) {
	l.logArgs(slog.LevelWarn, msg, args...)
}

// Error logs an error event.
func (l *Logger) Error(msg string, args ...any) {
	l.logArgs(slog.LevelError, msg, args...)
}

func (l *Logger) logArgs(level slog.Level, msg string, args ...any) {
	if l.component != "" {
		args = append([]any{"component", l.component}, args...)
	}
	if g := l.groups.path(); g != "" {
		args = append(args, "group", g)
	}
	l.log.Log(context.Background(), level, l.loc.Translate(msg), args...)
}
