// Package logging provides structured logging for treemon.
//
// This package wraps the standard library's log/slog package to provide
// consistent logging across all components. It supports both text and JSON
// output formats, configurable log levels, and component-based loggers.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false) // Text format
//	logging.Init(slog.LevelDebug, true) // JSON format for log shippers
//
//	// Get a component logger
//	log := logging.Component("overlay")
//	log.Info("node attached", "node", id, "role", role)
//
//	// Log with node and epoch context
//	ctx = logging.ContextWithNode(ctx, id)
//	logging.WithContext(ctx, log).Warn("child suspect", "child", childID)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu sync.RWMutex

	// base is the root logger every component logger delegates to.
	base *slog.Logger

	// Logger is the global logger instance.
	Logger *slog.Logger
)

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	InitWriter(os.Stderr, level, jsonFormat)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level slog.Level, jsonFormat bool) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	InitWithHandler(handler)
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	mu.Lock()
	defer mu.Unlock()
	base = slog.New(handler)
	Logger = base
	slog.SetDefault(base)
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
// Unknown strings yield info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Loggers returned here are usually stored in a package-level variable
// before Init runs, so they resolve the global handler at log time.
//
// Example:
//
//	var log = logging.Component("liveness")
//	log.Info("started") // Output: time=... level=INFO msg=started component=liveness
func Component(name string) *slog.Logger {
	return slog.New(&lateHandler{attrs: []slog.Attr{slog.String("component", name)}})
}

// Node context keys.
type contextKey int

const (
	contextKeyNode contextKey = iota
	contextKeyEpoch
)

// ContextWithNode adds a node identifier to the context for logging.
func ContextWithNode(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, contextKeyNode, nodeID)
}

// ContextWithEpoch adds a topology epoch to the context for logging.
func ContextWithEpoch(ctx context.Context, epoch uint64) context.Context {
	return context.WithValue(ctx, contextKeyEpoch, epoch)
}

// WithContext returns logger extended with the node and epoch context
// values found in ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id, ok := ctx.Value(contextKeyNode).(string); ok {
		logger = logger.With("node", id)
	}
	if epoch, ok := ctx.Value(contextKeyEpoch).(uint64); ok {
		logger = logger.With("epoch", epoch)
	}
	return logger
}

func current() *slog.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l != nil {
		return l
	}
	return slog.Default()
}

// lateHandler resolves the global handler on every record so component
// loggers created at package init pick up the configuration applied by Init.
type lateHandler struct {
	attrs  []slog.Attr
	groups []string
}

func (h *lateHandler) resolve() slog.Handler {
	handler := current().Handler()
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	for _, g := range h.groups {
		handler = handler.WithGroup(g)
	}
	return handler
}

func (h *lateHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return current().Handler().Enabled(ctx, level)
}

func (h *lateHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h *lateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &lateHandler{attrs: merged, groups: h.groups}
}

func (h *lateHandler) WithGroup(name string) slog.Handler {
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &lateHandler{attrs: h.attrs, groups: groups}
}
