package extensions

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	traced "github.com/traced-fn/traced-go"
)

// LoggingExtension logs every top-level operation with its duration and
// outcome.
type LoggingExtension struct {
	traced.BaseExtension
	logger *slog.Logger
}

// NewLoggingExtension creates a new logging extension writing through the
// given slog handler.
func NewLoggingExtension(handler slog.Handler) *LoggingExtension {
	return &LoggingExtension{
		BaseExtension: traced.NewBaseExtension("logging"),
		logger:        slog.New(handler),
	}
}

func (e *LoggingExtension) Wrap(ctx context.Context, next func() (any, error), op *traced.Operation) (any, error) {
	start := time.Now()
	result, err := next()
	duration := time.Since(start)

	if err != nil {
		e.logger.Error("operation failed",
			"operation", string(op.Kind),
			"attribute", op.AttributeID,
			"graph", op.Graph.ID(),
			"duration", duration,
			"error", err,
		)
	} else {
		e.logger.Debug("operation completed",
			"operation", string(op.Kind),
			"attribute", op.AttributeID,
			"graph", op.Graph.ID(),
			"duration", duration,
		)
	}

	return result, err
}

// SilentHandler is a slog.Handler that discards all log output
// Useful for testing when you don't want log output
type SilentHandler struct{}

// NewSilentHandler creates a new silent log handler
func NewSilentHandler() *SilentHandler {
	return &SilentHandler{}
}

func (h *SilentHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return false
}

func (h *SilentHandler) Handle(ctx context.Context, record slog.Record) error {
	return nil
}

func (h *SilentHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *SilentHandler) WithGroup(name string) slog.Handler {
	return h
}

// HumanHandler is a slog.Handler that formats logs for human readability
// with proper line breaks, especially for multi-line dependency graphs.
type HumanHandler struct {
	writer io.Writer
	level  slog.Level
}

// NewHumanHandler creates a new human-readable log handler
func NewHumanHandler(writer io.Writer, level slog.Level) *HumanHandler {
	return &HumanHandler{
		writer: writer,
		level:  level,
	}
}

func (h *HumanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *HumanHandler) Handle(ctx context.Context, record slog.Record) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] %s\n", record.Level, record.Message))
	record.Attrs(func(attr slog.Attr) bool {
		val := attr.Value.String()
		if strings.Contains(val, "\n") {
			sb.WriteString(fmt.Sprintf("  %s:%s\n", attr.Key, val))
		} else {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", attr.Key, val))
		}
		return true
	})

	_, err := io.WriteString(h.writer, sb.String())
	return err
}

func (h *HumanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *HumanHandler) WithGroup(name string) slog.Handler {
	return h
}
