package extensions_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	traced "github.com/traced-fn/traced-go"
	"github.com/traced-fn/traced-go/extensions"
)

func TestLoggingExtensionLogsOperations(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	g := traced.NewGraph(traced.WithExtension(extensions.NewLoggingExtension(handler)))

	a := traced.Source(g, 1, traced.WithName("a"))
	doubled := traced.Derived(g, func(ctx *traced.EvalCtx) (int, error) {
		v, err := traced.Read(ctx, a)
		if err != nil {
			return 0, err
		}
		return v * 2, nil
	}, traced.WithName("doubled"))

	_, err := traced.Resolve(g, doubled)
	require.NoError(t, err)
	require.NoError(t, traced.Update(g, a, 2))

	out := buf.String()
	assert.Contains(t, out, "operation completed")
	assert.Contains(t, out, "operation=read")
	assert.Contains(t, out, "attribute=doubled")
	assert.Contains(t, out, "operation=write")
	assert.Contains(t, out, "attribute=a")
}

func TestLoggingExtensionLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	g := traced.NewGraph(traced.WithExtension(extensions.NewLoggingExtension(handler)))

	failing := traced.Derived(g, func(ctx *traced.EvalCtx) (int, error) {
		return 0, errors.New("boom")
	}, traced.WithName("failing"))

	_, err := traced.Resolve(g, failing)
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "operation failed")
	assert.Contains(t, out, "attribute=failing")
	assert.Contains(t, out, "boom")
}

func TestSilentHandlerDiscardsEverything(t *testing.T) {
	handler := extensions.NewSilentHandler()

	g := traced.NewGraph(traced.WithExtension(extensions.NewLoggingExtension(handler)))
	a := traced.Source(g, 1, traced.WithName("a"))

	v, err := traced.Resolve(g, a)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestHumanHandlerFormatsAttributes(t *testing.T) {
	var buf bytes.Buffer
	handler := extensions.NewHumanHandler(&buf, slog.LevelDebug)

	logger := slog.New(handler)
	logger.Info("hello", "key", "value", "multi", "line1\nline2")

	out := buf.String()
	assert.Contains(t, out, "[INFO] hello")
	assert.Contains(t, out, "  key: value")
	assert.Contains(t, out, "line1\nline2")
}
