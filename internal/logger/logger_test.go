package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWriter_EmitsJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	log := InitWriter(&buf, "trader", slog.LevelInfo)
	log.Info("hello", slog.Int("n", 1))
	log.Debug("hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "trader", line["service"])
	assert.Equal(t, "hello", line["msg"])
	assert.EqualValues(t, 1, line["n"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, TraceID(ctx))

	ctx = WithTraceID(ctx, "tick-1")
	assert.Equal(t, "tick-1", TraceID(ctx))

	ctx = NewTrace(ctx)
	assert.Len(t, TraceID(ctx), 36)
}

func TestAttrs(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, Attrs(ctx))

	ctx = WithOperation(ctx, "op1")
	ctx = WithTicker(ctx, "BTCUSDT")
	attrs := Attrs(ctx)
	require.Len(t, attrs, 2)
	assert.Equal(t, slog.String("operation", "op1"), attrs[0])
	assert.Equal(t, slog.String("ticker", "BTCUSDT"), attrs[1])
}
