package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pilab-dev/exam-sso/log"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestZerologAdapter_TraceCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewZerologAdapter(zerolog.New(&buf)).With(map[string]interface{}{"component": "test"})

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	logger.Info(ctx, "hello", map[string]interface{}{"n": 1})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.EqualValues(t, 1, entry["n"])
}

func TestSetup_WritesFile(t *testing.T) {
	previous := zlog.Logger
	t.Cleanup(func() { zlog.Logger = previous })

	path := filepath.Join(t.TempDir(), "exam-sso.log")
	logger, closer, err := log.Setup(log.Options{Level: "debug", File: path})
	require.NoError(t, err)

	logger.Debug(context.Background(), "to file")
	zlog.Info().Msg("global")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.Contains(t, string(data), "global")
}

func TestSetup_BadLevel(t *testing.T) {
	previous := zlog.Logger
	t.Cleanup(func() { zlog.Logger = previous })

	_, _, err := log.Setup(log.Options{Level: "loud"})
	assert.Error(t, err)
	assert.Equal(t, zerolog.InfoLevel, zlog.Logger.GetLevel())
}
