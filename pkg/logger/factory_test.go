package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subledger/pkg/logger"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("defaults to json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf))
		log.Info("hello", slog.String("k", "v"))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hello", entry["msg"])
		assert.Equal(t, "v", entry["k"])
	})

	t.Run("text format", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithFormat(logger.FormatText), logger.WithOutput(buf))
		log.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("invalid format panics", func(t *testing.T) {
		assert.Panics(t, func() {
			logger.New(logger.WithFormat("xml"))
		})
	})

	t.Run("level filters records", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithLevelName("warn"), logger.WithOutput(buf))
		log.Info("dropped")
		assert.Empty(t, buf.String())
		log.Warn("kept")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("static attrs", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithOutput(buf), logger.WithAttr(slog.String("app", "subledger")))
		log.Info("x")
		assert.Contains(t, buf.String(), `"app":"subledger"`)
	})
}

func TestWithEnvironment(t *testing.T) {
	t.Parallel()

	t.Run("development is text at debug", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithEnvironment("dev", "svc"), logger.WithOutput(buf))
		log.Debug("msg")
		out := buf.String()
		assert.Contains(t, out, "DEBUG")
		assert.Contains(t, out, "service=svc")
		assert.Contains(t, out, "env=development")
	})

	t.Run("production is json at info", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(logger.WithEnvironment("prod", "svc"), logger.WithOutput(buf))
		log.Debug("hidden")
		assert.Empty(t, buf.String())

		log.Info("msg")
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "svc", entry["service"])
		assert.Equal(t, "production", entry["env"])
	})
}

func TestContextExtractors(t *testing.T) {
	t.Parallel()

	type key struct{}
	type chatKey struct{}

	chat := func(ctx context.Context) (slog.Attr, bool) {
		id, ok := ctx.Value(chatKey{}).(int64)
		if !ok {
			return slog.Attr{}, false
		}
		return logger.ChatID(id), true
	}

	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithContextValue("request_id", key{}),
		logger.WithContextExtractors(chat, nil),
	)

	ctx := context.WithValue(context.Background(), key{}, "req-1")
	ctx = context.WithValue(ctx, chatKey{}, int64(42))
	log.InfoContext(ctx, "msg")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry["request_id"])
	assert.EqualValues(t, 42, entry["chat_id"])
}
