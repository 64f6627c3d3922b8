package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Run("Should write JSON records with key/value pairs", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: InfoLevel, Output: &buf, JSON: true})
		log.Info("Todo saved", "id", 7)

		var record map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record))
		assert.Equal(t, "Todo saved", record["msg"])
		assert.Equal(t, "info", record["level"])
		assert.EqualValues(t, 7, record["id"])
	})

	t.Run("Should drop records below the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Level: WarnLevel, Output: &buf})
		log.Info("hidden")
		log.Debug("hidden")
		assert.Empty(t, buf.String())
		log.Warn("shown")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("Should carry fields added with With", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Output: &buf}).With("component", "repository")
		log.Error("boom")
		assert.True(t, strings.Contains(buf.String(), "component=repository"))
	})
}

func TestFromContext(t *testing.T) {
	t.Run("Should fall back to the default logger", func(t *testing.T) {
		assert.NotNil(t, FromContext(context.Background()))
		assert.Equal(t, GetDefault(), FromContext(context.Background()))
	})

	t.Run("Should return the logger stored in the context", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&Config{Output: &buf})
		ctx := ContextWithLogger(context.Background(), log)
		FromContext(ctx).Info("from context")
		assert.Contains(t, buf.String(), "from context")
	})
}
