package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_LengthAndUniqueness(t *testing.T) {
	a := NewID()
	b := NewID()

	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
}

func TestWithIDAndID(t *testing.T) {
	ctx := context.Background()

	_, ok := ID(ctx)
	assert.False(t, ok)

	ctx = WithID(ctx, "deadbeef0001")
	id, ok := ID(ctx)
	require.True(t, ok)
	assert.Equal(t, "deadbeef0001", id)
}

func TestHandler_InjectsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithID(context.Background(), "deadbeef0001")
	logger.InfoContext(ctx, "correlated message")
	logger.Info("uncorrelated message")

	logs := buf.String()
	assert.Contains(t, logs, `"correlation_id":"deadbeef0001"`)

	// Only the correlated line carries the attribute.
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("correlation_id")))
}
