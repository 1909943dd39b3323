package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapturedLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	logger, err := NewLogger(&Config{
		Level:       "debug",
		Format:      "json",
		Output:      "stdout",
		ServiceName: "finsight-test",
		Version:     "test",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	return logger, &buf
}

func lastLogLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLoggerKeyValuePairs(t *testing.T) {
	logger, buf := newCapturedLogger(t)

	logger.Info("Operation completed", "symbol", "AAPL", "attempt", 2)

	entry := lastLogLine(t, buf)
	assert.Equal(t, "Operation completed", entry["message"])
	assert.Equal(t, "AAPL", entry["symbol"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.Equal(t, "finsight-test", entry["service"])
}

func TestLoggerWithContext(t *testing.T) {
	logger, buf := newCapturedLogger(t)

	ctx := WithCorrelationID(context.Background(), "corr-123")
	logger.WithContext(ctx).Info("request handled")

	entry := lastLogLine(t, buf)
	assert.Equal(t, "corr-123", entry["correlation_id"])
}

func TestGetCorrelationID(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-123")
	assert.Equal(t, "corr-123", GetCorrelationID(ctx))
	assert.Empty(t, GetCorrelationID(context.Background()))
}

func TestNewCorrelationIDUnique(t *testing.T) {
	a := NewCorrelationID()
	b := NewCorrelationID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	_, err := NewLogger(&Config{Level: "loud", Format: "json", Output: "stdout"})
	assert.Error(t, err)
}

func TestNewLoggerInvalidFormat(t *testing.T) {
	_, err := NewLogger(&Config{Level: "info", Format: "xml", Output: "stdout"})
	assert.Error(t, err)
}
