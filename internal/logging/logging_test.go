package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext_DefaultsWhenUnset(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestAlert_TagsRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := WithLogger(context.Background(), logger)

	Alert(ctx, "ledger integrity violation", "merchant_id", "m-1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, true, rec["alert"])
	assert.Equal(t, "m-1", rec["merchant_id"])
}

func TestNew_ProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "payout-ledger", "warn", "production")

	logger.Info("dropped")
	logger.Warn("kept", "withdrawal_id", "w-1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec), "only the warn line is written")
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "payout-ledger", rec["service"])
	assert.Equal(t, "w-1", rec["withdrawal_id"])
	assert.NotContains(t, rec, "source")
}

func TestNew_DevelopmentIsText(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "payout-ledger", "debug", "development").Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "source=")
}

func TestWith_ExtendsContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx = With(ctx, "merchant_id", "m-9")

	FromContext(ctx).Info("reserved")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "m-9", rec["merchant_id"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}
