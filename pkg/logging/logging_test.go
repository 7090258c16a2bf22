package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLog_writesOnlyPresentFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Log(Fields{Service: "storefront-api", OrderID: "42", Step: "order_created", Status: "ok"})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "order_created", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "storefront-api", ctx["service"])
	assert.Equal(t, "42", ctx["order_id"])
	assert.NotContains(t, ctx, "event_id")
	assert.NotContains(t, ctx, "duration_ms")
}

func TestLog_errorLevelWhenErrSet(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	Log(Fields{Service: "relay", Message: "publish failed", Err: errors.New("broker down")})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "broker down", entry.ContextMap()["error"])
}

func TestLogger_defaultIsNeverNil(t *testing.T) {
	SetLogger(nil)
	assert.NotNil(t, Logger())
}
