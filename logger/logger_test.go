package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerIsUsableBeforeInitialize(t *testing.T) {
	require.NotNil(t, Logger)
	assert.NotPanics(t, func() {
		Infow("before init", "k", "v")
		Debugw("before init")
	})
}

func TestInitialize(t *testing.T) {
	original := Logger
	defer func() { Logger = original; JSONOutput = false }()

	require.NoError(t, Initialize(true))
	assert.True(t, JSONOutput)

	require.NoError(t, InitializeWithLevel(false, zapcore.DebugLevel))
	assert.False(t, JSONOutput)
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestSetLevel(t *testing.T) {
	original := Logger
	defer func() { Logger = original; SetLevel(zapcore.InfoLevel) }()

	require.NoError(t, InitializeWithLevel(false, zapcore.WarnLevel))
	assert.False(t, Logger.Desugar().Core().Enabled(zapcore.InfoLevel))

	SetLevel(zapcore.DebugLevel)
	assert.Equal(t, zapcore.DebugLevel, Level())
	assert.True(t, Logger.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("loud"))
}

func TestLoggerFromContext(t *testing.T) {
	original := Logger
	defer func() { Logger = original }()

	core, logs := observer.New(zapcore.InfoLevel)
	Logger = zap.New(core).Sugar()

	ctx := WithJobID(context.Background(), "job-neo")
	ctx = WithComponent(ctx, "resolution.job")
	LoggerFromContext(ctx).Infow("hop complete", FieldHop, 2)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "job-neo", fields[FieldJobID])
	assert.Equal(t, "resolution.job", fields[FieldComponent])
	assert.EqualValues(t, 2, fields[FieldHop])
}

func TestLoggerFromContextWithoutFields(t *testing.T) {
	assert.Same(t, Logger, LoggerFromContext(context.Background()))
}

func TestWithFieldsReplacesKeys(t *testing.T) {
	ctx := WithRequestID(context.Background(), "red-pill")
	ctx = WithJobID(ctx, "job-neo")
	ctx = WithRequestID(ctx, "blue-pill")

	assert.Equal(t, []interface{}{FieldJobID, "job-neo", FieldRequestID, "blue-pill"}, FieldsFromContext(ctx))
	assert.Nil(t, FieldsFromContext(context.Background()))
}
