package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithAgentID(ctx, "support")
	ctx = WithSessionID(ctx, "s1")
	ctx = WithTenantID(ctx, "t1")

	assert.Equal(t, "trace-1", GetTraceID(ctx))
	assert.Equal(t, "run-1", GetRunID(ctx))
	assert.Equal(t, "support", GetAgentID(ctx))
	assert.Equal(t, "s1", GetSessionID(ctx))
	assert.Equal(t, "t1", GetTenantID(ctx))
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetSessionID(ctx))
}

func TestNewRunContext(t *testing.T) {
	ctx := NewRunContext(context.Background(), "support")
	assert.NotEmpty(t, GetRunID(ctx))
	assert.Equal(t, "support", GetAgentID(ctx))
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithSessionID(WithTraceID(context.Background(), "trace-1"), "s1")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	assert.Contains(t, out, "trace-1")
	assert.Contains(t, out, "s1")
}
