package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_None(t *testing.T) {
	p, err := NewProvider(context.Background(), "none", "")
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_Stdout(t *testing.T) {
	p, err := NewProvider(context.Background(), "stdout", "")
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "register")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_Unsupported(t *testing.T) {
	_, err := NewProvider(context.Background(), "zipkin", "")
	assert.Error(t, err)
}
