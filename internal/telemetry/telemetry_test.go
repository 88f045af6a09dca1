package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit(t *testing.T) {
	ctx := context.Background()

	_, err := Init(ctx, Config{})
	assert.ErrorContains(t, err, "service name required")

	shutdown, err := Init(ctx, Config{ServiceName: "taskgrid"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(ctx), "disabled export shuts down cleanly")
}

func TestNewTracerProvider(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	tp, err := NewTracerProvider(exporter, Config{ServiceName: "taskgrid", ServiceVersion: "1.2.3"})
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(ctx, "run")
	span.End()
	require.NoError(t, tp.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "run", spans[0].Name)
	attrs := spans[0].Resource.Attributes()
	assert.Contains(t, attrs, attribute.String("service.name", "taskgrid"))
	assert.Contains(t, attrs, attribute.String("service.version", "1.2.3"))

	require.NoError(t, tp.Shutdown(ctx))
}
