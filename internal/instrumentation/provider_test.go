package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderDisabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{ServiceName: "test", Enabled: false})
	require.NoError(t, err)

	assert.False(t, provider.Enabled())
	assert.NotNil(t, provider.Metrics())
	assert.Nil(t, provider.PrometheusHandler())
	assert.NotNil(t, provider.Tracer("test"))
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProviderPrometheus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: ExporterPrometheus,
		TracingExporter: ExporterNone,
	})
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(ctx) }()

	assert.True(t, provider.Enabled())
	assert.NotNil(t, provider.Metrics())
	assert.NotNil(t, provider.PrometheusHandler())
}

func TestNewProviderRejectsInvalidConfig(t *testing.T) {
	_, err := NewProvider(context.Background(), Config{
		Enabled:         true,
		MetricsExporter: ExporterOTLP,
	})
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "defaults", config: Config{MetricsExporter: ExporterPrometheus, TracingExporter: ExporterNone, TraceSamplingRate: 0.1}},
		{name: "bad sampling rate", config: Config{TraceSamplingRate: 1.5}, wantErr: true},
		{name: "bad metrics exporter", config: Config{MetricsExporter: "statsd"}, wantErr: true},
		{name: "bad tracing exporter", config: Config{TracingExporter: "jaeger"}, wantErr: true},
		{name: "otlp without endpoint", config: Config{TracingExporter: ExporterOTLP}, wantErr: true},
		{name: "otlp with endpoint", config: Config{TracingExporter: ExporterOTLP, OTLPEndpoint: "localhost:4318"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfigFromEnv(t *testing.T) {
	t.Setenv("INSTRUMENTATION_ENABLED", "false")
	t.Setenv("METRICS_EXPORTER", "stdout")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "not-a-number")

	c := DefaultConfig()
	assert.False(t, c.Enabled)
	assert.Equal(t, ExporterStdout, c.MetricsExporter)
	assert.Equal(t, 0.1, c.TraceSamplingRate)
	assert.Equal(t, "inboxindex", c.ServiceName)
}
