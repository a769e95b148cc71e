package instrumentation

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the OpenTelemetry settings.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// ServiceInstanceID defaults to the hostname.
	ServiceInstanceID string

	// Enabled turns metrics and tracing on (INSTRUMENTATION_ENABLED).
	Enabled bool

	// MetricsExporter is one of prometheus, otlp, stdout.
	MetricsExporter string

	// TracingExporter is one of otlp, stdout, none.
	TracingExporter string

	// OTLPEndpoint is host:port without scheme, e.g. localhost:4318.
	OTLPEndpoint string

	// OTLPInsecure disables TLS towards the collector. Development only.
	OTLPInsecure bool

	// TraceSamplingRate is in [0, 1].
	TraceSamplingRate float64
}

// DefaultConfig reads the instrumentation settings from the environment.
func DefaultConfig() Config {
	return Config{
		ServiceName:       getEnvOrDefault("OTEL_SERVICE_NAME", "inboxindex"),
		ServiceVersion:    "unknown",
		ServiceInstanceID: getEnvOrDefault("OTEL_SERVICE_INSTANCE_ID", ""),
		Enabled:           getEnvBoolOrDefault("INSTRUMENTATION_ENABLED", true),
		MetricsExporter:   getEnvOrDefault("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:   getEnvOrDefault("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:      getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:      getEnvBoolOrDefault("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate: getEnvFloatOrDefault("OTEL_TRACES_SAMPLER_ARG", 0.1),
	}
}

// Validate checks exporter names, the sampling rate and OTLP requirements.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	switch c.TracingExporter {
	case "", ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if (c.TracingExporter == ExporterOTLP || c.MetricsExporter == ExporterOTLP) && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when using an OTLP exporter")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// Label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	OAuthResultSuccess   = "success"
	OAuthResultFailure   = "failure"
	OAuthResultRejected  = "rejected"
	OAuthResultPermanent = "permanent_failure"

	ServiceGmail = "gmail"

	OperationList = "list"
	OperationGet  = "get"

	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)
