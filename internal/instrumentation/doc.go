// Package instrumentation wires OpenTelemetry metrics and tracing.
//
// Metrics are exported through Prometheus by default (served by the
// metrics server), or pushed over OTLP, or written to stdout for
// development. Tracing is off unless TRACING_EXPORTER selects an exporter.
//
// # Metrics
//
//   - google_api_operations_total, google_api_operation_duration_seconds
//   - oauth_code_exchange_total, oauth_token_refresh_total
//   - mail_index_windows_total, mail_index_rows_total
//   - mail_hydrated_messages_total
//   - http_requests_total, http_request_duration_seconds
//
// Labels are kept low cardinality: no message IDs, days or addresses.
//
// # Environment
//
//	INSTRUMENTATION_ENABLED       default true
//	METRICS_EXPORTER              prometheus | otlp | stdout
//	TRACING_EXPORTER              none | otlp | stdout
//	OTEL_EXPORTER_OTLP_ENDPOINT   host:port
//	OTEL_EXPORTER_OTLP_INSECURE   default false
//	OTEL_TRACES_SAMPLER_ARG       default 0.1
//	OTEL_SERVICE_NAME             default inboxindex
package instrumentation
