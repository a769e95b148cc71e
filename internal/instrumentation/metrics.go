package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrTool      = "tool"
)

// Metrics records inboxindex metrics. A zero or nil *Metrics is a valid
// no-op recorder.
type Metrics struct {
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	oauthExchangeTotal     metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	indexRowsTotal        metric.Int64Counter
	indexWindowsTotal     metric.Int64Counter
	hydratedMessagesTotal metric.Int64Counter

	toolCallsTotal   metric.Int64Counter
	toolCallDuration metric.Float64Histogram
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.httpRequestsTotal, "http_requests_total", "Total number of HTTP requests", "{request}"},
		{&m.googleAPIOperationsTotal, "google_api_operations_total", "Total number of Google API operations", "{operation}"},
		{&m.oauthExchangeTotal, "oauth_code_exchange_total", "Total number of OAuth authorization code exchanges", "{attempt}"},
		{&m.oauthTokenRefreshTotal, "oauth_token_refresh_total", "Total number of OAuth token refresh attempts", "{attempt}"},
		{&m.indexRowsTotal, "mail_index_rows_total", "Message index rows written", "{row}"},
		{&m.indexWindowsTotal, "mail_index_windows_total", "Indexing sub-windows processed", "{window}"},
		{&m.hydratedMessagesTotal, "mail_hydrated_messages_total", "Messages hydrated into the message store", "{message}"},
		{&m.toolCallsTotal, "mcp_tool_calls_total", "Total number of MCP tool calls", "{call}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 60.0, 300.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	m.toolCallDuration, err = meter.Float64Histogram(
		"mcp_tool_call_duration_seconds",
		metric.WithDescription("MCP tool call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.1, 0.5, 1.0, 5.0, 30.0, 120.0, 600.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_call_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGoogleAPIOperation records one Google API call.
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.googleAPIOperationsTotal.Add(ctx, 1, attrs)
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordOAuthExchange records an authorization code exchange outcome.
func (m *Metrics) RecordOAuthExchange(ctx context.Context, result string) {
	if m == nil || m.oauthExchangeTotal == nil {
		return
	}
	m.oauthExchangeTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordTokenRefresh records a refresh outcome: success, failure or
// permanent_failure.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return
	}
	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordIndexWindow records a processed sub-window and the rows it flushed.
func (m *Metrics) RecordIndexWindow(ctx context.Context, rows int) {
	if m == nil || m.indexWindowsTotal == nil {
		return
	}
	m.indexWindowsTotal.Add(ctx, 1)
	m.indexRowsTotal.Add(ctx, int64(rows))
}

// RecordHydratedMessages records messages written by the hydrator.
func (m *Metrics) RecordHydratedMessages(ctx context.Context, n int) {
	if m == nil || m.hydratedMessagesTotal == nil {
		return
	}
	m.hydratedMessagesTotal.Add(ctx, int64(n))
}

// RecordToolCall records one MCP tool call with status success or error.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, duration time.Duration) {
	if m == nil || m.toolCallsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, tool),
		attribute.String(attrStatus, status),
	)
	m.toolCallsTotal.Add(ctx, 1, attrs)
	m.toolCallDuration.Record(ctx, duration.Seconds(), attrs)
}
