package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxindex/internal/instrumentation"
	"github.com/teemow/inboxindex/internal/logging"
)

const (
	// userID addresses the authorized mailbox.
	userID = "me"

	// maxPageSize is the largest page messages.list accepts.
	maxPageSize = 100
)

// Message formats accepted by GetMessage.
const (
	FormatFull     = "full"
	FormatMetadata = "metadata"
)

// Client wraps the Gmail Users service for the authorized mailbox.
type Client struct {
	svc     *gmail.UsersService
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMetrics records every API call.
func WithMetrics(m *instrumentation.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client that authenticates through httpClient.
// Extra API options (an alternate endpoint in tests) follow.
func NewClient(ctx context.Context, httpClient *http.Client, apiOpts []option.ClientOption, opts ...ClientOption) (*Client, error) {
	all := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, apiOpts...)
	svc, err := gmail.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	c := &Client{svc: svc.Users}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// observe wraps one API call with a span and metrics.
func (c *Client) observe(ctx context.Context, op string, call func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, op)
	start := time.Now()
	err := call(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	elapsed := time.Since(start)
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, op, status, elapsed)
	c.logger.DebugContext(ctx, "gmail call",
		logging.Operation(op),
		logging.Status(status),
		slog.Duration(logging.KeyDuration, elapsed))
	instrumentation.EndSpan(span, err)
	return err
}

// ListMessageIDs returns the IDs of messages matching query, following
// continuation tokens until the listing ends or limit IDs were collected.
// A limit of 0 means no limit. The second result is the provider's
// approximate total from the first page.
func (c *Client) ListMessageIDs(ctx context.Context, query string, includeSpamTrash bool, limit int) ([]string, int64, error) {
	var (
		ids       []string
		estimate  int64
		pageToken string
		first     = true
	)

	for {
		size := maxPageSize
		if limit > 0 && limit-len(ids) < size {
			size = limit - len(ids)
		}

		var res *gmail.ListMessagesResponse
		err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
			req := c.svc.Messages.List(userID).
				Q(query).
				MaxResults(int64(size)).
				IncludeSpamTrash(includeSpamTrash).
				Context(ctx)
			if pageToken != "" {
				req.PageToken(pageToken)
			}
			var err error
			res, err = req.Do()
			return err
		})
		if err != nil {
			return nil, 0, &APIError{Op: "messages.list", Query: query, Err: err}
		}

		if first {
			estimate = res.ResultSizeEstimate
			first = false
		}
		if len(res.Messages) == 0 {
			break
		}
		for _, m := range res.Messages {
			ids = append(ids, m.Id)
		}
		if res.NextPageToken == "" || (limit > 0 && len(ids) >= limit) {
			break
		}
		pageToken = res.NextPageToken
	}

	return ids, estimate, nil
}

// GetMessage fetches one message in the given format. Headers restricts
// the headers returned by the metadata format.
func (c *Client) GetMessage(ctx context.Context, id, format string, headers ...string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		req := c.svc.Messages.Get(userID, id).Format(format).Context(ctx)
		if format == FormatMetadata && len(headers) > 0 {
			req.MetadataHeaders(headers...)
		}
		var err error
		msg, err = req.Do()
		return err
	})
	if err != nil {
		return nil, &APIError{Op: "messages.get", MessageID: id, Err: err}
	}
	return msg, nil
}

// GetMetadata fetches headers and the internal timestamp of a message.
func (c *Client) GetMetadata(ctx context.Context, id string, headers ...string) (*gmail.Message, error) {
	return c.GetMessage(ctx, id, FormatMetadata, headers...)
}

// GetFull fetches a message with its complete MIME payload.
func (c *Client) GetFull(ctx context.Context, id string) (*gmail.Message, error) {
	return c.GetMessage(ctx, id, FormatFull)
}
