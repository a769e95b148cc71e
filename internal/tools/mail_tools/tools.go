package mail_tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxindex/internal/google"
	"github.com/teemow/inboxindex/internal/instrumentation"
	"github.com/teemow/inboxindex/internal/logging"
	"github.com/teemow/inboxindex/internal/mailindex"
)

// Mail runs mailbox operations. *mailindex.Service implements it.
type Mail interface {
	Backfill(ctx context.Context, opts mailindex.IndexOptions) (mailindex.IndexStats, error)
	HydrateDay(ctx context.Context, day string, opts mailindex.HydrateOptions) (int, error)
	HydrateRange(ctx context.Context, from, to string, opts mailindex.HydrateOptions) (int, error)
	Search(ctx context.Context, query string, limit int) ([]mailindex.SearchResult, int64, error)
}

// Authorizer is the OAuth surface. *google.Manager implements it.
type Authorizer interface {
	AuthorizationURL(ctx context.Context) (string, *google.AuthAttempt, error)
	ExchangeCode(ctx context.Context, params url.Values, attempt *google.AuthAttempt) error
	State(ctx context.Context) google.CredentialState
	LastRefreshError() error
	Reset(ctx context.Context) error
	Store() google.TokenStore
}

// Deps are the services behind the tools. Metrics and Logger may be nil.
type Deps struct {
	Mail    Mail
	Auth    Authorizer
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

type handlerFunc = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// RegisterTools registers the mailbox and OAuth tools. With readOnly set,
// tools that write to the index or the credential store are left out.
func RegisterTools(s *mcpserver.MCPServer, deps Deps, readOnly bool) error {
	if deps.Mail == nil || deps.Auth == nil {
		return errors.New("mail tools require a mail service and an authorizer")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = logging.WithComponent(deps.Logger, "mcp")

	searchTool := mcp.NewTool("mail_search",
		mcp.WithDescription("Search the mailbox and return decoded messages"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search term. Scoped to 'in:all newer_than:90d' unless raw is true"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages (default: 20)"),
		),
		mcp.WithBoolean("raw",
			mcp.Description("Send the query to Gmail unchanged"),
		),
	)
	s.AddTool(searchTool, instrumented("mail_search", deps, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSearch(ctx, request, deps.Mail)
	}))

	if err := registerAuthTools(s, deps, readOnly); err != nil {
		return fmt.Errorf("failed to register oauth tools: %w", err)
	}
	if readOnly {
		return nil
	}

	backfillTool := mcp.NewTool("mail_backfill",
		mcp.WithDescription("Index message ids and timestamps for the lookback period"),
		mcp.WithNumber("lookback_days",
			mcp.Description("How many days back to index (default: 182)"),
		),
		mcp.WithNumber("window_days",
			mcp.Description("Width of each listing window in days (default: 4)"),
		),
		mcp.WithNumber("per_window_limit",
			mcp.Description("Stop listing a window after this many ids (default: no limit)"),
		),
		mcp.WithBoolean("include_spam_trash",
			mcp.Description("Include spam and trash (default: false)"),
		),
	)
	s.AddTool(backfillTool, instrumented("mail_backfill", deps, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleBackfill(ctx, request, deps.Mail)
	}))

	hydrateTool := mcp.NewTool("mail_hydrate",
		mcp.WithDescription("Fetch indexed messages of one UTC day, or of an inclusive day range, into the message store"),
		mcp.WithString("day",
			mcp.Description("Day as YYYY-MM-DD"),
		),
		mcp.WithString("from",
			mcp.Description("First day of a range as YYYY-MM-DD (with to)"),
		),
		mcp.WithString("to",
			mcp.Description("Last day of a range as YYYY-MM-DD (with from)"),
		),
		mcp.WithBoolean("bodies",
			mcp.Description("Decode message bodies (default: true)"),
		),
	)
	s.AddTool(hydrateTool, instrumented("mail_hydrate", deps, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleHydrate(ctx, request, deps.Mail)
	}))

	return nil
}

// SearchOutput is the result of mail_search.
type SearchOutput struct {
	Query    string                   `json:"query"`
	Estimate int64                    `json:"estimate"`
	Results  []mailindex.SearchResult `json:"results"`
}

func handleSearch(ctx context.Context, request mcp.CallToolRequest, mail Mail) (*mcp.CallToolResult, error) {
	term := request.GetString("query", "")
	if term == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	limit := request.GetInt("limit", 0)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}

	query := term
	if !request.GetBool("raw", false) {
		query = mailindex.DefaultQuery(term)
	}

	results, estimate, err := mail.Search(ctx, query, limit)
	if err != nil {
		return toolError("Failed to search", err), nil
	}
	return mcp.NewToolResultJSON(SearchOutput{Query: query, Estimate: estimate, Results: results})
}

func handleBackfill(ctx context.Context, request mcp.CallToolRequest, mail Mail) (*mcp.CallToolResult, error) {
	var (
		opts mailindex.IndexOptions
		err  error
	)
	if opts.Lookback, err = daysArg(request, "lookback_days"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if opts.WindowWidth, err = daysArg(request, "window_days"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts.PerWindowLimit = request.GetInt("per_window_limit", 0)
	if opts.PerWindowLimit < 0 {
		return mcp.NewToolResultError("per_window_limit must not be negative"), nil
	}
	opts.IncludeSpamTrash = request.GetBool("include_spam_trash", false)

	stats, err := mail.Backfill(ctx, opts)
	if err != nil {
		return toolError("Failed to backfill", err), nil
	}
	return mcp.NewToolResultJSON(stats)
}

// HydrateOutput is the result of mail_hydrate.
type HydrateOutput struct {
	Day      string `json:"day,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Messages int    `json:"messages"`
}

func handleHydrate(ctx context.Context, request mcp.CallToolRequest, mail Mail) (*mcp.CallToolResult, error) {
	opts := mailindex.HydrateOptions{FetchBodies: request.GetBool("bodies", true)}
	day := request.GetString("day", "")
	from, to := request.GetString("from", ""), request.GetString("to", "")

	switch {
	case day != "" && (from != "" || to != ""):
		return mcp.NewToolResultError("day cannot be combined with from and to"), nil
	case day != "":
		n, err := mail.HydrateDay(ctx, day, opts)
		if err != nil {
			return toolError("Failed to hydrate "+day, err), nil
		}
		return mcp.NewToolResultJSON(HydrateOutput{Day: day, Messages: n})
	case from != "" && to != "":
		n, err := mail.HydrateRange(ctx, from, to, opts)
		if err != nil {
			return toolError("Failed to hydrate "+from+".."+to, err), nil
		}
		return mcp.NewToolResultJSON(HydrateOutput{From: from, To: to, Messages: n})
	default:
		return mcp.NewToolResultError("day, or from and to, is required"), nil
	}
}

func daysArg(request mcp.CallToolRequest, key string) (time.Duration, error) {
	n := request.GetInt(key, 0)
	if n < 0 {
		return 0, fmt.Errorf("%s must be a positive number of days", key)
	}
	return time.Duration(n) * 24 * time.Hour, nil
}

const notAuthorizedHint = `Gmail is not authorized. To authorize access:

1. Call oauth_authorization_url and open the URL in a browser
2. Sign in and grant read access to Gmail
3. Pass the URL the browser was redirected to to oauth_exchange_code`

func toolError(prefix string, err error) *mcp.CallToolResult {
	if errors.Is(err, google.ErrNotAuthorized) {
		return mcp.NewToolResultError(notAuthorizedHint)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

// instrumented records a metric and a debug log line for every call.
func instrumented(tool string, deps Deps, handler handlerFunc) handlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		if err != nil || (result != nil && result.IsError) {
			status = instrumentation.StatusError
		}
		deps.Metrics.RecordToolCall(ctx, tool, status, duration)
		deps.Logger.DebugContext(ctx, "tool called",
			logging.Operation(tool),
			logging.Status(status),
			slog.Duration(logging.KeyDuration, duration))
		return result, err
	}
}
