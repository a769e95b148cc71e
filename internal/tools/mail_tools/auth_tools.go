package mail_tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxindex/internal/google"
)

func registerAuthTools(s *mcpserver.MCPServer, deps Deps, readOnly bool) error {
	statusTool := mcp.NewTool("oauth_status",
		mcp.WithDescription("Report the state of the stored Gmail credential"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(statusTool, instrumented("oauth_status", deps, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleStatus(ctx, deps.Auth)
	}))

	if readOnly {
		return nil
	}

	authURLTool := mcp.NewTool("oauth_authorization_url",
		mcp.WithDescription("Start an authorization and return Google's consent URL"),
	)
	s.AddTool(authURLTool, instrumented("oauth_authorization_url", deps, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		authURL, _, err := deps.Auth.AuthorizationURL(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to build authorization URL: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(`Open this URL in a browser and grant access:

%s

Then call oauth_exchange_code with the URL the browser was redirected to.`, authURL)), nil
	}))

	exchangeTool := mcp.NewTool("oauth_exchange_code",
		mcp.WithDescription("Exchange the authorization code from the consent redirect for a stored credential"),
		mcp.WithString("redirect_url",
			mcp.Description("The full URL the browser was redirected to after consent"),
		),
		mcp.WithString("code",
			mcp.Description("Authorization code (instead of redirect_url)"),
		),
		mcp.WithString("state",
			mcp.Description("State returned with the code (instead of redirect_url)"),
		),
	)
	s.AddTool(exchangeTool, instrumented("oauth_exchange_code", deps, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleExchange(ctx, request, deps.Auth)
	}))

	resetTool := mcp.NewTool("oauth_reset",
		mcp.WithDescription("Forget the stored Gmail credential"),
		mcp.WithDestructiveHintAnnotation(true),
	)
	s.AddTool(resetTool, instrumented("oauth_reset", deps, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := deps.Auth.Reset(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to reset credential: %v", err)), nil
		}
		return mcp.NewToolResultText("Credential removed from " + deps.Auth.Store().String()), nil
	}))

	return nil
}

// StatusOutput is the result of oauth_status.
type StatusOutput struct {
	State            string `json:"state"`
	Store            string `json:"store"`
	LastRefreshError string `json:"last_refresh_error,omitempty"`
	ReauthRequired   bool   `json:"reauth_required"`
}

func handleStatus(ctx context.Context, auth Authorizer) (*mcp.CallToolResult, error) {
	state := auth.State(ctx)
	out := StatusOutput{
		State:          state.String(),
		Store:          auth.Store().String(),
		ReauthRequired: state == google.NoCredential || state == google.CredentialInvalid,
	}
	if err := auth.LastRefreshError(); err != nil {
		out.LastRefreshError = err.Error()
		if errors.Is(err, google.ErrRefreshPermanent) {
			out.ReauthRequired = true
		}
	}
	return mcp.NewToolResultJSON(out)
}

func handleExchange(ctx context.Context, request mcp.CallToolRequest, auth Authorizer) (*mcp.CallToolResult, error) {
	var params url.Values
	if redirected := request.GetString("redirect_url", ""); redirected != "" {
		u, err := url.Parse(redirected)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to parse redirect_url: %v", err)), nil
		}
		params = u.Query()
		if providerErr := params.Get("error"); providerErr != "" {
			return mcp.NewToolResultError("Authorization was not granted: " + providerErr), nil
		}
	} else {
		code, state := request.GetString("code", ""), request.GetString("state", "")
		if code == "" || state == "" {
			return mcp.NewToolResultError("either redirect_url or both code and state are required"), nil
		}
		params = url.Values{"code": {code}, "state": {state}}
	}

	if err := auth.ExchangeCode(ctx, params, nil); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to exchange authorization code: %v", err)), nil
	}
	return mcp.NewToolResultText("Authorized. Credential saved to " + auth.Store().String()), nil
}
