package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxindex/internal/google"
	"github.com/teemow/inboxindex/internal/logging"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail access from the terminal",
		Long: `Authorize Gmail access without running the server.

  inboxindex auth url                  Print the consent URL
  inboxindex auth exchange --url URL   Finish with the URL the browser was redirected to
  inboxindex auth status               Show the stored credential state
  inboxindex auth reset                Forget the stored credential

The code verifier is kept in the pending store between "url" and
"exchange", so both may run in separate processes.`,
	}

	cmd.AddCommand(newAuthURLCmd())
	cmd.AddCommand(newAuthExchangeCmd())
	cmd.AddCommand(newAuthStatusCmd())
	cmd.AddCommand(newAuthResetCmd())
	return cmd
}

func newAuthURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the authorization URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				authURL, _, err := a.manager.AuthorizationURL(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), authURL)
				return nil
			})
		},
	}
}

func newAuthExchangeCmd() *cobra.Command {
	var redirected, code, state string

	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Exchange an authorization code for a credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := callbackParams(redirected, code, state)
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app) error {
				if err := a.manager.ExchangeCode(cmd.Context(), params, nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "authorized, credential saved to %s\n", a.manager.Store())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&redirected, "url", "", "The full URL the browser was redirected to after consent")
	cmd.Flags().StringVar(&code, "code", "", "Authorization code (instead of --url)")
	cmd.Flags().StringVar(&state, "state", "", "State returned with the code (instead of --url)")
	cmd.MarkFlagsMutuallyExclusive("url", "code")
	cmd.MarkFlagsMutuallyExclusive("url", "state")
	return cmd
}

// callbackParams builds the callback query from either the redirected URL
// or an explicit code and state.
func callbackParams(redirected, code, state string) (url.Values, error) {
	if redirected == "" {
		if code == "" || state == "" {
			return nil, errors.New("either --url or both --code and --state are required")
		}
		return url.Values{"code": {code}, "state": {state}}, nil
	}

	u, err := url.Parse(redirected)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redirect URL: %w", err)
	}
	params := u.Query()
	if providerErr := params.Get("error"); providerErr != "" {
		return nil, fmt.Errorf("authorization was not granted: %s", providerErr)
	}
	return params, nil
}

// authStatus is printed by "auth status".
type authStatus struct {
	State            string `json:"state"`
	Store            string `json:"store"`
	ClientID         string `json:"client_id,omitempty"`
	PKCE             bool   `json:"pkce"`
	LastRefreshError string `json:"last_refresh_error,omitempty"`
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored credential state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				settings := a.manager.Settings()
				status := authStatus{
					State:    a.manager.State(cmd.Context()).String(),
					Store:    a.manager.Store().String(),
					ClientID: settings.ClientID,
					PKCE:     settings.UsesPKCE(),
				}
				if err := a.manager.LastRefreshError(); err != nil {
					status.LastRefreshError = err.Error()
				}
				return printJSON(cmd.OutOrStdout(), status)
			})
		},
	}
}

func newAuthResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if err := a.manager.Reset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "credential removed from %s\n", a.manager.Store())
				return nil
			})
		},
	}
}

// withApp runs fn against a freshly wired app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("error during shutdown", logging.Err(err))
		}
	}()

	err = fn(a)
	if errors.Is(err, google.ErrNotAuthorized) {
		return fmt.Errorf("%w: run \"inboxindex auth url\" first", err)
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
