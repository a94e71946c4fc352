package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgecli/bbctl/pkg/bbctl/auth"
	"github.com/forgecli/bbctl/pkg/bbctl/errs"
)

func NewOAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Manage OAuth 2.0 authentication",
	}
	cmd.AddCommand(
		newOAuthSetupCommand(),
		newOAuthLoginCommand(),
		newOAuthRefreshCommand(),
		newOAuthStatusCommand(),
		newOAuthLogoutCommand(),
	)
	return cmd
}

func newOAuthSetupCommand() *cobra.Command {
	var (
		clientID     string
		clientSecret string
		redirectURI  string
		scopes       string
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register an OAuth consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if clientID == "" || clientSecret == "" {
				return errs.NewValidation("Both --client-id and --client-secret are required",
					"Create an OAuth consumer in your workspace settings first")
			}
			app := auth.App{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				RedirectURI:  redirectURI,
				Scopes:       scopes,
			}
			if app.RedirectURI == "" {
				app.RedirectURI = auth.DefaultRedirectURI
			}
			if !rt.tokenStore().StoreApp(app) {
				return errs.NewConfig("Failed to store OAuth consumer",
					"Check that the secret storage location is writable")
			}
			_, _ = fmt.Fprintf(rt.Writer(), "OAuth consumer stored in %s. Run 'bbctl oauth login' to authorize.\n",
				rt.tokenStore().Info())
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth consumer key")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth consumer secret")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "Redirect URI (default "+auth.DefaultRedirectURI+")")
	cmd.Flags().StringVar(&scopes, "scopes", "", "Requested scopes, comma or space separated")
	return cmd
}

func newOAuthLoginCommand() *cobra.Command {
	var (
		port        int
		noBrowser   bool
		clientGrant bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize via the browser",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			store := rt.tokenStore()
			app, found, err := store.GetApp()
			if err != nil {
				return err
			}
			if !found {
				return errs.NewAuth("No OAuth consumer configured",
					"Run 'bbctl oauth setup' with your consumer key and secret first")
			}

			engine := rt.flowEngine()

			if clientGrant {
				token, err := engine.ClientCredentials(cmd.Context(), app)
				if err != nil {
					return err
				}
				if !store.StoreToken(token) {
					return errs.NewConfig("Failed to store OAuth token",
						"Check that the secret storage location is writable")
				}
				_, _ = fmt.Fprintf(rt.Writer(), "Authorized via client credentials. Token stored in %s.\n",
					store.Info())
				return nil
			}
			if port == 0 {
				port = rt.cfg.OAuth.CallbackPort
			}
			receiver := auth.NewCallbackReceiver()
			redirectURI, err := receiver.Listen(port)
			if err != nil {
				return errs.NewConfig(fmt.Sprintf("Failed to listen on port %d", port),
					"Pass --port to use a different callback port")
			}
			defer receiver.Close()

			// The provider redirects wherever redirect_uri points, so
			// both the authorization URL and the exchange must use the
			// port the receiver actually bound, not the URI recorded
			// at setup time.
			app.RedirectURI = redirectURI

			authURL, verifier, state, err := engine.AuthorizationURL(app, "", true)
			if err != nil {
				return err
			}

			if noBrowser {
				_, _ = fmt.Fprintf(rt.Writer(), "Open this URL in your browser:\n\n  %s\n\n", authURL)
			} else {
				_, _ = fmt.Fprintln(rt.Writer(), "Opening your browser to authorize bbctl...")
				if err := rt.launchBrowser(authURL); err != nil {
					_, _ = fmt.Fprintf(rt.Writer(), "Could not open a browser. Open this URL manually:\n\n  %s\n\n", authURL)
				}
			}
			_, _ = fmt.Fprintln(rt.Writer(), "Waiting for authorization callback...")

			result, err := receiver.Wait(cmd.Context())
			if err != nil {
				return errs.NewAuth("Authorization was cancelled before completing", "")
			}
			if result.IsError() {
				message := "Authorization failed: " + result.Error
				if result.ErrorDescription != "" {
					message += " (" + result.ErrorDescription + ")"
				}
				return errs.NewAuth(message, "")
			}
			if result.State != state {
				return errs.NewAuth("State parameter mismatch in authorization callback",
					"The response may not come from the provider (possible CSRF). Try again")
			}

			token, err := engine.ExchangeCode(cmd.Context(), app, result.Code, verifier)
			if err != nil {
				return err
			}
			if !store.StoreToken(token) {
				return errs.NewConfig("Failed to store OAuth token",
					"Check that the secret storage location is writable")
			}

			api, err := rt.apiClient(nil)
			if err != nil {
				return err
			}
			user, err := api.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Authorized as %s. Token stored in %s.\n",
				displayName(user, "unknown"), store.Info())
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Local callback port (default from config)")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	cmd.Flags().BoolVar(&clientGrant, "client-credentials", false, "Use the client credentials grant instead of the browser flow")
	return cmd
}

func (rt *runtimeState) launchBrowser(url string) error {
	if rt.openBrowser != nil {
		return rt.openBrowser(url)
	}
	return auth.OpenBrowser(url)
}

func newOAuthRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the stored OAuth token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			store := rt.tokenStore()
			app, found, err := store.GetApp()
			if err != nil {
				return err
			}
			if !found {
				return errs.NewAuth("No OAuth consumer configured",
					"Run 'bbctl oauth setup' with your consumer key and secret first")
			}
			token, found, err := store.GetToken()
			if err != nil {
				return err
			}
			if !found || token.RefreshToken == "" {
				return errs.NewAuth("No refresh token available",
					"Run 'bbctl oauth login' to authorize again")
			}

			refreshed, err := rt.flowEngine().Refresh(cmd.Context(), app, token.RefreshToken)
			if err != nil {
				return err
			}
			if !store.StoreToken(refreshed) {
				return errs.NewConfig("Failed to store refreshed token", "")
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Token refreshed. Expires at %s.\n",
				refreshed.ExpiresAt().Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
}

func newOAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show OAuth authorization status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			store := rt.tokenStore()
			w := rt.Writer()

			if !store.HasApp() {
				_, _ = fmt.Fprintln(w, "No OAuth consumer configured")
				return nil
			}
			_, _ = fmt.Fprintf(w, "OAuth consumer configured (storage: %s)\n", store.Info())

			token, found, err := store.GetToken()
			if err != nil {
				return err
			}
			if !found {
				_, _ = fmt.Fprintln(w, "No token stored. Run 'bbctl oauth login' to authorize.")
				return nil
			}
			if token.IsExpired() {
				_, _ = fmt.Fprintln(w, "Stored token is expired. Run 'bbctl oauth refresh' or 'bbctl oauth login'.")
				return nil
			}
			if token.ExpiresIn != nil {
				_, _ = fmt.Fprintf(w, "Token valid until %s\n",
					token.ExpiresAt().Format("2006-01-02 15:04:05 MST"))
			} else {
				_, _ = fmt.Fprintln(w, "Token valid (no expiry)")
			}

			api, err := rt.apiClient(nil)
			if err != nil {
				return err
			}
			user, err := api.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(w, "Authorized as %s\n", displayName(user, "unknown"))
			return nil
		},
	}
}

func newOAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored OAuth consumer and token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			store := rt.tokenStore()
			if !store.HasAny() {
				_, _ = fmt.Fprintln(rt.Writer(), "No OAuth data stored")
				return nil
			}
			if !store.ClearAll() {
				return errs.NewConfig("Failed to remove OAuth data", "")
			}
			_, _ = fmt.Fprintln(rt.Writer(), "OAuth consumer and token removed")
			return nil
		},
	}
}
