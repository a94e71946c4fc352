package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgecli/bbctl/pkg/bbctl/auth"
	"github.com/forgecli/bbctl/pkg/bbctl/client"
	"github.com/forgecli/bbctl/pkg/bbctl/errs"
	"github.com/forgecli/bbctl/pkg/bbctl/secrets"
)

func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage app password authentication",
	}
	cmd.AddCommand(
		newAuthLoginCommand(),
		newAuthStatusCommand(),
		newAuthLogoutCommand(),
	)
	return cmd
}

func newAuthLoginCommand() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store username and app password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}

			if username == "" {
				_, _ = fmt.Fprint(rt.Writer(), "Username: ")
				line, err := bufio.NewReader(rt.input).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read username: %w", err)
				}
				username = strings.TrimSpace(line)
			}
			if username == "" {
				return errs.NewValidation("Username must not be empty", "")
			}

			password, err := rt.readAppPassword()
			if err != nil {
				return err
			}
			if len(password) == 0 {
				return errs.NewValidation("App password must not be empty", "")
			}

			// Probe before storing so bad credentials never land in
			// the secret store.
			api, err := rt.apiClient(&client.Resolver{
				Username: username,
				Password: string(password),
				Env:      rt.envNames(),
			})
			if err != nil {
				return err
			}
			user, err := api.CurrentUser(cmd.Context())
			if err != nil {
				var authErr *errs.AuthError
				if errors.As(err, &authErr) {
					return &errs.AuthError{
						Message:    "Authentication failed with provided credentials.",
						Suggestion: "Check your username and app password",
						Err:        err,
					}
				}
				return err
			}

			if !rt.vault().Store(auth.Credentials{Username: username, AppPassword: string(password)}) {
				return errs.NewConfig("Failed to store credentials",
					"Check that the secret storage location is writable")
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Logged in as %s. Credentials stored in %s.\n",
				displayName(user, username), rt.secretBackend().Description())
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted when omitted)")
	return cmd
}

func (rt *runtimeState) readAppPassword() ([]byte, error) {
	if rt.passphrase != nil {
		return rt.passphrase(false)
	}
	return secrets.ReadSecret(rt.Writer(), "App password: ")
}

func newAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}

			resolver := rt.credentialResolver()
			cred, err := resolver.Resolve()
			if err != nil {
				return err
			}
			if cred.Kind == client.KindNone {
				_, _ = fmt.Fprintln(rt.Writer(), "Not authenticated")
				return nil
			}

			api, err := rt.apiClient(resolver)
			if err != nil {
				return err
			}
			user, err := api.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Authenticated as %s using %s (storage: %s)\n",
				displayName(user, "unknown"), describeCredential(cred), rt.tokenStore().Info())
			return nil
		},
	}
}

func newAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored app password credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			vault := rt.vault()
			if !vault.Has() {
				_, _ = fmt.Fprintln(rt.Writer(), "No stored credentials")
				return nil
			}
			if !vault.Delete() {
				return errs.NewConfig("Failed to remove stored credentials", "")
			}
			_, _ = fmt.Fprintln(rt.Writer(), "Logged out")
			return nil
		},
	}
}

func displayName(user map[string]any, fallback string) string {
	for _, field := range []string{"username", "display_name", "nickname"} {
		if name, ok := user[field].(string); ok && name != "" {
			return name
		}
	}
	return fallback
}

func describeCredential(cred client.Credential) string {
	kind := "app password"
	if cred.Kind == client.KindBearer {
		kind = "OAuth token"
	}
	switch cred.Source {
	case client.SourceExplicit:
		return kind + " from command line"
	case client.SourceEnvironment:
		return kind + " from environment"
	case client.SourceStored:
		return "stored " + kind
	}
	return kind
}
