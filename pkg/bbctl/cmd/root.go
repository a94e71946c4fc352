package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/forgecli/bbctl/pkg/bbctl/auth"
	"github.com/forgecli/bbctl/pkg/bbctl/client"
	"github.com/forgecli/bbctl/pkg/bbctl/config"
	"github.com/forgecli/bbctl/pkg/bbctl/secrets"
)

// Config carries the injectable pieces of the command tree. Zero
// values select the production defaults.
type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
	Input        io.Reader

	// Backend overrides secret storage selection, Passphrase the
	// master-password prompt, OpenBrowser the browser launcher and
	// HTTPClient the transport. All are test seams.
	Backend     secrets.Backend
	Passphrase  secrets.PassphraseFunc
	OpenBrowser func(url string) error
	HTTPClient  *http.Client
}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
		Input:        os.Stdin,
	}
}

type runtimeState struct {
	configPath    string
	cfg           *config.Config
	tokenOverride string
	verbose       bool
	writer        io.Writer
	input         io.Reader

	backendOnce sync.Once
	backend     secrets.Backend
	passphrase  secrets.PassphraseFunc
	openBrowser func(url string) error
	httpClient  *http.Client

	api *client.Client
}

type runtimeKey struct{}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath:  cfg.ConfigPath,
		writer:      cfg.OutputWriter,
		input:       cfg.Input,
		backend:     cfg.Backend,
		passphrase:  cfg.Passphrase,
		openBrowser: cfg.OpenBrowser,
		httpClient:  cfg.HTTPClient,
	}

	root := &cobra.Command{
		Use:           "bbctl",
		Short:         "Bitbucket Cloud CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.input == nil {
				rt.input = os.Stdin
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}
			if !rt.verbose {
				rt.verbose = strings.EqualFold(os.Getenv("BBCTL_VERBOSE"), "true")
			}
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			loaded, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			rt.cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVar(&rt.tokenOverride, "token", "", "OAuth access token override")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Enable verbose output with correlation IDs")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewAuthCommand(),
		NewOAuthCommand(),
		NewAPICommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) Writer() io.Writer {
	return rt.writer
}

// secretBackend selects storage once per process: the system keyring
// when the probe succeeds, an encrypted file store otherwise.
func (rt *runtimeState) secretBackend() secrets.Backend {
	rt.backendOnce.Do(func() {
		if rt.backend != nil {
			return
		}
		passphrase := rt.passphrase
		if passphrase == nil {
			passphrase = secrets.TerminalPassphrase(os.Stderr)
		}
		rt.backend = secrets.Select(config.DefaultConfigDir(), passphrase, os.Stderr)
	})
	return rt.backend
}

func (rt *runtimeState) vault() *auth.Vault {
	return &auth.Vault{Backend: rt.secretBackend()}
}

func (rt *runtimeState) tokenStore() *auth.Store {
	return &auth.Store{Backend: rt.secretBackend()}
}

func (rt *runtimeState) flowEngine() *auth.Engine {
	return &auth.Engine{
		AuthorizeURL: rt.cfg.OAuth.AuthorizeURL,
		TokenURL:     rt.cfg.OAuth.TokenURL,
		HTTPClient:   rt.httpClient,
	}
}

func (rt *runtimeState) envNames() client.EnvNames {
	return client.EnvNames{
		Username: rt.cfg.Env.Username,
		Password: rt.cfg.Env.Password,
		Token:    rt.cfg.Env.Token,
	}
}

func (rt *runtimeState) credentialResolver() *client.Resolver {
	return &client.Resolver{
		OAuthToken:  rt.tokenOverride,
		PreferOAuth: true,
		Env:         rt.envNames(),
		Vault:       rt.vault(),
		Tokens:      rt.tokenStore(),
	}
}

// apiClient returns the API client. With a nil resolver the client is
// built once, reused across commands, and registered as the
// process-wide default for library consumers. A non-nil resolver
// requests a throwaway client for probing unstored credentials.
func (rt *runtimeState) apiClient(resolver *client.Resolver) (*client.Client, error) {
	if resolver == nil {
		if rt.api != nil {
			return rt.api, nil
		}
		api, err := rt.buildClient(rt.credentialResolver())
		if err != nil {
			return nil, err
		}
		rt.api = api
		client.SetDefault(api)
		return api, nil
	}
	return rt.buildClient(resolver)
}

func (rt *runtimeState) buildClient(resolver *client.Resolver) (*client.Client, error) {
	opts := []client.Option{
		client.WithBaseURL(rt.cfg.API.BaseURL),
		client.WithTimeout(rt.cfg.RequestTimeout()),
		client.WithMaxRetries(rt.cfg.API.MaxRetries),
		client.WithResolver(resolver),
	}
	if rt.verbose {
		opts = append(opts, client.WithVerbose(func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "DEBUG "+format+"\n", args...)
		}))
	}
	if rt.httpClient != nil {
		opts = append(opts, client.WithHTTPClient(rt.httpClient))
	}
	return client.New(opts...)
}
