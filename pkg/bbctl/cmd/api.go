package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgecli/bbctl/pkg/bbctl/errs"
)

var apiMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

// NewAPICommand exposes raw authenticated requests. Higher-level
// commands are built on the same client; this is the escape hatch.
func NewAPICommand() *cobra.Command {
	var (
		data       string
		queryPairs []string
	)

	cmd := &cobra.Command{
		Use:   "api METHOD PATH",
		Short: "Execute an authenticated API request",
		Example: `  bbctl api GET /repositories/myworkspace
  bbctl api POST /repositories/myworkspace/myrepo/issues --data '{"title":"bug"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}

			method := strings.ToUpper(args[0])
			if !apiMethods[method] {
				return errs.NewValidation(fmt.Sprintf("Unsupported method %q", args[0]),
					"Use one of GET, POST, PUT, PATCH, DELETE")
			}

			var body any
			if data != "" {
				var raw json.RawMessage
				if err := json.Unmarshal([]byte(data), &raw); err != nil {
					return errs.NewValidation("Request body is not valid JSON", "")
				}
				body = raw
			}

			query := url.Values{}
			for _, pair := range queryPairs {
				key, value, ok := strings.Cut(pair, "=")
				if !ok {
					return errs.NewValidation(fmt.Sprintf("Query parameter %q is not key=value", pair), "")
				}
				query.Add(key, value)
			}

			api, err := rt.apiClient(nil)
			if err != nil {
				return err
			}
			raw, _, err := api.DoRaw(cmd.Context(), method, args[1], query, body)
			if err != nil {
				return err
			}
			if len(raw) == 0 {
				return nil
			}

			var pretty bytes.Buffer
			if json.Indent(&pretty, raw, "", "  ") == nil {
				_, _ = fmt.Fprintln(rt.Writer(), pretty.String())
			} else {
				_, _ = fmt.Fprintln(rt.Writer(), string(raw))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVarP(&queryPairs, "query", "q", nil, "Query parameter key=value (repeatable)")
	return cmd
}
