// Package cli implements sqlrunctl, the command-line client for the
// sqlrunner API.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/sqlrunner/internal/client"
)

const defaultHost = "http://localhost:8080"

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]any{"error": err.Error()}
			var apiErr *client.APIError
			if errors.As(err, &apiErr) {
				errObj["http_status"] = apiErr.StatusCode
				errObj["code"] = apiErr.Code
			}
			_ = printJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// app carries the resolved global flags to subcommands.
type app struct {
	host    string
	output  string
	timeout time.Duration
	client  *client.HTTPClient
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "sqlrunctl",
		Short:         "Submit and inspect SQL batch jobs",
		Long:          "Command-line client for the sqlrunner API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Precedence: flag > env > default.
			if !cmd.Flags().Changed("host") {
				if v := os.Getenv("SQLRUNNER_HOST"); v != "" {
					a.host = v
				}
			}
			if a.output != "table" && a.output != "json" {
				return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", a.output)
			}
			a.client = client.NewHTTPClient(a.host, a.timeout)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.host, "host", defaultHost, "sqlrunner API URL (env SQLRUNNER_HOST)")
	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().DurationVar(&a.timeout, "timeout", 0, "HTTP request timeout (0 = none)")

	rootCmd.AddCommand(newSubmitCmd(a))
	rootCmd.AddCommand(newJobCmd(a))
	rootCmd.AddCommand(newRunningCmd(a))
	rootCmd.AddCommand(newStatusCmd(a))
	rootCmd.AddCommand(newClearCmd(a))
	rootCmd.AddCommand(newHealthCmd(a))

	return rootCmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
