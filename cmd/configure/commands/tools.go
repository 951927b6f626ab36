package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/benvon/crm-tools/internal/gateway"
	"github.com/benvon/crm-tools/internal/logger"
	"github.com/benvon/crm-tools/internal/security"
	"github.com/benvon/crm-tools/internal/tools"
)

// NewToolsCmd creates the tools command with list and call subcommands.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and invoke CRM tools",
	}
	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsCallCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Long:  "List registered tools. --format table prints names; json and yaml include input schemas.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeCatalogue(cmd.OutOrStdout(), tools.Default().List(), format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, json, or yaml")
	return cmd
}

func writeCatalogue(out io.Writer, list []*tools.Tool, format string) error {
	switch strings.ToLower(format) {
	case "table":
		for _, t := range list {
			fmt.Fprintf(out, "%-24s %s\n", t.Name, t.Description)
		}
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(list); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown --format %q (want table, json, or yaml)", format)
	}
}

// parseCallArgs checks that --args is a JSON object so typos fail before connecting.
func parseCallArgs(raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	return json.RawMessage(raw), nil
}

func newToolsCallCmd() *cobra.Command {
	var rawArgs, client string
	var debug bool
	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke a tool against the configured database",
		Long: "Invoke a tool through the same gateway the server uses (validation, rate limit,\n" +
			"masking). Example: tools call list_invoices --args '{\"status\":\"overdue\"}'",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := tools.Default().Get(args[0]); !ok {
				return fmt.Errorf("unknown tool %q; see 'tools list'", args[0])
			}
			callArgs, err := parseCallArgs(rawArgs)
			if err != nil {
				return err
			}
			if _, err := security.ValidateIdentifier("client", client); err != nil {
				return err
			}

			cfg, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			log := zap.NewNop()
			if debug {
				if log, err = logger.NewDevelopmentLogger(true); err != nil {
					return fmt.Errorf("init logger: %w", err)
				}
				defer func() { _ = logger.Sync(log) }()
			}

			gw, err := gateway.New(tools.Default(), security.NewRateLimiter(security.RateLimitConfig{}), db, log,
				gateway.WithTimeout(cfg.ToolTimeout),
				gateway.WithMaxRows(cfg.MaxQueryRows),
			)
			if err != nil {
				return err
			}

			result, err := gw.Invoke(cmd.Context(), client, args[0], callArgs)
			if err != nil {
				result = tools.ErrorResult(gateway.PublicMessage(err))
			}
			for _, c := range result.Content {
				fmt.Fprintln(cmd.OutOrStdout(), c.Text)
			}
			if result.IsError {
				return fmt.Errorf("tool %s failed (status %d)", args[0], gateway.StatusCode(err))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rawArgs, "args", "{}", "Tool arguments as a JSON object")
	cmd.Flags().StringVar(&client, "client", "cli", "Client key used for rate limiting and logs")
	cmd.Flags().BoolVar(&debug, "debug", false, "Log gateway events to stderr")
	return cmd
}
