package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"

	"github.com/benvon/crm-tools/internal/database"
	"github.com/benvon/crm-tools/internal/models"
)

// NewRatelimitCmd creates the ratelimit configuration command with list and set subcommands.
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage rate limit configuration",
		Long: "List or update rate limits (e.g. 5-S, 100-M). Stored in database per scope:\n" +
			"  transport  HTTP requests per client, hot-reloaded by the server\n" +
			"  tools      tool invocations per client, read at server start",
	}
	cmd.AddCommand(newRatelimitListCmd())
	cmd.AddCommand(newRatelimitSetCmd())
	return cmd
}

func newRatelimitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current rate limit configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			repo := database.NewRatelimitConfigRepository(db)
			configs, err := repo.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list ratelimit config: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(configs) == 0 {
				fmt.Fprintln(out, "No rate limit configuration in database. Use 'ratelimit set' to add one.")
				return nil
			}
			fmt.Fprintln(out, "Rate limit configuration:")
			for _, c := range configs {
				fmt.Fprintf(out, "  %-10s %s (updated %s)\n", c.ConfigKey, c.Rate, c.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

// validateRateFlags checks the scope and rate before anything touches the database.
func validateRateFlags(scope, rate string) (string, string, error) {
	scope = strings.TrimSpace(scope)
	if scope != models.RatelimitScopeTransport && scope != models.RatelimitScopeTools {
		return "", "", fmt.Errorf("--scope must be %q or %q", models.RatelimitScopeTransport, models.RatelimitScopeTools)
	}
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return "", "", fmt.Errorf("--rate is required (e.g. 5-S, 100-M)")
	}
	if _, err := limiter.NewRateFromFormatted(rate); err != nil {
		return "", "", fmt.Errorf("invalid --rate %q: %w", rate, err)
	}
	return scope, rate, nil
}

func newRatelimitSetCmd() *cobra.Command {
	var scope, rate string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set rate limit configuration",
		Long:  "Update a rate limit scope (e.g. --scope tools --rate 100-M). Stored in database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, rate, err := validateRateFlags(scope, rate)
			if err != nil {
				return err
			}
			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			repo := database.NewRatelimitConfigRepository(db)
			if err := repo.Set(cmd.Context(), &models.RatelimitConfig{ConfigKey: scope, Rate: rate}); err != nil {
				return fmt.Errorf("set ratelimit config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rate limit configuration for %s updated.\n", scope)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", models.RatelimitScopeTransport, "Scope: transport or tools")
	cmd.Flags().StringVar(&rate, "rate", "", "Rate (e.g. 5-S, 100-M, 1000-H) (required)")
	return cmd
}
