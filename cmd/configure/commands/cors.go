package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benvon/crm-tools/internal/database"
	"github.com/benvon/crm-tools/internal/models"
)

// NewCorsCmd creates the cors configuration command with list and set subcommands.
func NewCorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cors",
		Short: "Manage CORS configuration",
		Long:  "List or update CORS allowed origins and options (stored in database).",
	}
	cmd.AddCommand(newCorsListCmd())
	cmd.AddCommand(newCorsSetCmd())
	return cmd
}

func newCorsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current CORS configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			repo := database.NewCorsConfigRepository(db)
			c, err := repo.Get(cmd.Context())
			if err != nil {
				return fmt.Errorf("get cors config: %w", err)
			}
			out := cmd.OutOrStdout()
			if c == nil {
				fmt.Fprintln(out, "No CORS configuration in database; the server falls back to FRONTEND_URL. Use 'cors set' to add one.")
				return nil
			}
			fmt.Fprintln(out, "CORS configuration:")
			for _, origin := range database.AllowedOriginsSlice(c.AllowedOrigins) {
				fmt.Fprintf(out, "  Allowed origin: %s\n", origin)
			}
			fmt.Fprintf(out, "  Allow credentials: %v\n", c.AllowCredentials)
			fmt.Fprintf(out, "  Max-Age: %d\n", c.MaxAge)
			return nil
		},
	}
}

func newCorsSetCmd() *cobra.Command {
	var origins string
	var allowCreds bool
	var maxAge int
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set CORS configuration",
		Long:  "Update CORS allowed origins (comma-separated). Stored in database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			origins = strings.TrimSpace(origins)
			if origins == "" {
				return fmt.Errorf("--origins is required (comma-separated list)")
			}
			if _, err := database.ValidateCorsOrigins(origins); err != nil {
				return fmt.Errorf("--origins: %w", err)
			}
			if maxAge < 0 {
				return fmt.Errorf("--max-age must not be negative")
			}
			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			repo := database.NewCorsConfigRepository(db)
			c := &models.CorsConfig{
				AllowedOrigins:   origins,
				AllowCredentials: allowCreds,
				MaxAge:           maxAge,
			}
			if err := repo.Set(cmd.Context(), c); err != nil {
				return fmt.Errorf("set cors config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "CORS configuration updated. The server picks it up within a minute.")
			return nil
		},
	}
	cmd.Flags().StringVar(&origins, "origins", "", "Comma-separated allowed origins (required)")
	cmd.Flags().BoolVar(&allowCreds, "allow-credentials", false, "Allow credentials")
	cmd.Flags().IntVar(&maxAge, "max-age", 86400, "Access-Control-Max-Age (seconds)")
	return cmd
}
