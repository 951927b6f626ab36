package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benvon/crm-tools/internal/security"
)

// NewTablesCmd prints the tables the tool layer may read.
func NewTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List tables allowed for tool queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range security.AllowedTables() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
