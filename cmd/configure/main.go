package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/benvon/crm-tools/cmd/configure/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:           "crm-tools-configure",
		Short:         "Configuration tool for the CRM tools API",
		Long:          "CLI tool for rate limits, CORS, and running CRM tools from the shell",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRatelimitCmd())
	rootCmd.AddCommand(commands.NewCorsCmd())
	rootCmd.AddCommand(commands.NewTablesCmd())
	rootCmd.AddCommand(commands.NewToolsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
