package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-service/internal/cli/migrate"
	"github.com/spec-kit/helpdesk-service/internal/cli/seed"
	"github.com/spec-kit/helpdesk-service/internal/cli/sweep"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "helpdeskctl",
		Short:        "Helpdesk operator tools",
		Long:         `Operator commands for the helpdesk service: schema migrations, initial data and one-off overdue sweeps.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		migrate.NewCommand(),
		seed.NewCommand(),
		sweep.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
