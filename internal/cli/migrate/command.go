package migrate

import (
	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-service/internal/cli"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
)

// NewCommand returns the migrate command tree.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Apply, roll back and inspect the embedded database migrations.`,
	}
	cmd.AddCommand(newUpCommand(), newDownCommand(), newStatusCommand())
	return cmd
}

func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := cli.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()
			return persistence.RunMigrations(cmd.Context(), env.Postgres.PoolHandle(), env.Logger)
		},
	}
}

func newDownCommand() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := cli.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()
			return persistence.RollbackMigrations(cmd.Context(), env.Postgres.PoolHandle(), steps, env.Logger)
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := cli.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()
			return persistence.MigrationStatus(cmd.Context(), env.Postgres.PoolHandle())
		},
	}
}
