package seed

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/cli"
)

// NewCommand returns the seed command.
func NewCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create departments and accounts from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			file, err := Load(path)
			if err != nil {
				return err
			}
			env, err := cli.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := Apply(cmd.Context(), env.Postgres.PoolHandle(), file, env.Config.Auth.BcryptCost)
			if err != nil {
				return err
			}
			env.Logger.Info("seed applied",
				zap.Int("departments_created", res.Departments),
				zap.Int("users_created", res.Users))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "seed.yaml", "Seed file path")
	return cmd
}
