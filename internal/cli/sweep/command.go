package sweep

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-service/internal/cli"
	"github.com/spec-kit/helpdesk-service/internal/mail"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

// NewCommand returns the sweep command, which runs one overdue sweep and exits.
func NewCommand() *cobra.Command {
	var noLock bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a single overdue sweep",
		Long: `Notify every active user about overdue tickets, once.
The sweep takes the same Redis lock as the API process unless --no-lock is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			env, err := cli.Open(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			pool := env.Postgres.PoolHandle()
			history := service.NewHistoryRecorder(repository.NewTicketHistoryRepository(pool), env.Logger)
			notifier := service.NewNotificationService(service.NotificationDependencies{
				Renderer:  mail.NewRenderer(env.Config.App.FrontendURL),
				Sender:    mail.NewSender(env.Config.SMTP, env.Logger),
				EmailLogs: repository.NewEmailLogRepository(pool),
				History:   history,
				Logger:    env.Logger,
			})
			overdue := service.NewOverdueService(service.OverdueDependencies{
				TicketRepo: repository.NewTicketRepository(pool),
				UserRepo:   repository.NewUserRepository(pool),
				Notifier:   notifier,
				Config:     env.Config.Sweep,
				Logger:     env.Logger,
			})

			run := &recordingSweeper{Sweeper: overdue}

			var locker worker.Locker
			if !noLock {
				redis := persistence.NewRedis(env.Config.Redis, env.Logger)
				defer redis.Close()
				locker = redis
			}
			w := worker.NewOverdueSweeper(run, locker, env.Config.Sweep.Interval(), env.Config.Sweep.LockTTL(), env.Logger)
			if !w.RunOnce(ctx) {
				return fmt.Errorf("another sweep holds %s", worker.SweepLockKey)
			}
			if run.err != nil {
				return run.err
			}

			report := run.report
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "candidates: %d\n", report.Candidates)
			fmt.Fprintf(out, "dispatched: %d\n", report.Dispatched)
			fmt.Fprintf(out, "skipped:    %d\n", report.Skipped)
			fmt.Fprintf(out, "failed:     %d\n", report.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noLock, "no-lock", false, "Skip the distributed sweep lock")
	return cmd
}

// recordingSweeper keeps the outcome of the sweep it delegates to.
type recordingSweeper struct {
	worker.Sweeper
	report service.SweepReport
	err    error
}

func (s *recordingSweeper) RunOverdueSweep(ctx context.Context) (service.SweepReport, error) {
	s.report, s.err = s.Sweeper.RunOverdueSweep(ctx)
	return s.report, s.err
}
