package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/iliyamo/paycore/internal/service"
)

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation sweep and print its report",
		Long: `Run one reconciliation sweep.

PENDING payments old enough to be stuck are checked against their provider
and marked SUCCESS or FAILED; SUCCESS payments that never settled are
settled. The sweep takes the same Redis lock the server uses, so it is
skipped while a server instance is sweeping.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.close()
			return runSweep(cmd.Context(), a.reconciler, cmd.OutOrStdout())
		},
	}
}

// sweeper is the part of *service.Reconciler the command needs.
type sweeper interface {
	Sweep(ctx context.Context) (service.SweepReport, error)
}

func runSweep(ctx context.Context, s sweeper, out io.Writer) error {
	rep, err := s.Sweep(ctx)
	if err != nil {
		return err
	}
	if rep.Skipped {
		_, err = fmt.Fprintln(out, "sweep skipped: another instance holds the lock")
		return err
	}
	_, err = fmt.Fprintf(out, "checked=%d marked_success=%d marked_failed=%d expired=%d settled=%d errors=%d tokens_purged=%d\n",
		rep.Checked, rep.MarkedSuccess, rep.MarkedFailed, rep.Expired, rep.Settled, rep.Errors, rep.TokensPurged)
	if err == nil && rep.Errors > 0 {
		err = fmt.Errorf("sweep finished with %d errors", rep.Errors)
	}
	return err
}
