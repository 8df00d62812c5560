package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"grimm.is/originguard/internal/brand"
	"grimm.is/originguard/internal/metrics"
)

func newSyncCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch the edge list and converge the firewall to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSync(cmd.Context())
		},
	}
}

// runSync performs one reconciliation and prints the summary line.
func (a *app) runSync(ctx context.Context) error {
	pol, err := a.validate()
	if err != nil {
		return err
	}
	if err := requireRoot(a.flags.dryRun); err != nil {
		return err
	}
	if !a.flags.dryRun {
		release, err := acquireLock(ctx, brand.LockPath())
		if err != nil {
			return err
		}
		defer release()
	}

	reg := metrics.Get()
	rec, err := a.newReconciler(pol, reg)
	if err != nil {
		return err
	}
	res, err := rec.Run(ctx)
	a.writeTextfile(reg)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.Summary())
	return nil
}
