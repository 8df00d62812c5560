package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"grimm.is/originguard/internal/brand"
	"grimm.is/originguard/internal/health"
	"grimm.is/originguard/internal/i18n"
	"grimm.is/originguard/internal/metrics"
	"grimm.is/originguard/internal/scheduler"
)

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Reconcile repeatedly on the configured interval or cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatch(cmd.Context())
		},
	}
}

func (a *app) runWatch(ctx context.Context) error {
	pol, err := a.validate()
	if err != nil {
		return err
	}
	if err := requireRoot(a.flags.dryRun); err != nil {
		return err
	}
	schedule, err := a.cfg.Schedule()
	if err != nil {
		return err
	}

	reg := metrics.Get()
	reg.RegisterRuntimeCollectors()
	rec, err := a.newReconciler(pol, reg)
	if err != nil {
		return err
	}

	loop, err := scheduler.NewLoop("sync", schedule, func(ctx context.Context) error {
		if !a.flags.dryRun {
			release, err := acquireLock(ctx, brand.LockPath())
			if err != nil {
				return err
			}
			defer release()
		}
		res, err := rec.Run(ctx)
		a.writeTextfile(reg)
		if err != nil {
			return err
		}
		a.logger.Info(res.Summary(), "run_id", res.RunID)
		return nil
	},
		scheduler.WithTimeout(a.cfg.WatchTimeout()),
		scheduler.WithLogger(a.logger.WithComponent("scheduler")),
	)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if addr := a.cfg.Metrics.Listen; addr != "" {
		backend, err := a.newBackend()
		if err != nil {
			return err
		}
		checker := health.NewChecker(nil)
		checker.Register("sync", health.LoopCheck(loop.Status, 2*schedulePeriod(schedule, time.Now()), 3, nil))
		checker.Register("firewall", health.FirewallCheck(backend, pol))
		srv := newMetricsServer(addr, reg, checker)

		g.Go(func() error {
			a.logger.Info("Serving metrics", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server on %s: %w", addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	Printer.Fprintf(a.errOut, i18n.MsgWatching, schedule.Next(time.Now()).Format(time.RFC3339))
	g.Go(func() error {
		if err := loop.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}

func newMetricsServer(addr string, reg *metrics.Registry, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	mux.Handle("/healthz", checker.Handler())
	mux.Handle("/livez", health.LivenessHandler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// schedulePeriod is the gap between the next two firings.
func schedulePeriod(s scheduler.Schedule, now time.Time) time.Duration {
	next := s.Next(now)
	return s.Next(next).Sub(next)
}
