// Package reconcile converges the firewall allow-sets to the published edge
// addresses: fetch, bootstrap, diff, apply, persist.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"grimm.is/originguard/internal/clock"
	"grimm.is/originguard/internal/edge"
	"grimm.is/originguard/internal/firewall"
	"grimm.is/originguard/internal/logging"
	"grimm.is/originguard/internal/metrics"
	"grimm.is/originguard/internal/policy"
	"grimm.is/originguard/internal/snapshot"
	"grimm.is/originguard/internal/state"
)

// Baselines the desired set is diffed against.
const (
	BaselineFirewall = "firewall"
	BaselineSnapshot = "snapshot"
)

// Fetcher returns the current edge addresses.
type Fetcher interface {
	Fetch(ctx context.Context) (v4, v6 policy.AddressSet, err error)
}

// SnapshotStore persists the last applied address set.
type SnapshotStore interface {
	Load() (policy.AddressSet, error)
	Save(policy.AddressSet) error
}

// HistoryRecorder records finished runs.
type HistoryRecorder interface {
	Record(ctx context.Context, r state.Run) error
}

// Options configures a Reconciler. Policy, Backend and Source are required.
type Options struct {
	Policy   policy.Policy
	Backend  firewall.Backend
	Source   Fetcher
	Snapshot SnapshotStore
	Baseline string // firewall (default) or snapshot

	// DryRun renders transactions to Output instead of applying them.
	// The snapshot is not written.
	DryRun bool
	Output io.Writer

	Logger  *logging.Logger
	Metrics *metrics.Registry
	History HistoryRecorder
	Clock   clock.Clock
}

// Result summarises a successful run.
type Result struct {
	RunID       string
	Backend     string
	DryRun      bool
	Source      string
	StartedAt   time.Time
	Duration    time.Duration
	V4          int
	V6          int
	IPv6Blocked bool
	Added       int
	Removed     int
	Delta       policy.Delta
}

// Summary returns the one-line report printed after a run.
func (r *Result) Summary() string {
	v6 := fmt.Sprint(r.V6)
	if r.IPv6Blocked {
		v6 = "blocked"
	}
	return fmt.Sprintf("Applied: v4=%d; v6=%s", r.V4, v6)
}

// Reconciler runs reconciliations. A Reconciler holds no lock; callers
// serialise runs per host.
type Reconciler struct {
	pol      policy.Policy
	backend  firewall.Backend
	source   Fetcher
	snapshot SnapshotStore
	baseline string
	dryRun   bool
	out      io.Writer
	logger   *logging.Logger
	metrics  *metrics.Registry
	history  HistoryRecorder
	clock    clock.Clock
}

// New validates opts and creates a Reconciler.
func New(opts Options) (*Reconciler, error) {
	pol := opts.Policy.Normalize()
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if opts.Backend == nil {
		return nil, errors.New("backend is required")
	}
	if opts.Source == nil {
		return nil, errors.New("address source is required")
	}

	switch opts.Baseline {
	case "":
		opts.Baseline = BaselineFirewall
	case BaselineFirewall:
	case BaselineSnapshot:
		if opts.Snapshot == nil {
			return nil, errors.New("snapshot baseline requires a snapshot store")
		}
	default:
		return nil, fmt.Errorf("unknown baseline %q", opts.Baseline)
	}

	r := &Reconciler{
		pol:      pol,
		backend:  opts.Backend,
		source:   opts.Source,
		snapshot: opts.Snapshot,
		baseline: opts.Baseline,
		dryRun:   opts.DryRun,
		out:      opts.Output,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		history:  opts.History,
		clock:    opts.Clock,
	}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.logger == nil {
		r.logger = logging.WithComponent("reconcile")
	}
	r.clock = clock.Or(r.clock)
	return r, nil
}

// Policy returns the normalised policy.
func (r *Reconciler) Policy() policy.Policy {
	return r.pol
}

// Run performs one reconciliation. On failure the error is a *PhaseError
// and the snapshot is left untouched.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:       uuid.NewString(),
		Backend:     r.backend.Name(),
		DryRun:      r.dryRun,
		StartedAt:   r.clock.Now(),
		IPv6Blocked: !r.pol.AllowsIPv6(),
	}
	log := r.logger.WithRun(res.RunID, res.Backend)
	log.Info("Reconciliation started", "dry_run", r.dryRun)

	phase, err := r.run(ctx, log, res)
	res.Duration = r.clock.Since(res.StartedAt)
	r.finish(ctx, log, res, phase, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Reconciler) run(ctx context.Context, log *logging.Logger, res *Result) (Phase, error) {
	// FETCHING
	v4, v6, err := r.source.Fetch(ctx)
	if err != nil {
		r.recordFetchError(err)
		return PhaseFetching, &PhaseError{Phase: PhaseFetching, Err: err}
	}
	if u, ok := r.source.(interface{ LastURL() string }); ok {
		res.Source = u.LastURL()
	}
	log.Debug("Fetched edge list", "v4", v4.Len(), "v6", v6.Len())

	// BOOTSTRAPPING
	live, err := r.backend.Query(ctx, r.pol)
	if err != nil {
		return PhaseBootstrapping, &PhaseError{Phase: PhaseBootstrapping, Err: err}
	}
	boot, err := r.backend.PlanBootstrap(r.pol, live)
	if err != nil {
		return PhaseBootstrapping, &PhaseError{Phase: PhaseBootstrapping, Err: err}
	}
	if err := r.apply(ctx, log, boot); err != nil {
		return PhaseBootstrapping, &PhaseError{Phase: PhaseBootstrapping, Err: err}
	}

	// DIFFING
	desired := r.pol.Desired(v4, v6)
	delta := policy.Delta{
		Add:    policy.Diff(desired, live.Addresses()).Add,
		Remove: policy.Diff(desired, r.removalBaseline(log, live)).Remove,
	}
	res.Delta = delta
	res.Added, res.Removed = len(delta.Add), len(delta.Remove)
	res.V4 = desired.Family(policy.FamilyV4).Len()
	res.V6 = desired.Family(policy.FamilyV6).Len()
	log.Info("Computed allow-set changes", "add", res.Added, "remove", res.Removed, "baseline", r.baseline)

	// APPLYING: every addition lands before any removal.
	add := &firewall.Transaction{Backend: res.Backend, Kind: firewall.KindAdd}
	remove := &firewall.Transaction{Backend: res.Backend, Kind: firewall.KindRemove}
	for _, f := range policy.Families {
		d := delta.Family(f)
		if len(d.Add) > 0 {
			add.Merge(r.backend.PlanAdd(r.pol, live, f, d.Add))
		}
		if len(d.Remove) > 0 {
			remove.Merge(r.backend.PlanRemove(r.pol, live, f, d.Remove))
		}
	}
	if err := r.apply(ctx, log, add); err != nil {
		return PhaseApplying, &PhaseError{Phase: PhaseApplying, Err: err}
	}
	if err := r.apply(ctx, log, remove); err != nil {
		return PhaseApplying, &PhaseError{Phase: PhaseApplying, Err: err}
	}

	// PERSISTING
	if !r.dryRun && r.snapshot != nil {
		if err := r.snapshot.Save(desired); err != nil {
			var pe *snapshot.PersistenceError
			if !errors.As(err, &pe) {
				pe = &snapshot.PersistenceError{Op: "write", Err: err}
			}
			log.Warn("Failed to persist snapshot", "error", pe)
		}
	}

	if r.metrics != nil && !r.dryRun {
		for _, f := range policy.Families {
			d := delta.Family(f)
			r.metrics.RecordAllowSet(f.String(), desired.Family(f).Len(), len(d.Add), len(d.Remove))
		}
	}
	return PhaseDone, nil
}

// removalBaseline returns the set whose surplus over the desired set is
// removed. Additions always come from the live state; the snapshot baseline
// only widens removals to addresses applied by an earlier run.
func (r *Reconciler) removalBaseline(log *logging.Logger, live firewall.State) policy.AddressSet {
	if r.baseline != BaselineSnapshot {
		return live.Addresses()
	}
	set, err := r.snapshot.Load()
	if err != nil {
		log.Warn("Failed to load snapshot, diffing against live state", "error", err)
		return live.Addresses()
	}
	return live.Addresses().Union(set)
}

func (r *Reconciler) apply(ctx context.Context, log *logging.Logger, tx *firewall.Transaction) error {
	if tx.Empty() {
		return nil
	}
	if r.dryRun {
		fmt.Fprintf(r.out, "\n# --- %s %s (dry-run) ---\n%s", tx.Backend, tx.Kind, tx.Render())
		return nil
	}
	// A started transaction runs to completion even if the run is cancelled.
	err := r.backend.Apply(context.WithoutCancel(ctx), tx)
	if r.metrics != nil {
		r.metrics.RecordTransaction(tx.Kind, err)
	}
	if err == nil {
		log.Audit(tx.Kind, r.pol.Table, "steps", len(tx.Steps))
	}
	return err
}

func (r *Reconciler) recordFetchError(err error) {
	if r.metrics == nil {
		return
	}
	kind := "parse"
	var te *edge.TransportError
	switch {
	case errors.As(err, &te):
		kind = "transport"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = "timeout"
	}
	r.metrics.RecordFetchError(kind)
}

func (r *Reconciler) finish(ctx context.Context, log *logging.Logger, res *Result, phase Phase, err error) {
	if err != nil {
		log.Error("Reconciliation failed", "phase", phase, "error", err, "duration", res.Duration)
	} else {
		log.Info("Reconciliation finished", "v4", res.V4, "v6", res.V6,
			"added", res.Added, "removed", res.Removed, "duration", res.Duration)
	}

	if r.metrics != nil && !r.dryRun {
		failed := ""
		if err != nil {
			failed = string(phase)
		}
		r.metrics.RecordRun(failed, res.Duration, res.StartedAt)
	}

	if r.history == nil {
		return
	}
	run := state.Run{
		ID:        res.RunID,
		StartedAt: res.StartedAt,
		Duration:  res.Duration,
		Backend:   res.Backend,
		DryRun:    res.DryRun,
		Success:   err == nil,
		Phase:     string(phase),
		Source:    res.Source,
		V4:        res.V4,
		V6:        res.V6,
		Added:     res.Added,
		Removed:   res.Removed,
	}
	if err != nil {
		run.Error = err.Error()
	}
	// Record even when the run was cancelled.
	if herr := r.history.Record(context.WithoutCancel(ctx), run); herr != nil {
		log.Warn("Failed to record run history", "error", herr)
	}
}
