package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"grimm.is/originguard/internal/config"
	"grimm.is/originguard/internal/edge"
	"grimm.is/originguard/internal/firewall"
	"grimm.is/originguard/internal/logging"
	"grimm.is/originguard/internal/metrics"
	"grimm.is/originguard/internal/policy"
	"grimm.is/originguard/internal/reconcile"
	"grimm.is/originguard/internal/snapshot"
	"grimm.is/originguard/internal/state"
)

// skipSetup marks commands that run without loading the configuration.
const skipSetup = "originguard/skip-setup"

type globalFlags struct {
	configFile string
	logLevel   string
	logJSON    bool
	table      string
	chain      string
	ports      string
	ipv6       string
	hooks      []string
	listFile   string
	backend    string
	query      string
	baseline   string
	dryRun     bool
}

// app carries what every command needs: the merged configuration, the
// logger and the output streams.
type app struct {
	flags  globalFlags
	out    io.Writer
	errOut io.Writer

	cfg     *config.Config
	logger  *logging.Logger
	closers []io.Closer
}

// setup loads the configuration, applies flag overrides and builds the
// logger. It does not validate; commands call validate when they need a
// usable configuration.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.configFile)
	if err != nil {
		return err
	}
	if err := a.applyFlags(cmd, cfg); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := a.buildLogger()
	if err != nil {
		return err
	}
	a.logger = logger
	logging.SetDefault(logger)
	return nil
}

// applyFlags overrides file values with the flags given on the command line.
func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	changed := cmd.Flags().Changed
	set := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = v
		}
	}
	set("table", &cfg.Table, a.flags.table)
	set("chain", &cfg.Chain, a.flags.chain)
	set("ipv6", &cfg.IPv6, a.flags.ipv6)
	set("list-file", &cfg.ListFile, a.flags.listFile)
	set("backend", &cfg.Backend, a.flags.backend)
	set("query", &cfg.Query, a.flags.query)
	set("baseline", &cfg.Baseline, a.flags.baseline)
	set("log-level", &cfg.Log.Level, a.flags.logLevel)
	if changed("log-json") {
		cfg.Log.JSON = a.flags.logJSON
	}
	if changed("hooks") {
		cfg.Hooks = a.flags.hooks
	}
	if changed("ports") {
		ports, err := policy.ParsePorts(a.flags.ports)
		if err != nil {
			return fmt.Errorf("--ports: %w", err)
		}
		cfg.Ports = cfg.Ports[:0]
		for _, p := range ports {
			cfg.Ports = append(cfg.Ports, int(p))
		}
	}
	return nil
}

func (a *app) buildLogger() (*logging.Logger, error) {
	level, err := logging.ParseLevel(a.cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	out := a.errOut
	if a.cfg.Log.Syslog {
		w, err := logging.NewSyslogWriter(logging.SyslogConfig{Enabled: true, Host: a.cfg.Log.SyslogHost})
		if err != nil {
			return nil, fmt.Errorf("syslog: %w", err)
		}
		a.closers = append(a.closers, w)
		out = io.MultiWriter(a.errOut, w)
	}
	return logging.New(logging.Config{Level: level, Output: out, JSON: a.cfg.Log.JSON}), nil
}

// validate reports every configuration problem as one error.
func (a *app) validate() (policy.Policy, error) {
	if errs := a.cfg.Validate(); errs.HasErrors() {
		return policy.Policy{}, fmt.Errorf("invalid configuration: %w", errs)
	}
	return a.cfg.Policy()
}

func (a *app) close() {
	for _, c := range a.closers {
		c.Close()
	}
	a.closers = nil
}

func (a *app) newSource() *edge.Source {
	return edge.NewSource(
		edge.Config{URLs: a.cfg.Source.URLs, Timeout: a.cfg.SourceTimeout()},
		edge.WithLogger(a.logger.WithComponent("edge")),
	)
}

func (a *app) newBackend() (firewall.Backend, error) {
	return firewall.New(firewall.Options{
		Kind:     a.cfg.Backend,
		Query:    a.cfg.Query,
		Binaries: a.cfg.FirewallBinaries(),
		Logger:   a.logger.WithComponent("firewall"),
	})
}

// openHistory opens the run history. Failure only disables recording.
func (a *app) openHistory() *state.History {
	if !a.cfg.HistoryEnabled() {
		return nil
	}
	opts := state.DefaultOptions(a.cfg.History.Path)
	opts.Keep = a.cfg.History.Keep
	h, err := state.Open(opts)
	if err != nil {
		a.logger.Warn("Run history disabled", "path", a.cfg.History.Path, "error", err)
		return nil
	}
	a.closers = append(a.closers, h)
	return h
}

// newReconciler wires the reconciler from the configuration.
func (a *app) newReconciler(pol policy.Policy, reg *metrics.Registry) (*reconcile.Reconciler, error) {
	backend, err := a.newBackend()
	if err != nil {
		return nil, err
	}
	opts := reconcile.Options{
		Policy:   pol,
		Backend:  backend,
		Source:   a.newSource(),
		Snapshot: snapshot.NewStore(a.cfg.ListFile),
		Baseline: a.cfg.Baseline,
		DryRun:   a.flags.dryRun,
		Output:   a.out,
		Logger:   a.logger.WithComponent("reconcile"),
		Metrics:  reg,
	}
	if h := a.openHistory(); h != nil {
		opts.History = h
	}
	return reconcile.New(opts)
}

// writeTextfile exports metrics for node_exporter when configured.
func (a *app) writeTextfile(reg *metrics.Registry) {
	path := a.cfg.Metrics.Textfile
	if path == "" || a.flags.dryRun {
		return
	}
	if err := reg.WriteTextfile(path); err != nil {
		a.logger.Warn("Failed to write metrics textfile", "path", path, "error", err)
	}
}

// requireRoot refuses to touch the firewall without root privileges.
func requireRoot(dryRun bool) error {
	if dryRun || geteuid() == 0 {
		return nil
	}
	return fmt.Errorf("run as root (needed for the firewall), or use --dry-run")
}

var geteuid = os.Geteuid
