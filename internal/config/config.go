package config

import (
	"path/filepath"
	"time"

	"grimm.is/originguard/internal/brand"
	"grimm.is/originguard/internal/edge"
	"grimm.is/originguard/internal/firewall"
	"grimm.is/originguard/internal/policy"
	"grimm.is/originguard/internal/reconcile"
	"grimm.is/originguard/internal/state"
)

// Config is the top-level configuration.
type Config struct {
	Table string   `hcl:"table,optional" json:"table,omitempty" yaml:"table,omitempty"`
	Chain string   `hcl:"chain,optional" json:"chain,omitempty" yaml:"chain,omitempty"`
	SetV4 string   `hcl:"set_v4,optional" json:"set_v4,omitempty" yaml:"set_v4,omitempty"`
	SetV6 string   `hcl:"set_v6,optional" json:"set_v6,omitempty" yaml:"set_v6,omitempty"`
	Ports []int    `hcl:"ports,optional" json:"ports,omitempty" yaml:"ports,omitempty"`
	IPv6  string   `hcl:"ipv6,optional" json:"ipv6,omitempty" yaml:"ipv6,omitempty"`
	Hooks []string `hcl:"hooks,optional" json:"hooks,omitempty" yaml:"hooks,omitempty"`

	Backend  string `hcl:"backend,optional" json:"backend,omitempty" yaml:"backend,omitempty"`    // nft | iptables
	Query    string `hcl:"query,optional" json:"query,omitempty" yaml:"query,omitempty"`          // cli | netlink
	Baseline string `hcl:"baseline,optional" json:"baseline,omitempty" yaml:"baseline,omitempty"` // firewall | snapshot
	ListFile string `hcl:"list_file,optional" json:"list_file,omitempty" yaml:"list_file,omitempty"`

	Source   *SourceConfig   `hcl:"source,block" json:"source,omitempty" yaml:"source,omitempty"`
	Binaries *BinariesConfig `hcl:"binaries,block" json:"binaries,omitempty" yaml:"binaries,omitempty"`
	Log      *LogConfig      `hcl:"log,block" json:"log,omitempty" yaml:"log,omitempty"`
	Metrics  *MetricsConfig  `hcl:"metrics,block" json:"metrics,omitempty" yaml:"metrics,omitempty"`
	History  *HistoryConfig  `hcl:"history,block" json:"history,omitempty" yaml:"history,omitempty"`
	Watch    *WatchConfig    `hcl:"watch,block" json:"watch,omitempty" yaml:"watch,omitempty"`
}

// SourceConfig configures the edge list download.
type SourceConfig struct {
	URLs    []string `hcl:"urls,optional" json:"urls,omitempty" yaml:"urls,omitempty"`
	Timeout string   `hcl:"timeout,optional" json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// BinariesConfig overrides the paths of the packet-filter tools.
type BinariesConfig struct {
	Nft              string `hcl:"nft,optional" json:"nft,omitempty" yaml:"nft,omitempty"`
	Iptables         string `hcl:"iptables,optional" json:"iptables,omitempty" yaml:"iptables,omitempty"`
	Ip6tables        string `hcl:"ip6tables,optional" json:"ip6tables,omitempty" yaml:"ip6tables,omitempty"`
	IptablesRestore  string `hcl:"iptables_restore,optional" json:"iptables_restore,omitempty" yaml:"iptables_restore,omitempty"`
	Ip6tablesRestore string `hcl:"ip6tables_restore,optional" json:"ip6tables_restore,omitempty" yaml:"ip6tables_restore,omitempty"`
}

// LogConfig configures logging. With Syslog set, messages are also sent
// as RFC 3164 datagrams to SyslogHost.
type LogConfig struct {
	Level      string `hcl:"level,optional" json:"level,omitempty" yaml:"level,omitempty"`
	JSON       bool   `hcl:"json,optional" json:"json,omitempty" yaml:"json,omitempty"`
	Syslog     bool   `hcl:"syslog,optional" json:"syslog,omitempty" yaml:"syslog,omitempty"`
	SyslogHost string `hcl:"syslog_host,optional" json:"syslog_host,omitempty" yaml:"syslog_host,omitempty"`
}

// MetricsConfig configures Prometheus output. Both outputs are off when empty.
type MetricsConfig struct {
	Textfile string `hcl:"textfile,optional" json:"textfile,omitempty" yaml:"textfile,omitempty"` // node_exporter textfile path
	Listen   string `hcl:"listen,optional" json:"listen,omitempty" yaml:"listen,omitempty"`       // HTTP listen address, watch only
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Enabled *bool  `hcl:"enabled,optional" json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Path    string `hcl:"path,optional" json:"path,omitempty" yaml:"path,omitempty"`
	Keep    int    `hcl:"keep,optional" json:"keep,omitempty" yaml:"keep,omitempty"`
}

// WatchConfig configures the watch loop. Cron takes precedence over Interval.
type WatchConfig struct {
	Interval string `hcl:"interval,optional" json:"interval,omitempty" yaml:"interval,omitempty"`
	Cron     string `hcl:"cron,optional" json:"cron,omitempty" yaml:"cron,omitempty"`
	Timeout  string `hcl:"timeout,optional" json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

const (
	DefaultWatchInterval = time.Hour
	DefaultWatchTimeout  = 5 * time.Minute
)

// DefaultListFile is the snapshot path used when list_file is not set.
func DefaultListFile() string {
	return filepath.Join(brand.GetStateDir(), "edges.txt")
}

// DefaultHistoryPath is the history database used when history.path is not set.
func DefaultHistoryPath() string {
	return filepath.Join(brand.GetStateDir(), "history.db")
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	pol := policy.Default()
	if c.Table == "" {
		c.Table = pol.Table
	}
	if c.Chain == "" {
		c.Chain = pol.Chain
	}
	if c.SetV4 == "" {
		c.SetV4 = pol.SetV4
	}
	if c.SetV6 == "" {
		c.SetV6 = pol.SetV6
	}
	if len(c.Ports) == 0 {
		for _, p := range pol.Ports {
			c.Ports = append(c.Ports, int(p))
		}
	}
	if c.IPv6 == "" {
		c.IPv6 = string(pol.IPv6)
	}
	if len(c.Hooks) == 0 {
		for _, h := range pol.Hooks {
			c.Hooks = append(c.Hooks, string(h))
		}
	}
	if c.Backend == "" {
		c.Backend = firewall.KindNft
	}
	if c.Query == "" {
		c.Query = firewall.QueryCLI
	}
	if c.Baseline == "" {
		c.Baseline = reconcile.BaselineFirewall
	}
	if c.ListFile == "" {
		c.ListFile = DefaultListFile()
	}

	if c.Source == nil {
		c.Source = &SourceConfig{}
	}
	if len(c.Source.URLs) == 0 {
		c.Source.URLs = append([]string(nil), edge.DefaultURLs...)
	}
	if c.Source.Timeout == "" {
		c.Source.Timeout = edge.DefaultTimeout.String()
	}

	if c.Binaries == nil {
		c.Binaries = &BinariesConfig{}
	}
	def := firewall.DefaultBinaries()
	if c.Binaries.Nft == "" {
		c.Binaries.Nft = def.Nft
	}
	if c.Binaries.Iptables == "" {
		c.Binaries.Iptables = def.Iptables
	}
	if c.Binaries.Ip6tables == "" {
		c.Binaries.Ip6tables = def.Ip6tables
	}
	if c.Binaries.IptablesRestore == "" {
		c.Binaries.IptablesRestore = def.IptablesRestore
	}
	if c.Binaries.Ip6tablesRestore == "" {
		c.Binaries.Ip6tablesRestore = def.Ip6tablesRestore
	}

	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Syslog && c.Log.SyslogHost == "" {
		c.Log.SyslogHost = "127.0.0.1"
	}

	if c.Metrics == nil {
		c.Metrics = &MetricsConfig{}
	}

	if c.History == nil {
		c.History = &HistoryConfig{}
	}
	if c.History.Enabled == nil {
		enabled := true
		c.History.Enabled = &enabled
	}
	if c.History.Path == "" {
		c.History.Path = DefaultHistoryPath()
	}
	if c.History.Keep == 0 {
		c.History.Keep = state.DefaultKeep
	}

	if c.Watch == nil {
		c.Watch = &WatchConfig{}
	}
	if c.Watch.Interval == "" {
		c.Watch.Interval = DefaultWatchInterval.String()
	}
	if c.Watch.Timeout == "" {
		c.Watch.Timeout = DefaultWatchTimeout.String()
	}
}

// FirewallBinaries returns the tool paths for the firewall backends.
func (c *Config) FirewallBinaries() firewall.Binaries {
	if c.Binaries == nil {
		return firewall.DefaultBinaries()
	}
	return firewall.Binaries{
		Nft:              c.Binaries.Nft,
		Iptables:         c.Binaries.Iptables,
		Ip6tables:        c.Binaries.Ip6tables,
		IptablesRestore:  c.Binaries.IptablesRestore,
		Ip6tablesRestore: c.Binaries.Ip6tablesRestore,
	}
}

// HistoryEnabled reports whether runs are recorded.
func (c *Config) HistoryEnabled() bool {
	return c.History != nil && (c.History.Enabled == nil || *c.History.Enabled)
}

// SourceTimeout returns the per-URL fetch timeout.
func (c *Config) SourceTimeout() time.Duration {
	if c.Source == nil {
		return edge.DefaultTimeout
	}
	return parseDuration(c.Source.Timeout, edge.DefaultTimeout)
}

// WatchInterval returns the interval between watch runs.
func (c *Config) WatchInterval() time.Duration {
	if c.Watch == nil {
		return DefaultWatchInterval
	}
	return parseDuration(c.Watch.Interval, DefaultWatchInterval)
}

// WatchTimeout bounds a single watch run.
func (c *Config) WatchTimeout() time.Duration {
	if c.Watch == nil {
		return DefaultWatchTimeout
	}
	return parseDuration(c.Watch.Timeout, DefaultWatchTimeout)
}

// parseDuration returns def when s is empty or invalid; Validate reports
// invalid values.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
