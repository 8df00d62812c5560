package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"grimm.is/originguard/internal/firewall"
	"grimm.is/originguard/internal/logging"
	"grimm.is/originguard/internal/policy"
	"grimm.is/originguard/internal/reconcile"
	"grimm.is/originguard/internal/scheduler"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Err returns e as an error, or nil when empty.
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Validate validates the entire configuration.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if _, err := c.Policy(); err != nil {
		errs = append(errs, ValidationError{Field: "policy", Message: err.Error()})
	}
	errs = append(errs, c.validateBackend()...)
	errs = append(errs, c.validateSource()...)
	errs = append(errs, c.validateLog()...)
	errs = append(errs, c.validateMetrics()...)
	errs = append(errs, c.validateWatch()...)

	if c.History != nil && c.History.Keep < 0 {
		errs = append(errs, ValidationError{Field: "history.keep", Message: "must not be negative"})
	}
	return errs
}

// Policy converts the policy fields into a normalised, validated policy.
func (c *Config) Policy() (policy.Policy, error) {
	pol := policy.Policy{
		Table: c.Table,
		Chain: c.Chain,
		SetV4: c.SetV4,
		SetV6: c.SetV6,
	}

	for _, p := range c.Ports {
		if p < 1 || p > 65535 {
			return policy.Policy{}, fmt.Errorf("%w: %d", policy.ErrInvalidPort, p)
		}
		pol.Ports = append(pol.Ports, uint16(p))
	}

	mode, err := policy.ParseIPv6Mode(c.IPv6)
	if err != nil {
		return policy.Policy{}, err
	}
	pol.IPv6 = mode

	for _, s := range c.Hooks {
		h, err := policy.ParseHook(s)
		if err != nil {
			return policy.Policy{}, err
		}
		pol.Hooks = append(pol.Hooks, h)
	}

	pol = pol.Normalize()
	if err := pol.Validate(); err != nil {
		return policy.Policy{}, err
	}
	return pol, nil
}

func (c *Config) validateBackend() ValidationErrors {
	var errs ValidationErrors
	switch c.Backend {
	case firewall.KindNft, firewall.KindIptables:
	default:
		errs = append(errs, ValidationError{Field: "backend", Message: fmt.Sprintf("unknown backend %q (want nft or iptables)", c.Backend)})
	}
	switch c.Query {
	case firewall.QueryCLI:
	case firewall.QueryNetlink:
		if c.Backend == firewall.KindIptables {
			errs = append(errs, ValidationError{Field: "query", Message: "netlink query requires the nft backend"})
		}
	default:
		errs = append(errs, ValidationError{Field: "query", Message: fmt.Sprintf("unknown query method %q (want cli or netlink)", c.Query)})
	}
	switch c.Baseline {
	case reconcile.BaselineFirewall, reconcile.BaselineSnapshot:
	default:
		errs = append(errs, ValidationError{Field: "baseline", Message: fmt.Sprintf("unknown baseline %q (want firewall or snapshot)", c.Baseline)})
	}
	if c.Baseline == reconcile.BaselineSnapshot && c.ListFile == "" {
		errs = append(errs, ValidationError{Field: "list_file", Message: "required with the snapshot baseline"})
	}
	return errs
}

func (c *Config) validateSource() ValidationErrors {
	var errs ValidationErrors
	if c.Source == nil {
		return errs
	}
	for i, raw := range c.Source.URLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("source.urls[%d]", i), Message: fmt.Sprintf("invalid URL %q", raw)})
		}
	}
	errs = append(errs, validateDuration("source.timeout", c.Source.Timeout)...)
	return errs
}

func (c *Config) validateLog() ValidationErrors {
	if c.Log == nil || c.Log.Level == "" {
		return nil
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return ValidationErrors{{Field: "log.level", Message: err.Error()}}
	}
	return nil
}

func (c *Config) validateMetrics() ValidationErrors {
	if c.Metrics == nil || c.Metrics.Listen == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
		return ValidationErrors{{Field: "metrics.listen", Message: err.Error()}}
	}
	return nil
}

func (c *Config) validateWatch() ValidationErrors {
	if c.Watch == nil {
		return nil
	}
	errs := validateDuration("watch.interval", c.Watch.Interval)
	errs = append(errs, validateDuration("watch.timeout", c.Watch.Timeout)...)
	if c.Watch.Cron != "" {
		if _, err := scheduler.Cron(c.Watch.Cron); err != nil {
			errs = append(errs, ValidationError{Field: "watch.cron", Message: err.Error()})
		}
	}
	return errs
}

// Schedule returns the watch schedule.
func (c *Config) Schedule() (scheduler.Schedule, error) {
	var cron string
	if c.Watch != nil {
		cron = c.Watch.Cron
	}
	return scheduler.Parse(c.WatchInterval(), cron)
}

func validateDuration(field, value string) ValidationErrors {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return ValidationErrors{{Field: field, Message: fmt.Sprintf("invalid duration %q", value)}}
	}
	if d <= 0 {
		return ValidationErrors{{Field: field, Message: "must be positive"}}
	}
	return nil
}
