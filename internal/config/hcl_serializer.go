package config

import (
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// MarshalHCL renders the configuration as an HCL file. Defaults should be
// applied first so every setting is spelled out.
func (c *Config) MarshalHCL() []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	body.SetAttributeValue("table", cty.StringVal(c.Table))
	body.SetAttributeValue("chain", cty.StringVal(c.Chain))
	body.SetAttributeValue("set_v4", cty.StringVal(c.SetV4))
	body.SetAttributeValue("set_v6", cty.StringVal(c.SetV6))
	body.SetAttributeValue("ports", intList(c.Ports))
	body.SetAttributeValue("ipv6", cty.StringVal(c.IPv6))
	body.SetAttributeValue("hooks", stringList(c.Hooks))
	body.AppendNewline()

	body.SetAttributeValue("backend", cty.StringVal(c.Backend))
	body.SetAttributeValue("query", cty.StringVal(c.Query))
	body.SetAttributeValue("baseline", cty.StringVal(c.Baseline))
	body.SetAttributeValue("list_file", cty.StringVal(c.ListFile))

	if c.Source != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("source", nil).Body()
		b.SetAttributeValue("urls", stringList(c.Source.URLs))
		setString(b, "timeout", c.Source.Timeout)
	}

	if c.Binaries != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("binaries", nil).Body()
		setString(b, "nft", c.Binaries.Nft)
		setString(b, "iptables", c.Binaries.Iptables)
		setString(b, "ip6tables", c.Binaries.Ip6tables)
		setString(b, "iptables_restore", c.Binaries.IptablesRestore)
		setString(b, "ip6tables_restore", c.Binaries.Ip6tablesRestore)
	}

	if c.Log != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("log", nil).Body()
		setString(b, "level", c.Log.Level)
		b.SetAttributeValue("json", cty.BoolVal(c.Log.JSON))
		b.SetAttributeValue("syslog", cty.BoolVal(c.Log.Syslog))
		setString(b, "syslog_host", c.Log.SyslogHost)
	}

	if c.Metrics != nil && (c.Metrics.Textfile != "" || c.Metrics.Listen != "") {
		body.AppendNewline()
		b := body.AppendNewBlock("metrics", nil).Body()
		setString(b, "textfile", c.Metrics.Textfile)
		setString(b, "listen", c.Metrics.Listen)
	}

	if c.History != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("history", nil).Body()
		if c.History.Enabled != nil {
			b.SetAttributeValue("enabled", cty.BoolVal(*c.History.Enabled))
		}
		setString(b, "path", c.History.Path)
		if c.History.Keep != 0 {
			b.SetAttributeValue("keep", cty.NumberIntVal(int64(c.History.Keep)))
		}
	}

	if c.Watch != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("watch", nil).Body()
		setString(b, "interval", c.Watch.Interval)
		setString(b, "cron", c.Watch.Cron)
		setString(b, "timeout", c.Watch.Timeout)
	}

	return hclwrite.Format(f.Bytes())
}

func setString(b *hclwrite.Body, name, value string) {
	if value != "" {
		b.SetAttributeValue(name, cty.StringVal(value))
	}
}

func stringList(values []string) cty.Value {
	if len(values) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	vals := make([]cty.Value, len(values))
	for i, v := range values {
		vals[i] = cty.StringVal(v)
	}
	return cty.ListVal(vals)
}

func intList(values []int) cty.Value {
	if len(values) == 0 {
		return cty.ListValEmpty(cty.Number)
	}
	vals := make([]cty.Value, len(values))
	for i, v := range values {
		vals[i] = cty.NumberIntVal(int64(v))
	}
	return cty.ListVal(vals)
}
