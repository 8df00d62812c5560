package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/originguard/internal/edge"
	"grimm.is/originguard/internal/policy"
)

const sampleHCL = `
table = "shield"
chain = "door"
ports = [443, 80, 443]
ipv6  = "allow"
hooks = ["input"]

backend  = "iptables"
baseline = "snapshot"
list_file = "/tmp/edges.txt"

source {
  urls    = ["https://example.com/edges"]
  timeout = "10s"
}

binaries {
  iptables = "/usr/sbin/iptables-nft"
}

log {
  level = "debug"
  json  = true
}

metrics {
  textfile = "/var/lib/node_exporter/originguard.prom"
}

history {
  keep = 50
}

watch {
  cron = "17 */6 * * *"
}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadHCL(t *testing.T) {
	cfg, err := LoadHCL([]byte(sampleHCL), "test.hcl")
	require.NoError(t, err)

	assert.Equal(t, "shield", cfg.Table)
	assert.Equal(t, "door", cfg.Chain)
	assert.Equal(t, []int{443, 80, 443}, cfg.Ports)
	assert.Equal(t, "allow", cfg.IPv6)
	assert.Equal(t, []string{"input"}, cfg.Hooks)
	assert.Equal(t, "iptables", cfg.Backend)
	assert.Equal(t, "snapshot", cfg.Baseline)
	assert.Equal(t, []string{"https://example.com/edges"}, cfg.Source.URLs)
	assert.Equal(t, 10*time.Second, cfg.SourceTimeout())
	assert.Equal(t, "/usr/sbin/iptables-nft", cfg.Binaries.Iptables)
	assert.Equal(t, "ip6tables", cfg.Binaries.Ip6tables, "unset binaries keep their default")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, 50, cfg.History.Keep)
	assert.True(t, cfg.HistoryEnabled())
	assert.Equal(t, "17 */6 * * *", cfg.Watch.Cron)

	// Defaults fill what the file leaves out.
	assert.Equal(t, "edge_v4", cfg.SetV4)
	assert.Equal(t, "cli", cfg.Query)

	assert.Empty(t, cfg.Validate())

	pol, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, []uint16{80, 443}, pol.Ports)
	assert.Equal(t, policy.IPv6Allow, pol.IPv6)
	assert.Equal(t, []policy.Hook{policy.HookInput}, pol.Hooks)
}

func TestLoadHCL_Errors(t *testing.T) {
	_, err := LoadHCL([]byte(`table = `), "bad.hcl")
	assert.Error(t, err)

	_, err = LoadHCL([]byte(`tabel = "bop"`), "typo.hcl")
	assert.Error(t, err, "unknown attributes are rejected")

	_, err = LoadHCL([]byte(`ports = "80"`), "type.hcl")
	assert.Error(t, err)
}

func TestLoadFile_ByExtension(t *testing.T) {
	jsonPath := writeFile(t, "c.json", `{"table":"j","ports":[8443],"source":{"timeout":"5s"}}`)
	cfg, err := LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "j", cfg.Table)
	assert.Equal(t, []int{8443}, cfg.Ports)
	assert.Equal(t, 5*time.Second, cfg.SourceTimeout())
	assert.Equal(t, edge.DefaultURLs, cfg.Source.URLs)

	yamlPath := writeFile(t, "c.yaml", "table: y\nipv6: allow\nwatch:\n  interval: 15m\n")
	cfg, err = LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "y", cfg.Table)
	assert.Equal(t, "allow", cfg.IPv6)
	assert.Equal(t, 15*time.Minute, cfg.WatchInterval())

	hclPath := writeFile(t, "originguard.conf", `chain = "h"`)
	cfg, err = LoadFile(hclPath)
	require.NoError(t, err)
	assert.Equal(t, "h", cfg.Chain)
}

func TestLoadFile_UnknownFields(t *testing.T) {
	_, err := LoadFile(writeFile(t, "c.json", `{"tabel":"x"}`))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, "c.yml", "tabel: x\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.hcl"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	pol, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, policy.Default().Normalize(), pol)
}

func TestMarshalHCL_RoundTrip(t *testing.T) {
	cfg, err := LoadHCL([]byte(sampleHCL), "test.hcl")
	require.NoError(t, err)

	out := cfg.MarshalHCL()
	assert.Regexp(t, `backend\s+= "iptables"`, string(out))

	again, err := LoadHCL(out, "rendered.hcl")
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}
