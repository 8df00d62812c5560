// Package brand holds the product identity and the filesystem locations
// derived from it. The identity lives in brand.json so packaging scripts
// read the same values the binary embeds.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand is the decoded brand.json.
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Description      string `json:"description"`
	EnvPrefix        string `json:"envPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	DefaultStateDir  string `json:"defaultStateDir"`
	DefaultRunDir    string `json:"defaultRunDir"`
	BinaryName       string `json:"binaryName"`
	ConfigFileName   string `json:"configFileName"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}
	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	EnvPrefix = b.EnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	DefaultRunDir = b.DefaultRunDir
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
}

var (
	Name             string
	LowerName        string
	Description      string
	EnvPrefix        string
	DefaultConfigDir string
	DefaultStateDir  string
	DefaultRunDir    string
	BinaryName       string
	ConfigFileName   string

	// Set at build time via -ldflags.
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Get returns the decoded identity.
func Get() Brand {
	return b
}

// UserAgent is sent with every edge list request.
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return LowerName + "/" + version
}

// dir resolves a directory: <PREFIX>_<kind>_DIR wins, then
// <PREFIX>_PREFIX/<sub>, then def.
func dir(kind, sub, def string) string {
	if d := os.Getenv(EnvPrefix + "_" + kind + "_DIR"); d != "" {
		return d
	}
	if prefix := os.Getenv(EnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, sub)
	}
	return def
}

// GetStateDir holds the snapshot and the run history.
func GetStateDir() string { return dir("STATE", "state", DefaultStateDir) }

// GetConfigDir holds the configuration file.
func GetConfigDir() string { return dir("CONFIG", "config", DefaultConfigDir) }

// GetRunDir holds the host lock file.
func GetRunDir() string { return dir("RUN", "run", DefaultRunDir) }

// DefaultConfigPath is the config file looked up when --config is not given.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}

// LockPath is the advisory lock serialising reconciliations on one host.
func LockPath() string {
	return filepath.Join(GetRunDir(), LowerName+".lock")
}
