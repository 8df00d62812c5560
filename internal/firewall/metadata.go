package firewall

import (
	"fmt"
	"regexp"
	"strings"

	"grimm.is/originguard/internal/brand"
	"grimm.is/originguard/internal/policy"
)

// TableMetadata is the tracking info embedded in the nftables table comment.
type TableMetadata struct {
	Version string // originguard version (e.g., "1.2.3" or "dev")
	Ports   string // protected ports, e.g. "80,443"
	IPv6    string // allow or block
}

// metadataRegex parses the metadata comment format:
// originguard:v<version>:p=<ports>:6=<mode>
var metadataRegex = regexp.MustCompile(`originguard:v([^:]+):p=([0-9,]+):6=(allow|block)`)

// ParseMetadataComment parses a metadata comment string.
// Returns nil if the comment was not written by us.
func ParseMetadataComment(comment string) *TableMetadata {
	match := metadataRegex.FindStringSubmatch(comment)
	if match == nil {
		return nil
	}
	return &TableMetadata{
		Version: match[1],
		Ports:   match[2],
		IPv6:    match[3],
	}
}

// BuildMetadataComment creates the metadata comment for a policy.
func BuildMetadataComment(pol policy.Policy) string {
	version := strings.ReplaceAll(brand.Version, ":", "_")
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("%s:v%s:p=%s:6=%s", brand.LowerName, version, pol.Normalize().PortList(), pol.IPv6)
}

// FormatMetadataForDisplay returns a human-readable string of the metadata.
func FormatMetadataForDisplay(meta *TableMetadata) string {
	if meta == nil {
		return "no metadata"
	}
	return fmt.Sprintf("v%s, ports %s, ipv6 %s", meta.Version, meta.Ports, meta.IPv6)
}
