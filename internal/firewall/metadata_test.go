package firewall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/originguard/internal/brand"
	"grimm.is/originguard/internal/policy"
)

func TestMetadataRoundTrip(t *testing.T) {
	orig := brand.Version
	brand.Version = "1.4.0"
	defer func() { brand.Version = orig }()

	pol := policy.Default()
	pol.Ports = []uint16{443, 80}

	comment := BuildMetadataComment(pol)
	assert.Equal(t, "originguard:v1.4.0:p=80,443:6=block", comment)

	meta := ParseMetadataComment(comment)
	require.NotNil(t, meta)
	assert.Equal(t, &TableMetadata{Version: "1.4.0", Ports: "80,443", IPv6: "block"}, meta)
	assert.Equal(t, "v1.4.0, ports 80,443, ipv6 block", FormatMetadataForDisplay(meta))
}

func TestParseMetadataComment_Foreign(t *testing.T) {
	assert.Nil(t, ParseMetadataComment("otherfw:v1:c=3:h=abcd"))
	assert.Nil(t, ParseMetadataComment(""))
	assert.Equal(t, "no metadata", FormatMetadataForDisplay(nil))
}
