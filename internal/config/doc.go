// Package config loads the originguard configuration file.
//
// # Overview
//
// The file is HCL by default (/etc/originguard/originguard.hcl). Files
// ending in .json, .yaml or .yml are decoded with the matching codec into
// the same [Config] struct. A missing file yields [Default].
//
// # Example
//
//	table = "bop"
//	chain = "gate"
//	ports = [80, 443]
//	ipv6  = "block"
//	hooks = ["input", "prerouting"]
//
//	backend  = "nft"
//	query    = "cli"
//	baseline = "firewall"
//
//	source {
//	  urls    = ["https://bunnycdn.com/api/system/edgeserverlist"]
//	  timeout = "30s"
//	}
//
//	log {
//	  level = "info"
//	}
//
//	watch {
//	  interval = "1h"
//	}
//
// Command line flags override values from the file; see [Config.Validate]
// for the rules applied to the merged result.
package config
