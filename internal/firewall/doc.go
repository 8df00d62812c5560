// Package firewall implements the packet-filter backends for originguard.
//
// # Overview
//
// A [Backend] queries the live allow-sets and renders mutations as
// [Transaction] values. Transactions are scripts fed to a single tool
// invocation so each one lands as one kernel batch:
//
//	Policy → Backend.Plan* → Transaction → Backend.Apply → nft -f - / iptables-restore --noflush
//
// # Backends
//
//   - [NftBackend]: an inet table with one ipv4_addr and one ipv6_addr set and
//     a filter chain per hook. State is read with nft -j ([CLIReader]) or
//     over netlink ([NetlinkReader]).
//   - [IptablesBackend]: a structural chain jumped to from INPUT and an allow
//     chain holding one ACCEPT rule per address.
//
// Set mutations are chunked at [ChunkSize] elements. Removal through nft adds
// each chunk before deleting it so the batch cannot fail on an element that
// is already gone.
//
// # Testing
//
// Backends take a [CommandRunner]; tests use [MockCommandRunner].
package firewall
