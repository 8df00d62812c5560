// Package cmd implements the originguard command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"grimm.is/originguard/internal/brand"
	"grimm.is/originguard/internal/i18n"
)

// Printer formats human-readable output for the user's locale.
var Printer = i18n.NewCLIPrinter()

// errSilent fails a command whose output already explains the failure.
var errSilent = errors.New("")

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}

// NewRootCommand builds the command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{out: stdout, errOut: stderr}

	root := &cobra.Command{
		Use:           brand.BinaryName,
		Short:         brand.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipSetup] != "" {
				return nil
			}
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	f := root.PersistentFlags()
	f.StringVarP(&a.flags.configFile, "config", "c", brand.DefaultConfigPath(), "configuration file")
	f.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.BoolVar(&a.flags.logJSON, "log-json", false, "log in JSON")
	f.StringVar(&a.flags.table, "table", "", "nftables table (inet) [default: bop]")
	f.StringVar(&a.flags.chain, "chain", "", "chain name [default: gate]")
	f.StringVar(&a.flags.ports, "ports", "", "comma-separated TCP ports [default: 80,443]")
	f.StringVar(&a.flags.ipv6, "ipv6", "", "IPv6 behaviour: allow or block [default: block]")
	f.StringSliceVar(&a.flags.hooks, "hooks", nil, "hooks to guard: input, prerouting")
	f.StringVar(&a.flags.listFile, "list-file", "", "snapshot of the applied edge addresses")
	f.StringVar(&a.flags.backend, "backend", "", "firewall backend: nft or iptables")
	f.StringVar(&a.flags.query, "query", "", "nft state reader: cli or netlink")
	f.StringVar(&a.flags.baseline, "baseline", "", "diff against: firewall or snapshot")
	f.BoolVarP(&a.flags.dryRun, "dry-run", "n", false, "print the firewall changes instead of applying them")

	root.AddCommand(
		newSyncCommand(a),
		newFetchCommand(a),
		newDiffCommand(a),
		newRenderCommand(a),
		newWatchCommand(a),
		newHistoryCommand(a),
		newCheckCommand(a),
		newVersionCommand(a),
	)
	return root
}
