package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"grimm.is/originguard/internal/i18n"
	"grimm.is/originguard/internal/state"
)

func newHistoryCommand(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent reconciliation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := state.DefaultOptions(a.cfg.History.Path)
			opts.Keep = a.cfg.History.Keep
			h, err := state.Open(opts)
			if err != nil {
				return err
			}
			defer h.Close()

			runs, err := h.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				Printer.Fprintf(a.errOut, i18n.MsgNoHistory)
				return nil
			}
			writeHistory(a.out, runs)

			if age, ok, err := h.Age(cmd.Context()); err == nil && ok {
				fmt.Fprintf(a.out, "\nLast successful run %s ago\n", age.Round(time.Second))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeHistory(w io.Writer, runs []state.Run) {
	ok := color.New(color.FgGreen).SprintFunc()
	fail := color.New(color.FgRed).SprintFunc()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tRESULT\tPHASE\tBACKEND\tV4\tV6\tADDED\tREMOVED\tDURATION\tERROR")
	for _, r := range runs {
		result := ok("ok")
		if !r.Success {
			result = fail("failed")
		}
		if r.DryRun {
			result += " (dry-run)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), result, r.Phase, r.Backend,
			r.V4, r.V6, r.Added, r.Removed, r.Duration.Round(time.Millisecond), r.Error)
	}
	tw.Flush()
}
