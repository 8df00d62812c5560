package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"grimm.is/originguard/internal/i18n"
	"grimm.is/originguard/internal/policy"
	"grimm.is/originguard/internal/reconcile"
	"grimm.is/originguard/internal/snapshot"
)

func newDiffCommand(a *app) *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show how the firewall differs from the published edge list",
		Long: "Fetches the edge list and prints a unified diff against the baseline " +
			"(the live firewall, or the snapshot with --baseline snapshot). " +
			"Exits 1 when they differ.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := a.validate()
			if err != nil {
				return err
			}

			v4, v6, err := a.newSource().Fetch(cmd.Context())
			if err != nil {
				return err
			}
			desired := pol.Desired(v4, v6)

			var (
				current  policy.AddressSet
				fromName string
			)
			if a.cfg.Baseline == reconcile.BaselineSnapshot {
				store := snapshot.NewStore(a.cfg.ListFile)
				if current, err = store.Load(); err != nil {
					return err
				}
				fromName = store.Path()
			} else {
				backend, err := a.newBackend()
				if err != nil {
					return err
				}
				st, err := backend.Query(cmd.Context(), pol)
				if err != nil {
					return err
				}
				current = st.Addresses()
				fromName = backend.Name() + " " + pol.Table
			}

			delta := writeDiff(a.out, fromName, "edge list", current, desired, !noColor)
			if delta.Empty() {
				Printer.Fprintf(a.errOut, i18n.MsgNoDrift, desired.Len())
				return nil
			}
			Printer.Fprintf(a.errOut, i18n.MsgDrift, len(delta.Add), len(delta.Remove))
			return errSilent
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colour output")
	return cmd
}

// writeDiff prints a unified diff of two address sets, one address per
// line, and returns the delta that would converge current to desired.
func writeDiff(w io.Writer, fromName, toName string, current, desired policy.AddressSet, colored bool) policy.Delta {
	delta := policy.Diff(desired, current)
	if delta.Empty() {
		return delta
	}

	text, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(lines(current)),
		B:        difflib.SplitLines(lines(desired)),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	})

	add := color.New(color.FgGreen)
	del := color.New(color.FgRed)
	hunk := color.New(color.FgCyan)
	for _, c := range []*color.Color{add, del, hunk} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprint(w, line)
		case strings.HasPrefix(line, "+"):
			add.Fprint(w, line)
		case strings.HasPrefix(line, "-"):
			del.Fprint(w, line)
		case strings.HasPrefix(line, "@@"):
			hunk.Fprint(w, line)
		default:
			fmt.Fprint(w, line)
		}
	}
	return delta
}

func lines(set policy.AddressSet) string {
	if set.Empty() {
		return ""
	}
	return strings.Join(set.Strings(), "\n") + "\n"
}
