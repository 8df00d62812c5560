package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"grimm.is/originguard/internal/i18n"
)

func newFetchCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch and print the published edge addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := a.newSource()
			v4, v6, err := src.Fetch(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Source string   `json:"source"`
					V4     []string `json:"v4"`
					V6     []string `json:"v6"`
				}{src.LastURL(), v4.Strings(), v6.Strings()})
			}

			Printer.Fprintf(a.errOut, i18n.MsgFetched, v4.Len(), v6.Len(), src.LastURL())
			for _, addr := range v4.Union(v6).Strings() {
				fmt.Fprintln(a.out, addr)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
