package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"grimm.is/originguard/internal/firewall"
)

func newRenderCommand(a *app) *cobra.Command {
	var live, validate bool
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the bootstrap transaction for the selected backend",
		Long: "Prints the commands and scripts that bootstrap the table, sets and chains. " +
			"With --live the plan is made against the running firewall and the metadata " +
			"of the managed nftables table is shown. With --validate the nft script is " +
			"checked by nft -c without being applied.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := a.validate()
			if err != nil {
				return err
			}
			backend, err := a.newBackend()
			if err != nil {
				return err
			}
			nft, isNft := backend.(*firewall.NftBackend)
			if validate && !isNft {
				return fmt.Errorf("--validate requires the nft backend")
			}

			var st firewall.State
			if live {
				if st, err = backend.Query(cmd.Context(), pol); err != nil {
					return err
				}
				if isNft {
					meta, err := nft.Metadata(cmd.Context(), pol)
					if err != nil {
						return err
					}
					fmt.Fprintf(a.errOut, "# live table: %s\n", firewall.FormatMetadataForDisplay(meta))
				}
			}

			tx, err := backend.PlanBootstrap(pol, st)
			if err != nil {
				return err
			}
			fmt.Fprint(a.out, tx.Render())

			if validate {
				if err := nft.Validate(cmd.Context(), tx); err != nil {
					return err
				}
				fmt.Fprintln(a.errOut, "# nft -c: script is valid")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "plan against the live firewall state")
	cmd.Flags().BoolVar(&validate, "validate", false, "check the script with nft -c (nft backend)")
	return cmd
}
