package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"grimm.is/originguard/internal/i18n"
)

func newCheckCommand(a *app) *cobra.Command {
	var printCfg bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if errs := a.cfg.Validate(); errs.HasErrors() {
				for _, e := range errs {
					fmt.Fprintf(a.errOut, "  %s\n", e)
				}
				return fmt.Errorf("configuration %s is invalid (%d errors)", a.flags.configFile, len(errs))
			}
			if printCfg {
				a.out.Write(a.cfg.MarshalHCL())
				return nil
			}
			Printer.Fprintf(a.out, i18n.MsgConfigOK, a.flags.configFile)
			pol, _ := a.cfg.Policy()
			if !pol.AllowsIPv6() {
				Printer.Fprintf(a.out, i18n.MsgIPv6Blocked, pol.PortList())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&printCfg, "print", false, "print the effective configuration as HCL")
	return cmd
}
