package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"grimm.is/originguard/internal/brand"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(a.out, "%s %s (commit %s, built %s, %s/%s)\n",
				brand.Name, brand.Version, brand.GitCommit, brand.BuildTime, runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
}
