package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/crate/internal/app"
)

func (c *CLI) newStageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage [module...]",
		Short: "Normalize built artifacts and copy them to the release directory",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			noCache, _ := cmd.Flags().GetBool("no-cache")

			staged, err := c.app.Stage(cmd.Context(), app.StageOptions{
				ConfigOptions: c.configOptions(),
				Modules:       args,
				NoCache:       noCache,
			})

			out := cmd.OutOrStdout()
			for _, a := range staged {
				_, _ = fmt.Fprintf(out, "%s %s\n", a.Checksum, a.DestinationPath)
			}
			return err
		},
	}
	cmd.Flags().BoolP("no-cache", "n", false, "Restage artifacts even when the release manifest is up to date")
	return cmd
}
