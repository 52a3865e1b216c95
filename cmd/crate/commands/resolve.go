package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/crate/internal/app"
)

func (c *CLI) newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [coordinate...]",
		Short: "Print the repository that serves each coordinate",
		Long: "Resolve group:name:version coordinates against the configured repositories.\n" +
			"Without arguments, every module dependency is resolved.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolutions, err := c.app.Resolve(cmd.Context(), app.ResolveOptions{
				ConfigOptions: c.configOptions(),
				Coordinates:   args,
			})

			out := cmd.OutOrStdout()
			for _, r := range resolutions {
				_, _ = fmt.Fprintf(out, "%s -> %s\n", r.Coordinate, r.Source)
			}
			return err
		},
	}
}
