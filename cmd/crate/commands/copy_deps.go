package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/crate/internal/app"
)

func (c *CLI) newCopyDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy-deps <module>",
		Short: "Copy a module's locally available dependencies into its deps directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			noCache, _ := cmd.Flags().GetBool("no-cache")

			result, err := c.app.CopyDeps(cmd.Context(), app.CopyDepsOptions{
				ConfigOptions: c.configOptions(),
				Module:        args[0],
				NoCache:       noCache,
			})
			if result == nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, a := range result.Copied {
				_, _ = fmt.Fprintf(out, "copied %s -> %s\n", a.Coordinate, a.DestinationPath)
			}
			for _, r := range result.Remote {
				_, _ = fmt.Fprintf(out, "remote %s -> %s (fetched by the build engine)\n", r.Coordinate, r.Source)
			}
			return err
		},
	}
	cmd.Flags().BoolP("no-cache", "n", false, "Copy dependencies even when the deps manifest is up to date")
	return cmd
}
