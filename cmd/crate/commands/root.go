// Package commands implements the CLI commands for the crate release tool.
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/crate/internal/app"
	"go.trai.ch/crate/internal/build"
	"go.trai.ch/crate/internal/core/domain"
	"go.trai.ch/crate/internal/engine/resolver"
)

// CLI represents the command line interface for crate.
type CLI struct {
	app     Application
	rootCmd *cobra.Command

	configPath string
	jsonLogs   bool
}

// Application represents the application logic interface.
type Application interface {
	Resolve(ctx context.Context, opts app.ResolveOptions) ([]resolver.Resolution, error)
	Stage(ctx context.Context, opts app.StageOptions) ([]domain.StagedArtifact, error)
	CopyDeps(ctx context.Context, opts app.CopyDepsOptions) (*app.CopyDepsResult, error)
	SetJSONLogs(enable bool)
}

// New creates a new CLI instance with the given app.
func New(a Application) *CLI {
	c := &CLI{app: a}

	rootCmd := &cobra.Command{
		Use:           "crate",
		Short:         "Resolve dependencies against filtered repositories and stage reproducible release artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			c.app.SetJSONLogs(c.jsonLogs)
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", domain.ConfigFileName, "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&c.jsonLogs, "json", false, "Write logs as JSON")

	c.rootCmd = rootCmd

	rootCmd.AddCommand(c.newResolveCmd())
	rootCmd.AddCommand(c.newStageCmd())
	rootCmd.AddCommand(c.newCopyDepsCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

func (c *CLI) configOptions() app.ConfigOptions {
	return app.ConfigOptions{Path: c.configPath}
}
