package cli

import (
	"fmt"
	"io"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/specialistvlad/buildchain/internal/app"
)

func newRunCommand(v *viper.Viper, outW, errW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "run [paths...]",
		Short: "Load the chain files and execute the build",
		Long: `Load every .hcl file under the given paths, build the chain and execute it.

Exits with status 1 when the chain is invalid or a step fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, args, outW, errW, func(a *app.App) error {
				_, err := a.Run(cmd.Context())
				return err
			})
		},
	}
}

func newGraphCommand(v *viper.Viper, outW, errW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "graph [paths...]",
		Short: "Print the chain as a Graphviz dot graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, args, outW, errW, func(a *app.App) error {
				return a.Graph(cmd.Context(), outW)
			})
		},
	}
}

func newWatchCommand(v *viper.Viper, outW, errW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Rebuild whenever a chain file changes",
		Long: `Run the build, then run it again from scratch every time a chain file
under the given paths changes. Stops on interrupt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, args, outW, errW, func(a *app.App) error {
				return a.Watch(cmd.Context())
			})
		},
	}
}

func newVersionCommand(outW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			title := color.New(color.FgCyan, color.Bold)
			title.Fprint(outW, "buildchain version: ")
			fmt.Fprintln(outW, app.Version)
			title.Fprint(outW, "Go version: ")
			fmt.Fprintln(outW, runtime.Version())
		},
	}
}
