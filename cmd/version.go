package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/trainlog/internal/clock/system"
	"github.com/JakeFAU/trainlog/internal/run"
)

var clock run.Clock = system.New()

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version and the run version a run started now would get",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			build := "(devel)"
			if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
				build = info.Main.Version
			}
			session := run.NewSession(e.cfg.Run.Name, clock)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "trainlog %s\n", build)
			fmt.Fprintf(out, "run %s %s\n", session.Name, session.Version)
			fmt.Fprintf(out, "logs %s\n", session.LogDir(e.cfg.Run.SaveDir))
			return nil
		},
	}
}
