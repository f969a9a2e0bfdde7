package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (cli *commandLine) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Terminate the sessions idle for longer than the idle timeout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			swept, reconciled := cli.sweeper.Sweep(cmd.Context())
			_, _ = fmt.Fprintf(cli.out, "%d idle sessions terminated, %d terminations reconciled\n", swept, reconciled)
			return nil
		},
	}
}
