package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (cli *commandLine) packagesCmd() *cobra.Command {
	pkgs := &cobra.Command{Use: "packages", Short: "Manage the package catalog"}

	pkgs.AddCommand(
		&cobra.Command{
			Use:   "import FILE",
			Short: "Import the package descriptors of a YAML catalog file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := cli.loader.Import(cmd.Context(), cli.catalog, args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cli.out, "%d packages imported\n", n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the packages of the catalog",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				list, err := cli.catalog.ListPackages(cmd.Context())
				if err != nil {
					return err
				}
				if len(list) == 0 {
					_, _ = fmt.Fprintln(cli.out, "no packages")
					return nil
				}
				for _, pkg := range list {
					_, _ = fmt.Fprintf(cli.out, "%s\t%s\t%s\n", pkg.ID, pkg.Version, pkg.Title)
				}
				return nil
			},
		},
	)
	return pkgs
}
