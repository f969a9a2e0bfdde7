package main

import (
	"errors"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/qahhor/FREE-LMS-sub001/core/scorm"
	catalogsvc "github.com/qahhor/FREE-LMS-sub001/services/catalog"
	sqlxrepos "github.com/qahhor/FREE-LMS-sub001/storage/database/sqlx"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	db      *sqlx.DB
	mgr     *scorm.Manager
	sweeper *scorm.Sweeper
	catalog *sqlxrepos.PackageCatalog
	loader  *catalogsvc.Loader
	out     io.Writer
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "SCORM runtime administration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.AddCommand(
		cli.migrateCmd(),
		cli.sweepCmd(),
		cli.progressCmd(),
		cli.historyCmd(),
		cli.packagesCmd(),
	)
	return root
}

// run executes the command named by args, args[0] being the program name.
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) > 0 {
		args = args[1:]
	}
	root.SetArgs(args)
	return root.Execute()
}
