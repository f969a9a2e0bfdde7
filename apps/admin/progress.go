package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/qahhor/FREE-LMS-sub001/core/progress"
)

func (cli *commandLine) progressCmd() *cobra.Command {
	var userID, packageID string

	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show a learner's progress, on every package launched or on one package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res []progress.Progress
			if packageID != "" {
				p, err := cli.mgr.PackageProgress(cmd.Context(), userID, packageID)
				if err != nil {
					return err
				}
				res = append(res, p)
			} else {
				var err error
				if res, err = cli.mgr.UserProgress(cmd.Context(), userID); err != nil {
					return err
				}
			}
			if len(res) == 0 {
				_, _ = fmt.Fprintln(cli.out, "no progress")
				return nil
			}
			for _, p := range res {
				_, _ = fmt.Fprintf(cli.out, "%s\t%s\t%d%%\t%s\n", p.PackageID, p.StatusLabel, p.Progress, p.TotalTime)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "learner id")
	cmd.Flags().StringVar(&packageID, "package", "", "package id (optional)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (cli *commandLine) historyCmd() *cobra.Command {
	var userID, packageID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the attempts of a learner on a package, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			attempts, err := cli.mgr.Attempts(cmd.Context(), userID, packageID)
			if err != nil {
				return err
			}
			if len(attempts) == 0 {
				_, _ = fmt.Fprintln(cli.out, "no attempts")
				return nil
			}
			for _, a := range attempts {
				_, _ = fmt.Fprintf(cli.out, "%s\t%s\t%s\t%s\t%s\t%s\n",
					a.TerminatedAt.Format(time.RFC3339), a.SessionID, a.LessonStatus,
					score(a.ScoreRaw, a.ScoreMax), a.SessionTime, a.TotalTime,
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "learner id")
	cmd.Flags().StringVar(&packageID, "package", "", "package id")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("package")
	return cmd
}

func score(raw, scoreMax *float64) string {
	if raw == nil {
		return "-"
	}
	s := strconv.FormatFloat(*raw, 'f', -1, 64)
	if scoreMax != nil {
		s += "/" + strconv.FormatFloat(*scoreMax, 'f', -1, 64)
	}
	return s
}
