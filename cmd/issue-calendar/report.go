package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opsboard/issue-calendar/internal/cli"
)

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Produce weekly reports",
	}
	cmd.AddCommand(newReportFileCmd(a), newReportSessionCmd(a))
	return cmd
}

func newReportFileCmd(a *app) *cobra.Command {
	var today string
	cmd := &cobra.Command{
		Use:   "file <issues.json|issues.yaml|->",
		Short: "Render a report from a list of issues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if today != "" {
				t, err := time.Parse("2006-01-02", today)
				if err != nil {
					return fmt.Errorf("invalid --today: %w", err)
				}
				now = t
			}
			r := cli.FileReport{File: args[0], Now: now}
			return r.Write(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&today, "today", "", "date the report is generated for (YYYY-MM-DD)")
	return cmd
}

func newReportSessionCmd(a *app) *cobra.Command {
	var serverURL string
	var export bool
	cmd := &cobra.Command{
		Use:   "session <id>",
		Short: "Fetch or export the report of a server session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := cli.SessionReport{Server: serverURL, Session: args[0]}
			if !export {
				return r.Fetch(cmd.OutOrStdout())
			}
			rec, err := r.Export()
			if err != nil {
				return err
			}
			a.logger.Info("report exported", "key", rec.ObjectKey, "issues", rec.IssueCount)
			fmt.Fprintf(cmd.OutOrStdout(), "Report exported: id=%d key=%s\n", rec.ID, rec.ObjectKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "issue-calendar server URL")
	cmd.Flags().BoolVar(&export, "export", false, "upload the report instead of printing it")
	return cmd
}
