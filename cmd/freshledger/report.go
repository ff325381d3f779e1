package main

import (
	"github.com/spf13/cobra"

	"freshledger/internal/report"
)

func newReportCmd(e *env) *cobra.Command {
	var window int64
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export and list inventory reports",
	}
	exporter := func(cmd *cobra.Command) (*report.Exporter, error) {
		st, err := e.openBlob(cmd.Context())
		if err != nil {
			return nil, err
		}
		return report.NewExporter(e.registry, st, report.WithLogger(e.logger), report.WithExpiringWindow(window)), nil
	}
	export := &cobra.Command{
		Use:   "export",
		Short: "Write a report to the configured blob store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exp, err := exporter(cmd)
			if err != nil {
				return err
			}
			_, info, err := exp.Export(cmd.Context(), e.now())
			if err != nil {
				return err
			}
			return e.print(info)
		},
	}
	export.Flags().Int64Var(&window, "expiring-days", report.DefaultExpiringWindow, "window for the expiring-soon list")
	cmd.AddCommand(
		export,
		&cobra.Command{
			Use:   "list",
			Short: "List stored reports",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				exp, err := exporter(cmd)
				if err != nil {
					return err
				}
				infos, err := exp.List(cmd.Context())
				if err != nil {
					return err
				}
				return e.print(infos)
			},
		},
	)
	return cmd
}
