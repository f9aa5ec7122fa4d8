package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/policybook/internal/cli"
	"github.com/Veraticus/policybook/internal/model"
	"github.com/spf13/cobra"
)

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Show this month's payments",
		Long: `Summarize clients whose payment falls in the current month: clients per
insurance company, gross total and net total after the configured ratio.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(appConfig, bookOnly)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.engine.MonthlyReport(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), formatReport(report, appConfig.Layout.Currency))
			return nil
		},
	}
}

func formatReport(report model.MonthlyReport, currency string) string {
	var b strings.Builder

	companies := make([]string, 0, len(report.Companies))
	for name := range report.Companies {
		companies = append(companies, name)
	}
	sort.Strings(companies)

	fmt.Fprintf(&b, "Clients: %d\n", report.Clients)
	for _, name := range companies {
		fmt.Fprintf(&b, "  %-20s %d\n", name, report.Companies[name])
	}
	fmt.Fprintf(&b, "Gross:   %s %s\n", report.GrossTotal.StringFixed(0), currency)
	fmt.Fprintf(&b, "Net:     %s %s", report.NetTotal.StringFixed(0), currency)

	return cli.RenderBox(cli.ChartIcon+" Payments in "+report.Month, b.String())
}
