package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Veraticus/policybook/internal/cli"
	"github.com/Veraticus/policybook/internal/common"
	"github.com/Veraticus/policybook/internal/invoice"
	"github.com/Veraticus/policybook/internal/model"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent notify-and-purge runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := initStorage(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer closeStorage(store)

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No runs recorded yet"))
				return nil
			}

			headers, rows, failed := runRows(runs)
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable(headers, rows, failed))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	return cmd
}

func runRows(runs []model.Run) ([]string, [][]string, map[int]bool) {
	headers := []string{"Started", "Trigger", "Status", "Notified", "Purged", "Failed", "Took"}
	rows := make([][]string, 0, len(runs))
	failed := make(map[int]bool)

	for i, run := range runs {
		took := "-"
		if !run.FinishedAt.IsZero() {
			took = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Trigger,
			string(run.Status),
			strconv.Itoa(len(run.Notified)),
			strconv.Itoa(len(run.Purged)),
			strconv.Itoa(len(run.Failures)),
			took,
		})
		if run.Status != model.RunStatusSucceeded {
			failed[i] = true
		}
	}
	return headers, rows, failed
}

func invoicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoices",
		Short: "Inspect issued invoices",
	}

	cmd.AddCommand(invoicesListCmd())
	return cmd
}

func invoicesListCmd() *cobra.Command {
	var page, perPage int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices from the invoicing service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := invoice.NewClient(appConfig.Invoice)
			if err != nil {
				return common.NewUserError("Invoicing is not configured (set INVOICE_API_TOKEN and INVOICE_DOMAIN)", err)
			}

			invoices, err := client.ListInvoices(cmd.Context(), page, perPage)
			if err != nil {
				return err
			}
			if len(invoices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No invoices on this page"))
				return nil
			}

			headers := []string{"Number", "Buyer", "Issued", "Due", "Gross", "Status"}
			rows := make([][]string, 0, len(invoices))
			for _, inv := range invoices {
				rows = append(rows, []string{
					inv.Number,
					inv.BuyerName,
					inv.IssueDate,
					inv.PaymentTo,
					inv.PriceGross.StringFixed(2),
					inv.Status,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable(headers, rows, nil))
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "result page")
	cmd.Flags().IntVar(&perPage, "per-page", 25, "invoices per page")
	return cmd
}
