package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Veraticus/policybook/internal/cli"
	"github.com/Veraticus/policybook/internal/common"
	"github.com/Veraticus/policybook/internal/config"
	"github.com/Veraticus/policybook/internal/engine"
	"github.com/Veraticus/policybook/internal/sheets"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import clients from a CSV file",
		Long: `Import clients from a CSV file with a header row naming the columns name,
email, insurance_company, car_model, car_year, price and next_payment.
Rows with invalid fields are reported and skipped, as are emails already in
the book.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(config.ExpandPath(args[0]))
			if err != nil {
				return common.NewUserError("Cannot open "+args[0], err)
			}
			defer func() { _ = f.Close() }()

			clients, rowErrs, err := engine.ReadClientsCSV(f)
			if err != nil {
				return common.NewUserError("Cannot read "+args[0], err)
			}

			out := cmd.OutOrStdout()
			for _, rowErr := range rowErrs {
				fmt.Fprintln(out, cli.FormatWarning(rowErr.Error()))
			}
			if dryRun {
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%d valid rows, %d invalid", len(clients), len(rowErrs))))
				return nil
			}

			s, err := openSession(appConfig, bookOnly)
			if err != nil {
				return err
			}
			defer s.Close()

			prompter := cli.NewCLIPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
			bar := prompter.NewProgress(len(clients), "Importing clients")
			result, err := s.engine.ImportClients(cmd.Context(), clients, func() { cli.Step(bar) })
			if err != nil {
				return err
			}

			for _, email := range result.Duplicates {
				fmt.Fprintln(out, cli.FormatWarning(email+" is already in the book"))
			}
			for _, addErr := range result.Errors {
				fmt.Fprintln(out, cli.FormatError(addErr.Error()))
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d clients (%d duplicates, %d invalid rows)",
				len(result.Added), len(result.Duplicates), len(rowErrs)+len(result.Errors))))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only validate the file")
	return cmd
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export the client book to Google Sheets",
		Long: `Replace the contents of the configured Google Sheets tab with the client
book, ordered by next payment date.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exporter, err := sheets.NewExporter(cmd.Context(), appConfig.Sheets, slog.Default())
			if err != nil {
				return common.NewUserError("Google Sheets is not configured (run 'policybook auth sheets')", err)
			}

			s, err := openSession(appConfig, bookOnly)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.engine.ExportClients(cmd.Context(), exporter)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Exported %d clients to %q", n, appConfig.Sheets.SpreadsheetName)))
			return nil
		},
	}
}

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with external services",
	}

	cmd.AddCommand(authSheetsCmd())
	return cmd
}

func authSheetsCmd() *cobra.Command {
	var (
		tokenFile  string
		listenAddr string
	)

	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Authorize Google Sheets access with OAuth2",
		Long: `Run the OAuth2 browser flow for Google Sheets and save the token. Requires
GOOGLE_SHEETS_CLIENT_ID and GOOGLE_SHEETS_CLIENT_SECRET.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := appConfig.Sheets
			if cfg.ClientID == "" || cfg.ClientSecret == "" {
				return common.NewUserError("Set GOOGLE_SHEETS_CLIENT_ID and GOOGLE_SHEETS_CLIENT_SECRET first", common.ErrMissingConfig)
			}

			if tokenFile == "" {
				tokenFile = filepath.Join(filepath.Dir(appConfig.Journal.Path), "sheets-token.json")
			}
			tokenFile = config.ExpandPath(tokenFile)

			token, err := sheets.GetOrCreateToken(cmd.Context(), sheets.OAuth2Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				TokenFile:    tokenFile,
				ListenAddr:   listenAddr,
			})
			if err != nil {
				return fmt.Errorf("oauth2 flow failed: %w", err)
			}
			if err := sheets.SaveToken(tokenFile, token); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess("Token saved to "+tokenFile))
			fmt.Fprintln(out, cli.FormatInfo("Add this to your environment:"))
			fmt.Fprintf(out, "  export GOOGLE_SHEETS_REFRESH_TOKEN=%s\n", token.RefreshToken)
			return nil
		},
	}

	cmd.Flags().StringVar(&tokenFile, "token-file", "", "where to store the token (default: next to the journal)")
	cmd.Flags().StringVar(&listenAddr, "listen", "localhost:8080", "address of the local OAuth2 callback")
	return cmd
}
