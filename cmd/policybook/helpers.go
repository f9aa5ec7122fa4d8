package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/policybook/internal/common"
	"github.com/Veraticus/policybook/internal/config"
	"github.com/Veraticus/policybook/internal/engine"
	"github.com/Veraticus/policybook/internal/invoice"
	"github.com/Veraticus/policybook/internal/ledger"
	"github.com/Veraticus/policybook/internal/mailer"
	"github.com/Veraticus/policybook/internal/service"
	"github.com/Veraticus/policybook/internal/storage"
)

// collaborators selects which external services an engine is wired to.
type collaborators int

const (
	bookOnly collaborators = iota
	withReminders
)

// session is one opened client book with its engine.
type session struct {
	table  *ledger.ClientTable
	engine *engine.ClientEngine
}

func (s *session) Close() {
	if err := s.table.Close(); err != nil {
		slog.Error("failed to close workbook", "error", err)
	}
}

// openSession opens the workbook afresh and builds an engine over it.
// withReminders also requires working SMTP and invoicing settings.
func openSession(cfg *config.AppConfig, wiring collaborators) (*session, error) {
	var (
		m   service.Mailer
		inv service.Invoicer
	)
	if wiring == withReminders {
		smtpMailer, err := mailer.New(cfg.Mailer)
		if err != nil {
			return nil, common.NewUserError("SMTP is not configured (set SMTP_SERVER and SENDER_EMAIL)", err)
		}
		invoicer, err := invoice.NewClient(cfg.Invoice)
		if err != nil {
			return nil, common.NewUserError("Invoicing is not configured (set INVOICE_API_TOKEN and INVOICE_DOMAIN)", err)
		}
		m, inv = smtpMailer, invoicer
	}

	table, err := ledger.Open(ledger.Options{
		Path:   cfg.Workbook.Path,
		Layout: cfg.Layout,
		Styles: cfg.Styles,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", cfg.Workbook.Path, err)
	}

	return &session{
		table:  table,
		engine: engine.NewWithConfig(table, m, inv, cfg.Engine),
	}, nil
}

// initStorage opens the run journal and applies migrations.
func initStorage(ctx context.Context, cfg *config.AppConfig) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Journal.Path)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func closeStorage(store service.RunJournal) {
	if err := store.Close(); err != nil {
		slog.Error("failed to close storage", "error", err)
	}
}
