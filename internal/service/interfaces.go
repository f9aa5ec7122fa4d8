// Package service defines the interfaces for all application services.
package service

import (
	"context"

	"github.com/Veraticus/policybook/internal/model"
)

// ClientStore defines the contract for the client persistence layer.
// Columns are 1-based and relative to the first column of the client table.
type ClientStore interface {
	Insert(client model.Client) error
	UpdateByColumn(column int, match string, client model.Client) (bool, error)
	ShiftDate(column int, match string, dateColumn, days int) (bool, error)
	RemoveByColumn(column int, match string) (bool, error)
	LoadAll() ([]model.Client, error)
	OverwriteAll(clients []model.Client) error
	Ratio() float64
}

// Mailer delivers HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Invoicer issues invoices and returns a link to the issued document.
type Invoicer interface {
	CreateInvoice(ctx context.Context, req model.InvoiceRequest) (string, error)
}

// RunJournal records the history of notify-and-purge runs.
type RunJournal interface {
	RecordRun(ctx context.Context, run *model.Run) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	Close() error
}

// ClientExporter mirrors the client book to an external destination.
type ClientExporter interface {
	Export(ctx context.Context, clients []model.Client) error
}
