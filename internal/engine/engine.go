// Package engine implements the client book operations: registration,
// payment tracking, due-date reminders and the overdue purge.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/policybook/internal/common"
	"github.com/Veraticus/policybook/internal/model"
	"github.com/Veraticus/policybook/internal/service"
)

// ClientEngine orchestrates client book operations over a store and the
// mail and invoice collaborators.
type ClientEngine struct {
	store    service.ClientStore
	mailer   service.Mailer
	invoicer service.Invoicer
	now      func() time.Time
	config   Config
}

// Config holds configuration options for the client engine.
type Config struct {
	Now          func() time.Time `mapstructure:"-"`
	BuyerTaxNo   string           `mapstructure:"buyer_tax_no"`
	Subject      string           `mapstructure:"subject"`
	ItemTemplate string           `mapstructure:"item_template"`
	PaymentDays  int              `mapstructure:"payment_days"`
	DaysAhead    int              `mapstructure:"days_ahead"`
	OverdueDays  int              `mapstructure:"overdue_days"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		BuyerTaxNo:   "123-456-78-90",
		Subject:      "Payment for insurance policy",
		ItemTemplate: "Insurance policy for car model %s",
		PaymentDays:  30,
		DaysAhead:    1,
		OverdueDays:  3,
	}
}

// New creates a client engine with the default configuration.
func New(store service.ClientStore, mailer service.Mailer, invoicer service.Invoicer) *ClientEngine {
	return NewWithConfig(store, mailer, invoicer, DefaultConfig())
}

// NewWithConfig creates a client engine with a custom configuration. Blank
// strings fall back to DefaultConfig; day counts are taken as given, so
// start from DefaultConfig.
func NewWithConfig(store service.ClientStore, mailer service.Mailer, invoicer service.Invoicer, config Config) *ClientEngine {
	defaults := DefaultConfig()
	if config.BuyerTaxNo == "" {
		config.BuyerTaxNo = defaults.BuyerTaxNo
	}
	if config.Subject == "" {
		config.Subject = defaults.Subject
	}
	if config.ItemTemplate == "" {
		config.ItemTemplate = defaults.ItemTemplate
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &ClientEngine{
		store:    store,
		mailer:   mailer,
		invoicer: invoicer,
		now:      now,
		config:   config,
	}
}

// Config returns the engine configuration with defaults applied.
func (e *ClientEngine) Config() Config {
	return e.config
}

// AddClient stores a new client. The email must not be taken.
func (e *ClientEngine) AddClient(ctx context.Context, client model.Client) error {
	exists, err := e.ClientExists(ctx, client.Email)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: client with email %s already exists", common.ErrDuplicateEntry, client.Email)
	}
	if err := e.store.Insert(client); err != nil {
		return fmt.Errorf("failed to add client %s: %w", client.Email, err)
	}
	slog.Info("Added client", "email", client.Email, "company", client.InsuranceCompany)
	return nil
}

// UpdateClient replaces the client identified by email. Changing the email
// to one already used by another client is rejected.
func (e *ClientEngine) UpdateClient(ctx context.Context, email string, client model.Client) error {
	if email != client.Email {
		exists, err := e.ClientExists(ctx, client.Email)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: client with email %s already exists", common.ErrDuplicateEntry, client.Email)
		}
	}

	found, err := e.store.UpdateByColumn(model.ColumnEmail, email, client)
	if err != nil {
		return fmt.Errorf("failed to update client %s: %w", email, err)
	}
	if !found {
		return fmt.Errorf("%w: client with email %s", common.ErrNotFound, email)
	}
	slog.Info("Updated client", "email", email, "new_email", client.Email)
	return nil
}

// ConfirmPayment shifts the client's next payment date by days. Negative
// values move it back. Callers without an explicit period pass
// Config().PaymentDays.
func (e *ClientEngine) ConfirmPayment(ctx context.Context, email string, days int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	found, err := e.store.ShiftDate(model.ColumnEmail, email, model.ColumnNextPayment, days)
	if err != nil {
		return fmt.Errorf("failed to confirm payment for %s: %w", email, err)
	}
	if !found {
		return fmt.Errorf("%w: client with email %s", common.ErrNotFound, email)
	}
	slog.Info("Confirmed payment", "email", email, "days", days)
	return nil
}

// RemoveClient deletes the client identified by email.
func (e *ClientEngine) RemoveClient(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	found, err := e.store.RemoveByColumn(model.ColumnEmail, email)
	if err != nil {
		return fmt.Errorf("failed to remove client %s: %w", email, err)
	}
	if !found {
		return fmt.Errorf("%w: client with email %s", common.ErrNotFound, email)
	}
	slog.Info("Removed client", "email", email)
	return nil
}

// ClientExists reports whether a client with the given email is stored.
func (e *ClientEngine) ClientExists(ctx context.Context, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	clients, err := e.store.LoadAll()
	if err != nil {
		return false, fmt.Errorf("failed to load clients: %w", err)
	}
	for _, c := range clients {
		if c.Email == email {
			return true, nil
		}
	}
	return false, nil
}

// Clients returns every stored client in table order.
func (e *ClientEngine) Clients(ctx context.Context) ([]model.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clients, err := e.store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}
	return clients, nil
}

// PurgeOverdue removes clients whose payment is overdueDays or more days
// late and returns their emails. Clients with an unreadable payment date
// are kept. An overdueDays of 0 purges every client due today or earlier.
func (e *ClientEngine) PurgeOverdue(ctx context.Context, overdueDays int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clients, err := e.store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}

	today := model.Today(e.now())
	kept := make([]model.Client, 0, len(clients))
	var purged []string
	for _, c := range clients {
		due, err := c.DueDate()
		if err != nil {
			kept = append(kept, c)
			continue
		}
		if model.DaysBetween(due, today) < overdueDays {
			kept = append(kept, c)
			continue
		}
		purged = append(purged, c.Email)
	}

	if err := e.store.OverwriteAll(kept); err != nil {
		return nil, fmt.Errorf("failed to rewrite clients: %w", err)
	}
	if len(purged) > 0 {
		slog.Info("Purged overdue clients", "count", len(purged), "emails", purged)
	}
	return purged, nil
}
