package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/Veraticus/policybook/internal/common"
	"github.com/Veraticus/policybook/internal/model"
	"github.com/shopspring/decimal"
)

// NotifyResult lists the outcome of a reminder pass.
type NotifyResult struct {
	Notified []string
	Failed   []string
}

var reminderTemplate = template.Must(template.New("reminder").Parse(`<html>
  <body>
    <p>Hello {{.Name}},</p>
    <p>We would like to remind you that the payment deadline for your insurance policy for the
    {{.CarModel}} is on <b>{{.DueDate}}</b>.</p>
    <p>Please make sure to complete the payment on time.</p>
    <p>Your invoice <a href="{{.InvoiceURL}}">Link</a></p>
  </body>
</html>
`))

type reminderData struct {
	Name       string
	CarModel   string
	DueDate    string
	InvoiceURL string
}

// RenderReminder builds the HTML body of a payment reminder.
func RenderReminder(client model.Client, dueDate, invoiceURL string) (string, error) {
	var buf bytes.Buffer
	err := reminderTemplate.Execute(&buf, reminderData{
		Name:       client.Name,
		CarModel:   client.CarModel,
		DueDate:    dueDate,
		InvoiceURL: invoiceURL,
	})
	if err != nil {
		return "", fmt.Errorf("render reminder: %w", err)
	}
	return buf.String(), nil
}

// NotifyDueWithin issues an invoice and sends a reminder to every client
// whose payment falls exactly daysAhead days from today; 0 means today.
// Clients with an unreadable date are skipped. A failed invoice skips that
// client's email; invoice failures are returned joined once every client
// was processed.
// Email failures are logged and reported in the result only.
func (e *ClientEngine) NotifyDueWithin(ctx context.Context, daysAhead int) (NotifyResult, error) {
	var result NotifyResult

	clients, err := e.Clients(ctx)
	if err != nil {
		return result, err
	}

	target := model.Today(e.now()).AddDate(0, 0, daysAhead)
	var invoiceErrs []error
	for _, c := range clients {
		if err := ctx.Err(); err != nil {
			return result, errors.Join(append(invoiceErrs, err)...)
		}

		due, err := c.DueDate()
		if err != nil {
			slog.Debug("Skipping client with unreadable payment date", "email", c.Email, "next_payment", c.NextPayment)
			continue
		}
		if !due.Equal(target) {
			continue
		}

		if err := e.notifyClient(ctx, c, due.Format(model.DateLayout)); err != nil {
			result.Failed = append(result.Failed, c.Email)
			if errors.Is(err, common.ErrInvoiceFailed) {
				invoiceErrs = append(invoiceErrs, err)
			}
			continue
		}
		result.Notified = append(result.Notified, c.Email)
	}

	return result, errors.Join(invoiceErrs...)
}

func (e *ClientEngine) notifyClient(ctx context.Context, c model.Client, dueDate string) error {
	url, err := e.invoicer.CreateInvoice(ctx, e.invoiceRequest(c))
	if err != nil {
		common.LogError(err, "Failed to create invoice", common.Fields{"email": c.Email})
		return fmt.Errorf("%w for %s: %w", common.ErrInvoiceFailed, c.Email, err)
	}

	body, err := RenderReminder(c, dueDate, url)
	if err != nil {
		return err
	}
	if err := e.mailer.Send(ctx, c.Email, e.config.Subject, body); err != nil {
		common.LogError(err, "Failed to send reminder", common.Fields{"email": c.Email})
		return fmt.Errorf("%w for %s: %w", common.ErrEmailFailed, c.Email, err)
	}

	slog.Info("Reminder sent", "email", c.Email, "due_date", dueDate)
	return nil
}

func (e *ClientEngine) invoiceRequest(c model.Client) model.InvoiceRequest {
	return model.InvoiceRequest{
		ClientName:  c.Name,
		ClientEmail: c.Email,
		ClientTaxNo: e.config.BuyerTaxNo,
		ItemName:    fmt.Sprintf(e.config.ItemTemplate, c.CarModel),
		Quantity:    1,
		UnitPrice:   decimal.NewFromInt(int64(c.Price)),
	}
}
