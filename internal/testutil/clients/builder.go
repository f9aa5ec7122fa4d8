// Package clients builds client fixtures for tests. Payment dates are set
// relative to a fixed reference day so that due and overdue scenarios stay
// stable regardless of when the tests run.
//
// Example usage:
//
//	now := time.Date(2025, 8, 10, 12, 0, 0, 0, time.UTC)
//	book := clients.NewBuilder(now).
//		WithFixture(clients.FixtureDueSoon).
//		WithClient("eve@example.com", clients.DueIn(30)).
//		Build()
package clients

import (
	"strings"
	"time"

	"github.com/Veraticus/policybook/internal/model"
)

type draft struct {
	rawDate *string
	client  model.Client
	dueIn   int
}

// Option adjusts a client produced by the builder.
type Option func(*draft)

// DueIn sets the next payment to days after the reference day. Negative
// values make the client overdue.
func DueIn(days int) Option {
	return func(d *draft) { d.dueIn = days }
}

// WithCompany sets the insurance company.
func WithCompany(company string) Option {
	return func(d *draft) { d.client.InsuranceCompany = company }
}

// WithPrice sets the policy price.
func WithPrice(price int) Option {
	return func(d *draft) { d.client.Price = price }
}

// WithNextPayment sets the raw payment date, which need not be valid.
func WithNextPayment(value string) Option {
	return func(d *draft) { d.rawDate = &value }
}

// Builder accumulates clients in insertion order.
type Builder struct {
	today   time.Time
	clients []model.Client
}

// NewBuilder creates a builder whose relative dates count from now's
// calendar day.
func NewBuilder(now time.Time) *Builder {
	return &Builder{today: model.Today(now)}
}

// WithClient adds a client identified by email. Unset fields get plausible
// defaults derived from the email; the payment is due on the reference day.
func (b *Builder) WithClient(email string, opts ...Option) *Builder {
	local, _, _ := strings.Cut(email, "@")
	name := local
	if name != "" {
		name = strings.ToUpper(name[:1]) + name[1:]
	}

	d := draft{client: model.Client{
		Name:             name,
		Email:            email,
		InsuranceCompany: "PZU",
		CarModel:         "Skoda Octavia",
		CarYear:          2019,
		Price:            1000,
	}}
	for _, opt := range opts {
		opt(&d)
	}

	d.client.NextPayment = b.today.AddDate(0, 0, d.dueIn).Format(model.DateLayout)
	if d.rawDate != nil {
		d.client.NextPayment = *d.rawDate
	}
	b.clients = append(b.clients, d.client)
	return b
}

// WithFixture adds every client of a fixture.
func (b *Builder) WithFixture(f Fixture) *Builder {
	for _, e := range f.entries {
		b.WithClient(e.email, e.opts...)
	}
	return b
}

// Build returns a copy of the accumulated clients.
func (b *Builder) Build() []model.Client {
	out := make([]model.Client, len(b.clients))
	copy(out, b.clients)
	return out
}
