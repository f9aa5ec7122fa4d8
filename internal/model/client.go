// Package model defines the domain types shared across the application.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used for payment dates.
const DateLayout = "2006-01-02"

// ClientFieldCount is the number of columns a client occupies in the primary table.
const ClientFieldCount = 7

// ErrInvalidClient is returned when a client fails validation.
var ErrInvalidClient = errors.New("invalid client")

// Client represents an insured client and their policy details.
// NextPayment holds the raw ISO date as stored in the workbook; it may be
// unparsable when the sheet was edited by hand.
type Client struct {
	Name             string
	Email            string
	InsuranceCompany string
	CarModel         string
	NextPayment      string
	CarYear          int
	Price            int
}

// NewClient builds a client with the next payment date serialized as an ISO date.
func NewClient(name, email, company, carModel string, carYear, price int, nextPayment time.Time) Client {
	return Client{
		Name:             name,
		Email:            email,
		InsuranceCompany: company,
		CarModel:         carModel,
		CarYear:          carYear,
		Price:            price,
		NextPayment:      nextPayment.Format(DateLayout),
	}
}

// Values returns the client fields in table column order.
func (c Client) Values() []any {
	return []any{
		c.Name,
		c.Email,
		c.InsuranceCompany,
		c.CarModel,
		c.CarYear,
		c.Price,
		c.NextPayment,
	}
}

// DueDate parses the next payment date.
func (c Client) DueDate() (time.Time, error) {
	return ParseDate(c.NextPayment)
}

// Validate checks the fields required to store a client.
func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidClient)
	}
	if strings.TrimSpace(c.Email) == "" {
		return fmt.Errorf("%w: missing email", ErrInvalidClient)
	}
	if !strings.Contains(c.Email, "@") {
		return fmt.Errorf("%w: malformed email %q", ErrInvalidClient, c.Email)
	}
	if _, err := c.DueDate(); err != nil {
		return fmt.Errorf("%w: next payment %q: %v", ErrInvalidClient, c.NextPayment, err)
	}
	return nil
}

// ParseDate parses an ISO date, ignoring any time-of-day suffix
// such as "2025-08-15 00:00:00".
func ParseDate(value string) (time.Time, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return time.Time{}, fmt.Errorf("empty date")
	}
	return time.Parse(DateLayout, fields[0])
}

// Today truncates t to a calendar date in UTC so date arithmetic ignores
// the clock and the local offset.
func Today(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Today(b).Sub(Today(a)).Hours() / 24)
}

// Primary table columns, 1-based relative to the table's first column.
const (
	ColumnName = iota + 1
	ColumnEmail
	ColumnInsuranceCompany
	ColumnCarModel
	ColumnCarYear
	ColumnPrice
	ColumnNextPayment
)
