package model

import "github.com/shopspring/decimal"

// InvoiceRequest describes an invoice to be issued for a client.
type InvoiceRequest struct {
	UnitPrice   decimal.Decimal
	ClientName  string
	ClientEmail string
	ClientTaxNo string
	ItemName    string
	Quantity    int
}

// Invoice is an invoice as returned by the invoicing API.
type Invoice struct {
	PriceGross decimal.Decimal
	Number     string
	BuyerName  string
	IssueDate  string
	PaymentTo  string
	ViewURL    string
	Status     string
	ID         int64
}
