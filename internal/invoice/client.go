// Package invoice is a client for the Fakturownia invoicing API.
package invoice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/policybook/internal/common"
	"github.com/Veraticus/policybook/internal/model"
	"github.com/shopspring/decimal"
)

// ErrAPI is returned for non-2xx responses.
var ErrAPI = errors.New("invoicing API error")

// Config holds the invoicing account settings.
type Config struct {
	APIToken        string        `mapstructure:"api_token"`
	Domain          string        `mapstructure:"domain"`
	BaseURL         string        `mapstructure:"base_url"`
	SellerName      string        `mapstructure:"seller_name"`
	SellerTaxNo     string        `mapstructure:"seller_tax_no"`
	VATRate         int           `mapstructure:"vat_rate"`
	PaymentTermDays int           `mapstructure:"payment_term_days"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

// DefaultConfig returns the standard invoicing settings.
func DefaultConfig() Config {
	return Config{
		VATRate:         23,
		PaymentTermDays: 7,
		Timeout:         10 * time.Second,
		RetryAttempts:   3,
		RetryDelay:      time.Second,
	}
}

// Validate checks that the account can be reached.
func (c Config) Validate() error {
	if c.APIToken == "" {
		return fmt.Errorf("%w: invoice api token", common.ErrMissingConfig)
	}
	if c.Domain == "" && c.BaseURL == "" {
		return fmt.Errorf("%w: invoice domain", common.ErrMissingConfig)
	}
	if c.PaymentTermDays < 0 {
		return fmt.Errorf("%w: payment term cannot be negative", common.ErrInvalidConfig)
	}
	if c.VATRate < 0 || c.VATRate > 100 {
		return fmt.Errorf("%w: vat rate %d", common.ErrInvalidConfig, c.VATRate)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry attempts cannot be negative", common.ErrInvalidConfig)
	}
	return nil
}

// Client implements service.Invoicer over the Fakturownia REST API.
type Client struct {
	httpClient *http.Client
	now        func() time.Time
	baseURL    string
	config     Config
}

// NewClient creates an invoicing client. BaseURL overrides the
// https://<domain>.fakturownia.pl endpoint.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	defaults := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.VATRate == 0 {
		config.VATRate = defaults.VATRate
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.fakturownia.pl", config.Domain)
	}

	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		now:        time.Now,
		baseURL:    baseURL,
		config:     config,
	}, nil
}

type position struct {
	Name            string      `json:"name"`
	TotalPriceGross json.Number `json:"total_price_gross"`
	Tax             int         `json:"tax"`
	Quantity        int         `json:"quantity,omitempty"`
}

type invoiceBody struct {
	Kind        string     `json:"kind,omitempty"`
	SellDate    string     `json:"sell_date,omitempty"`
	IssueDate   string     `json:"issue_date,omitempty"`
	PaymentTo   string     `json:"payment_to,omitempty"`
	SellerName  string     `json:"seller_name,omitempty"`
	SellerTaxNo string     `json:"seller_tax_no,omitempty"`
	BuyerName   string     `json:"buyer_name,omitempty"`
	BuyerEmail  string     `json:"buyer_email,omitempty"`
	BuyerTaxNo  string     `json:"buyer_tax_no,omitempty"`
	Status      string     `json:"status,omitempty"`
	Positions   []position `json:"positions,omitempty"`
}

type invoicePayload struct {
	APIToken string      `json:"api_token,omitempty"`
	Invoice  invoiceBody `json:"invoice"`
}

type invoiceResponse struct {
	PriceGross decimal.Decimal `json:"price_gross"`
	Number     string          `json:"number"`
	BuyerName  string          `json:"buyer_name"`
	IssueDate  string          `json:"issue_date"`
	PaymentTo  string          `json:"payment_to"`
	ViewURL    string          `json:"view_url"`
	Status     string          `json:"status"`
	ID         int64           `json:"id"`
}

func (r invoiceResponse) toModel() model.Invoice {
	return model.Invoice{
		ID:         r.ID,
		Number:     r.Number,
		BuyerName:  r.BuyerName,
		IssueDate:  r.IssueDate,
		PaymentTo:  r.PaymentTo,
		ViewURL:    r.ViewURL,
		Status:     r.Status,
		PriceGross: r.PriceGross,
	}
}

// CreateInvoice issues a VAT invoice dated today and returns its view URL.
func (c *Client) CreateInvoice(ctx context.Context, req model.InvoiceRequest) (string, error) {
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	today := c.now()
	gross := req.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))

	payload := invoicePayload{
		APIToken: c.config.APIToken,
		Invoice: invoiceBody{
			Kind:        "vat",
			SellDate:    today.Format(model.DateLayout),
			IssueDate:   today.Format(model.DateLayout),
			PaymentTo:   today.AddDate(0, 0, c.config.PaymentTermDays).Format(model.DateLayout),
			SellerName:  c.config.SellerName,
			SellerTaxNo: c.config.SellerTaxNo,
			BuyerName:   req.ClientName,
			BuyerEmail:  req.ClientEmail,
			BuyerTaxNo:  req.ClientTaxNo,
			Positions: []position{{
				Name:            req.ItemName,
				Tax:             c.config.VATRate,
				TotalPriceGross: json.Number(gross.String()),
				Quantity:        quantity,
			}},
		},
	}

	var resp invoiceResponse
	if err := c.do(ctx, http.MethodPost, "/invoices.json", nil, payload, &resp); err != nil {
		return "", fmt.Errorf("create invoice for %s: %w", req.ClientEmail, err)
	}

	slog.Info("Invoice created", "email", req.ClientEmail, "number", resp.Number, "id", resp.ID)
	if resp.ViewURL == "" {
		return "N/A", nil
	}
	return resp.ViewURL, nil
}

// ListInvoices returns one page of invoices, newest first.
func (c *Client) ListInvoices(ctx context.Context, page, perPage int) ([]model.Invoice, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 5
	}
	query := url.Values{}
	query.Set("sort", "desc")
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	var resp []invoiceResponse
	if err := c.do(ctx, http.MethodGet, "/invoices.json", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}

	invoices := make([]model.Invoice, len(resp))
	for i, r := range resp {
		invoices[i] = r.toModel()
	}
	return invoices, nil
}

// Update holds the invoice fields that can be changed. Zero values are
// left unchanged.
type Update struct {
	PriceGross decimal.Decimal
	BuyerName  string
	Status     string
}

// UpdateInvoice changes an existing invoice and returns it as stored.
func (c *Client) UpdateInvoice(ctx context.Context, id int64, update Update) (*model.Invoice, error) {
	body := invoiceBody{
		SellerName: c.config.SellerName,
		BuyerName:  update.BuyerName,
		Status:     update.Status,
	}
	if !update.PriceGross.IsZero() {
		body.Positions = []position{{
			TotalPriceGross: json.Number(update.PriceGross.String()),
			Tax:             c.config.VATRate,
		}}
	}

	query := url.Values{}
	query.Set("api_token", c.config.APIToken)

	var resp invoiceResponse
	path := fmt.Sprintf("/invoices/%d.json", id)
	if err := c.do(ctx, http.MethodPut, path, query, invoicePayload{Invoice: body}, &resp); err != nil {
		return nil, fmt.Errorf("update invoice %d: %w", id, err)
	}
	invoice := resp.toModel()
	return &invoice, nil
}

// do sends one JSON request. Rate limits are always retried. Server errors
// and transport failures are retried for idempotent methods only; a POST is
// resent only when the connection was never established, so a lost response
// cannot create a second invoice.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	if query == nil {
		query = url.Values{}
	}
	if method == http.MethodGet && query.Get("api_token") == "" {
		query.Set("api_token", c.config.APIToken)
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	idempotent := method != http.MethodPost
	retry := common.RetryOptions{
		MaxAttempts:  max(c.config.RetryAttempts, 1),
		InitialDelay: c.config.RetryDelay,
		MaxDelay:     c.config.RetryDelay * 8,
	}

	return common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
		if err != nil {
			return &common.RetryableError{Err: fmt.Errorf("create request: %w", err), Retryable: false}
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			err = fmt.Errorf("send request: %w", err)
			if ctx.Err() != nil || !(idempotent || isDialError(err)) {
				return &common.RetryableError{Err: err, Retryable: false}
			}
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return statusError(resp, idempotent)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &common.RetryableError{Err: fmt.Errorf("decode response: %w", err), Retryable: false}
		}
		return nil
	}, retry)
}

// isDialError reports whether err happened before the request was sent.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func statusError(resp *http.Response, idempotent bool) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("%w: %d - %s", ErrAPI, resp.StatusCode, strings.TrimSpace(string(body)))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", common.ErrRateLimit, err)
	case resp.StatusCode >= 500 && idempotent:
		return err
	default:
		return &common.RetryableError{Err: err, Retryable: false}
	}
}
