package invoice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/policybook/internal/common"
	"github.com/Veraticus/policybook/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.APIToken = "token-123"
	cfg.BaseURL = server.URL
	cfg.SellerName = "Insurance Agent"
	cfg.RetryDelay = time.Millisecond

	client, err := NewClient(cfg)
	require.NoError(t, err)
	client.now = func() time.Time { return time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC) }
	return client
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		wantErr error
		mutate  func(*Config)
		name    string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.APIToken = "" }, wantErr: common.ErrMissingConfig},
		{name: "missing domain", mutate: func(c *Config) { c.Domain = "" }, wantErr: common.ErrMissingConfig},
		{name: "base url instead of domain", mutate: func(c *Config) { c.Domain = ""; c.BaseURL = "http://localhost" }},
		{name: "negative payment term", mutate: func(c *Config) { c.PaymentTermDays = -1 }, wantErr: common.ErrInvalidConfig},
		{name: "vat out of range", mutate: func(c *Config) { c.VATRate = 123 }, wantErr: common.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.APIToken = "token"
			cfg.Domain = "agent"
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewClient_DomainURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIToken = "token"
	cfg.Domain = "agent"

	client, err := NewClient(cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://agent.fakturownia.pl", client.baseURL)
	assert.Equal(t, 10*time.Second, client.httpClient.Timeout)
}

func TestCreateInvoice(t *testing.T) {
	var received map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/invoices.json", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 42, "number": "FV 1/06/2025", "view_url": "https://agent.fakturownia.pl/invoice/abc"}`))
	})

	url, err := client.CreateInvoice(context.Background(), model.InvoiceRequest{
		ClientName:  "Jan Kowalski",
		ClientEmail: "jan@example.com",
		ClientTaxNo: "123-456-78-90",
		ItemName:    "Insurance policy for car model Fiat",
		Quantity:    1,
		UnitPrice:   decimal.NewFromInt(700),
	})
	require.NoError(t, err)
	assert.Equal(t, "https://agent.fakturownia.pl/invoice/abc", url)

	assert.Equal(t, "token-123", received["api_token"])
	invoice, ok := received["invoice"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "vat", invoice["kind"])
	assert.Equal(t, "2025-06-16", invoice["sell_date"])
	assert.Equal(t, "2025-06-16", invoice["issue_date"])
	assert.Equal(t, "2025-06-23", invoice["payment_to"])
	assert.Equal(t, "Insurance Agent", invoice["seller_name"])
	assert.Equal(t, "Jan Kowalski", invoice["buyer_name"])
	assert.Equal(t, "123-456-78-90", invoice["buyer_tax_no"])

	positions, ok := invoice["positions"].([]any)
	require.True(t, ok)
	require.Len(t, positions, 1)
	pos := positions[0].(map[string]any)
	assert.Equal(t, "Insurance policy for car model Fiat", pos["name"])
	assert.InDelta(t, 23, pos["tax"], 0)
	assert.InDelta(t, 700, pos["total_price_gross"], 0)
	assert.InDelta(t, 1, pos["quantity"], 0)
}

func TestCreateInvoice_MissingViewURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id": 1}`))
	})

	url, err := client.CreateInvoice(context.Background(), model.InvoiceRequest{ClientEmail: "jan@example.com", UnitPrice: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Equal(t, "N/A", url)
}

func TestCreateInvoice_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, `{"code":"error","message":"buyer_name missing"}`, http.StatusUnprocessableEntity)
	})

	_, err := client.CreateInvoice(context.Background(), model.InvoiceRequest{ClientEmail: "jan@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPI)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "jan@example.com")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateInvoice_ServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.CreateInvoice(context.Background(), model.InvoiceRequest{ClientEmail: "jan@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAPI)
	assert.NotErrorIs(t, err, common.ErrMaxRetries)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(1), calls.Load(), "the invoice may already exist")
}

func TestCreateInvoice_TimeoutIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(`{"id": 7}`))
	})
	client.httpClient.Timeout = 10 * time.Millisecond

	_, err := client.CreateInvoice(context.Background(), model.InvoiceRequest{ClientEmail: "jan@example.com"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrMaxRetries)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateInvoice_RetriesRefusedConnection(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	cfg := DefaultConfig()
	cfg.APIToken = "token-123"
	cfg.BaseURL = server.URL
	cfg.RetryDelay = time.Millisecond
	client, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = client.CreateInvoice(context.Background(), model.InvoiceRequest{ClientEmail: "jan@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMaxRetries)
}

func TestListInvoices_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"id": 7}]`))
	})

	invoices, err := client.ListInvoices(context.Background(), 1, 5)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCreateInvoice_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.CreateInvoice(context.Background(), model.InvoiceRequest{ClientEmail: "jan@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrMaxRetries)
	assert.ErrorIs(t, err, common.ErrRateLimit)
	assert.Equal(t, int32(3), calls.Load())
}

func TestListInvoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/invoices.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "token-123", q.Get("api_token"))
		assert.Equal(t, "desc", q.Get("sort"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "10", q.Get("per_page"))

		_, _ = w.Write([]byte(`[
			{"id": 2, "number": "FV 2", "buyer_name": "Anna", "price_gross": "500.00", "status": "issued", "issue_date": "2025-06-17", "payment_to": "2025-06-24"},
			{"id": 1, "number": "FV 1", "buyer_name": "Jan", "price_gross": "700.00", "status": "paid"}
		]`))
	})

	invoices, err := client.ListInvoices(context.Background(), 2, 10)
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, int64(2), invoices[0].ID)
	assert.Equal(t, "FV 2", invoices[0].Number)
	assert.Equal(t, "Anna", invoices[0].BuyerName)
	assert.Equal(t, "2025-06-24", invoices[0].PaymentTo)
	assert.True(t, decimal.NewFromInt(500).Equal(invoices[0].PriceGross))
	assert.Equal(t, "paid", invoices[1].Status)
}

func TestUpdateInvoice(t *testing.T) {
	var received map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/invoices/42.json", r.URL.Path)
		assert.Equal(t, "token-123", r.URL.Query().Get("api_token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"id": 42, "buyer_name": "Arkadiusz", "price_gross": "1000.0"}`))
	})

	invoice, err := client.UpdateInvoice(context.Background(), 42, Update{
		BuyerName:  "Arkadiusz",
		PriceGross: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), invoice.ID)
	assert.Equal(t, "Arkadiusz", invoice.BuyerName)

	_, hasToken := received["api_token"]
	assert.False(t, hasToken, "token travels in the query string")
	body := received["invoice"].(map[string]any)
	assert.Equal(t, "Arkadiusz", body["buyer_name"])
	positions := body["positions"].([]any)
	assert.InDelta(t, 1000, positions[0].(map[string]any)["total_price_gross"], 0)
}
