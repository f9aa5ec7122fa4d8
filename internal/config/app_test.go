package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/policybook/internal/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	if yaml != "" {
		require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	}
	require.NoError(t, BindEnv(v))
	return v
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", "/home/agent")

	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/home/agent", ".local/share/policybook/clients.xlsx"), cfg.Workbook.Path)
	assert.Equal(t, 30*time.Second, cfg.Schedule.Interval)
	assert.Equal(t, "Clients", cfg.Layout.Sheet)
	assert.Len(t, cfg.Layout.MainHeaders, 7)
	assert.InDelta(t, 0.74, cfg.Layout.Ratio, 1e-9)
	assert.Equal(t, 587, cfg.Mailer.Port)
	assert.Equal(t, 30, cfg.Engine.PaymentDays)
	assert.Equal(t, 7, cfg.Invoice.PaymentTermDays)
	require.NotNil(t, cfg.Styles.Header)
}

func TestLoad_FileOverrides(t *testing.T) {
	yaml := `
workbook:
  path: /srv/book/clients.xlsx
schedule:
  spec: "0 8 * * *"
  interval: 5m
layout:
  sheet: Book
  ratio: 0.8
  main_headers: [NAME, EMAIL, COMPANY]
  company_column: COMPANY
  uppercase_columns: [COMPANY]
styles:
  overdue:
    fill:
      color: "#FF0000"
engine:
  overdue_days: 5
smtp:
  server: smtp.example.com
  port: 465
  tls_policy: opportunistic
invoice:
  domain: agency
  seller_name: Agency Sp. z o.o.
`
	cfg, err := Load(newViper(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, "/srv/book/clients.xlsx", cfg.Workbook.Path)
	assert.Equal(t, "0 8 * * *", cfg.Schedule.Spec)
	assert.Equal(t, 5*time.Minute, cfg.Schedule.Interval)
	assert.Equal(t, "Book", cfg.Layout.Sheet)
	assert.InDelta(t, 0.8, cfg.Layout.Ratio, 1e-9)
	assert.Equal(t, []string{"NAME", "EMAIL", "COMPANY"}, cfg.Layout.MainHeaders, "lists replace defaults")
	assert.Equal(t, []string{"COMPANY"}, cfg.Layout.UppercaseColumns)
	assert.Equal(t, "PRICE", cfg.Layout.PriceColumn, "unset keys keep defaults")

	require.NotNil(t, cfg.Styles.Overdue.Fill)
	assert.Equal(t, "#FF0000", cfg.Styles.Overdue.Fill.Color)
	require.NotNil(t, cfg.Styles.Header, "other presets keep defaults")

	assert.Equal(t, 5, cfg.Engine.OverdueDays)
	assert.Equal(t, 1, cfg.Engine.DaysAhead)
	assert.Equal(t, "smtp.example.com", cfg.Mailer.Host)
	assert.Equal(t, 465, cfg.Mailer.Port)
	assert.Equal(t, "opportunistic", cfg.Mailer.TLSPolicy)
	assert.Equal(t, "agency", cfg.Invoice.Domain)
	assert.Equal(t, "Agency Sp. z o.o.", cfg.Invoice.SellerName)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SMTP_SERVER", "legacy.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SENDER_EMAIL", "agent@example.com")
	t.Setenv("SENDER_PASSWORD", "s3cret")
	t.Setenv("INVOICE_API_TOKEN", "token-1")
	t.Setenv("INVOICE_DOMAIN", "legacy")
	t.Setenv("POLICYBOOK_WORKBOOK_PATH", "/data/clients.xlsx")
	t.Setenv("POLICYBOOK_ENGINE_DAYS_AHEAD", "2")

	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "legacy.example.com", cfg.Mailer.Host)
	assert.Equal(t, 2525, cfg.Mailer.Port)
	assert.Equal(t, "agent@example.com", cfg.Mailer.From)
	assert.Equal(t, "s3cret", cfg.Mailer.Password)
	assert.Equal(t, "token-1", cfg.Invoice.APIToken)
	assert.Equal(t, "legacy", cfg.Invoice.Domain)
	assert.Equal(t, "/data/clients.xlsx", cfg.Workbook.Path)
	assert.Equal(t, 2, cfg.Engine.DaysAhead)
	assert.NoError(t, cfg.Mailer.Validate())
	assert.NoError(t, cfg.Invoice.Validate())
}

func TestLoad_PrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("SMTP_SERVER", "legacy.example.com")
	t.Setenv("POLICYBOOK_SMTP_SERVER", "new.example.com")

	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "new.example.com", cfg.Mailer.Host)
}

func TestAppConfig_Validate(t *testing.T) {
	tests := []struct {
		mutate  func(*AppConfig)
		wantErr error
		name    string
	}{
		{name: "defaults", mutate: func(*AppConfig) {}},
		{name: "empty workbook path", mutate: func(c *AppConfig) { c.Workbook.Path = " " }, wantErr: common.ErrMissingConfig},
		{name: "empty journal path", mutate: func(c *AppConfig) { c.Journal.Path = "" }, wantErr: common.ErrMissingConfig},
		{name: "negative interval", mutate: func(c *AppConfig) { c.Schedule.Interval = -time.Second }, wantErr: common.ErrInvalidConfig},
		{name: "negative ratio", mutate: func(c *AppConfig) { c.Layout.Ratio = -1 }, wantErr: common.ErrInvalidConfig},
		{name: "negative overdue days", mutate: func(c *AppConfig) { c.Engine.OverdueDays = -3 }, wantErr: common.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/agent")
	t.Setenv("BOOK_DIR", "/srv/book")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: "/home/agent"},
		{in: "~/clients.xlsx", want: "/home/agent/clients.xlsx"},
		{in: "$BOOK_DIR/clients.xlsx", want: "/srv/book/clients.xlsx"},
		{in: "/abs/clients.xlsx", want: "/abs/clients.xlsx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandPath(tt.in), tt.in)
	}
}
