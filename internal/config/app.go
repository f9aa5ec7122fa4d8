package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/policybook/internal/common"
	"github.com/Veraticus/policybook/internal/engine"
	"github.com/Veraticus/policybook/internal/invoice"
	"github.com/Veraticus/policybook/internal/ledger"
	"github.com/Veraticus/policybook/internal/mailer"
	"github.com/Veraticus/policybook/internal/scheduler"
	"github.com/Veraticus/policybook/internal/sheets"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the application reads,
// except for the legacy names bound in legacyEnv.
const EnvPrefix = "POLICYBOOK"

// legacyEnv maps configuration keys to the bare variable names older
// deployments used.
var legacyEnv = map[string]string{
	"smtp.server":          "SMTP_SERVER",
	"smtp.port":            "SMTP_PORT",
	"smtp.sender_email":    "SENDER_EMAIL",
	"smtp.sender_password": "SENDER_PASSWORD",
	"invoice.api_token":    "INVOICE_API_TOKEN",
	"invoice.domain":       "INVOICE_DOMAIN",
}

// WorkbookConfig locates the client book.
type WorkbookConfig struct {
	Path string `mapstructure:"path"`
}

// ScheduleConfig controls the periodic notify-and-purge job.
type ScheduleConfig struct {
	Spec     string        `mapstructure:"spec"`
	Interval time.Duration `mapstructure:"interval"`
}

// JournalConfig locates the run journal database.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// AppConfig is the complete application configuration.
type AppConfig struct {
	Styles   ledger.Styles  `mapstructure:"styles"`
	Workbook WorkbookConfig `mapstructure:"workbook"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Mailer   mailer.Config  `mapstructure:"smtp"`
	Invoice  invoice.Config `mapstructure:"invoice"`
	Sheets   sheets.Config  `mapstructure:"sheets"`
	Engine   engine.Config  `mapstructure:"engine"`
	Layout   ledger.Layout  `mapstructure:"layout"`
}

// Default returns the configuration used when nothing is set.
func Default() AppConfig {
	return AppConfig{
		Workbook: WorkbookConfig{Path: "~/.local/share/policybook/clients.xlsx"},
		Journal:  JournalConfig{Path: "~/.local/share/policybook/journal.db"},
		Schedule: ScheduleConfig{Interval: scheduler.DefaultInterval},
		Layout:   ledger.DefaultLayout(),
		Styles:   ledger.DefaultStyles(),
		Engine:   engine.DefaultConfig(),
		Mailer:   mailer.DefaultConfig(),
		Invoice:  invoice.DefaultConfig(),
		Sheets:   sheets.DefaultConfig(),
	}
}

// BindEnv wires environment variables into v: POLICYBOOK_<SECTION>_<KEY>
// for every known key, plus the legacy names.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range envKeys {
		names := []string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// envKeys are the scalar keys that can be set from the environment.
var envKeys = []string{
	"workbook.path",
	"journal.path",
	"schedule.spec",
	"schedule.interval",
	"layout.sheet",
	"layout.ratio",
	"layout.currency",
	"engine.buyer_tax_no",
	"engine.subject",
	"engine.payment_days",
	"engine.days_ahead",
	"engine.overdue_days",
	"smtp.server",
	"smtp.port",
	"smtp.sender_email",
	"smtp.sender_password",
	"smtp.tls_policy",
	"smtp.timeout",
	"invoice.api_token",
	"invoice.domain",
	"invoice.base_url",
	"invoice.seller_name",
	"invoice.seller_tax_no",
	"invoice.payment_term_days",
	"sheets.spreadsheet_id",
	"sheets.spreadsheet_name",
	"sheets.service_account_path",
	"sheets.client_id",
	"sheets.client_secret",
	"sheets.refresh_token",
}

// Load decodes v over the defaults. Lists set in v replace the default
// lists instead of being merged element by element.
func Load(v *viper.Viper) (*AppConfig, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	for key, target := range map[string]*[]string{
		"layout.main_headers":      &cfg.Layout.MainHeaders,
		"layout.company_headers":   &cfg.Layout.CompanyHeaders,
		"layout.summary_headers":   &cfg.Layout.SummaryHeaders,
		"layout.uppercase_columns": &cfg.Layout.UppercaseColumns,
	} {
		if v.IsSet(key) {
			*target = v.GetStringSlice(key)
		}
	}

	cfg.Workbook.Path = ExpandPath(cfg.Workbook.Path)
	cfg.Journal.Path = ExpandPath(cfg.Journal.Path)
	cfg.Sheets.ServiceAccountPath = ExpandPath(cfg.Sheets.ServiceAccountPath)
	cfg.Sheets.LoadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings every command needs. Collaborator settings
// are validated by the commands that use them.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Workbook.Path) == "" {
		return fmt.Errorf("%w: workbook path", common.ErrMissingConfig)
	}
	if strings.TrimSpace(c.Journal.Path) == "" {
		return fmt.Errorf("%w: journal path", common.ErrMissingConfig)
	}
	if c.Schedule.Interval < 0 {
		return fmt.Errorf("%w: schedule interval cannot be negative", common.ErrInvalidConfig)
	}
	if c.Layout.Ratio < 0 {
		return fmt.Errorf("%w: ratio cannot be negative", common.ErrInvalidConfig)
	}
	if c.Engine.PaymentDays < 0 || c.Engine.DaysAhead < 0 || c.Engine.OverdueDays < 0 {
		return fmt.Errorf("%w: engine day counts cannot be negative", common.ErrInvalidConfig)
	}
	return nil
}
