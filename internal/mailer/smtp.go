// Package mailer sends HTML email over SMTP.
package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/policybook/internal/common"
	"github.com/wneessen/go-mail"
)

// Config holds the SMTP connection settings.
type Config struct {
	Host      string        `mapstructure:"server"`
	From      string        `mapstructure:"sender_email"`
	Password  string        `mapstructure:"sender_password"`
	TLSPolicy string        `mapstructure:"tls_policy"`
	Port      int           `mapstructure:"port"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns STARTTLS on the submission port.
func DefaultConfig() Config {
	return Config{
		Port:      587,
		TLSPolicy: "mandatory",
		Timeout:   10 * time.Second,
	}
}

// Validate checks that the settings can open a connection.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: smtp server", common.ErrMissingConfig)
	}
	if c.From == "" {
		return fmt.Errorf("%w: sender email", common.ErrMissingConfig)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: smtp port %d out of range", common.ErrInvalidConfig, c.Port)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: smtp timeout cannot be negative", common.ErrInvalidConfig)
	}
	if _, err := c.tlsPolicy(); err != nil {
		return err
	}
	return nil
}

func (c Config) tlsPolicy() (mail.TLSPolicy, error) {
	switch strings.ToLower(c.TLSPolicy) {
	case "", "mandatory":
		return mail.TLSMandatory, nil
	case "opportunistic":
		return mail.TLSOpportunistic, nil
	case "none":
		return mail.NoTLS, nil
	default:
		return mail.TLSMandatory, fmt.Errorf("%w: tls policy %q", common.ErrInvalidConfig, c.TLSPolicy)
	}
}

// SMTPMailer implements service.Mailer. Every Send opens its own
// connection.
type SMTPMailer struct {
	config Config
	policy mail.TLSPolicy
}

// New validates the configuration and creates a mailer.
func New(config Config) (*SMTPMailer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	policy, _ := config.tlsPolicy()
	return &SMTPMailer{config: config, policy: policy}, nil
}

// BuildMessage assembles an HTML message from the configured sender.
func (m *SMTPMailer) BuildMessage(to, subject, html string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.config.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.config.From, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, html)
	return msg, nil
}

// Send delivers one HTML message.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, html string) error {
	msg, err := m.BuildMessage(to, subject, html)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrEmailFailed, err)
	}

	opts := []mail.Option{
		mail.WithPort(m.config.Port),
		mail.WithTimeout(m.config.Timeout),
		mail.WithTLSPolicy(m.policy),
	}
	if m.config.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.config.From),
			mail.WithPassword(m.config.Password),
		)
	}

	client, err := mail.NewClient(m.config.Host, opts...)
	if err != nil {
		return fmt.Errorf("%w: create smtp client: %w", common.ErrEmailFailed, err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: send to %s: %w", common.ErrEmailFailed, to, err)
	}

	common.LogDebug("Email sent", common.Fields{"to": to, "subject": subject})
	return nil
}
