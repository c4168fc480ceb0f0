package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/careflow-api/internal/config"
)

// Sender delivers plain notification emails to patients
type Sender interface {
	Send(ctx context.Context, to, name, subject, body string) error
}

// Dialer is the part of gomail.Dialer the SMTP sender needs
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPSender struct {
	dialer Dialer
	from   string
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return NewSMTPSenderWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From)
}

func NewSMTPSenderWithDialer(d Dialer, from string) *SMTPSender {
	return &SMTPSender{dialer: d, from: from}
}

func (s *SMTPSender) Send(ctx context.Context, to, name, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	if name != "" {
		m.SetAddressHeader("To", to, name)
	} else {
		m.SetHeader("To", to)
	}
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

// NopSender logs instead of sending, used when SMTP is not configured
type NopSender struct{}

func (NopSender) Send(ctx context.Context, to, _, subject, _ string) error {
	log.Ctx(ctx).Debug().Str("to", to).Str("subject", subject).Msg("SMTP disabled, email skipped")
	return nil
}

// NewSender picks the SMTP sender when a host is configured
func NewSender(cfg config.SMTPConfig) Sender {
	if !cfg.Enabled() {
		return NopSender{}
	}
	return NewSMTPSender(cfg)
}
