// Package runtime holds the start-up wiring shared by the mailroom binaries.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.io/infrasutra/mailroom/internal/config"
	"github.io/infrasutra/mailroom/internal/delivery"
	"github.io/infrasutra/mailroom/internal/mailer"
	"github.io/infrasutra/mailroom/internal/store"
)

const (
	ModeSMTP      = "smtp"
	ModeResend    = "resend"
	ModeSink      = "sink"
	ModeLocalOnly = "local-only"

	sinkSender = "mailroom@localhost"
)

// Mail is the selected transport and the coordinator settings that go with it.
type Mail struct {
	Mode      string
	Transport mailer.Transport
	Delivery  delivery.Config
}

func NewLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
}

// OpenStore opens the database at cfg.DBPath and applies pending migrations.
func OpenStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// SelectMail picks the transport: real credentials first, then the local
// capture sink when it is enabled, otherwise local-only mode with no
// transport at all.
func SelectMail(cfg config.Config, logger *slog.Logger) (Mail, error) {
	base := delivery.Config{
		Sender:     cfg.GmailUser,
		SenderName: cfg.MailFromName,
		Timeout:    cfg.SMTPTimeout,
	}

	switch {
	case cfg.MailConfigured() && cfg.MailTransport == config.TransportResend:
		base.Via = "Resend"
		return Mail{Mode: ModeResend, Transport: mailer.NewResendTransport(cfg.ResendAPIKey, logger), Delivery: base}, nil

	case cfg.MailConfigured():
		if cfg.MailTransport != config.TransportSMTP {
			return Mail{}, fmt.Errorf("unknown MAIL_TRANSPORT %q", cfg.MailTransport)
		}
		security, err := parseSecurity(cfg.SMTPSecurity)
		if err != nil {
			return Mail{}, err
		}
		base.Via = "Gmail SMTP"
		transport := mailer.NewSMTPTransport(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.GmailUser,
			Password: cfg.GmailAppPassword,
			Security: security,
			Timeout:  cfg.SMTPTimeout,
		}, logger)
		return Mail{Mode: ModeSMTP, Transport: transport, Delivery: base}, nil

	case cfg.SinkEnabled:
		if base.Sender == "" {
			base.Sender = sinkSender
		}
		base.Via = "local sink"
		transport := mailer.NewSMTPTransport(mailer.SMTPConfig{
			Host:     "127.0.0.1",
			Port:     cfg.SinkPort,
			Username: cfg.SinkUsername,
			Password: cfg.SinkPassword,
			Security: mailer.SecurityNone,
			Timeout:  cfg.SMTPTimeout,
		}, logger)
		return Mail{Mode: ModeSink, Transport: transport, Delivery: base}, nil
	}

	return Mail{Mode: ModeLocalOnly, Delivery: base}, nil
}

func parseSecurity(raw string) (mailer.Security, error) {
	switch mailer.Security(strings.ToLower(strings.TrimSpace(raw))) {
	case "", mailer.SecurityStartTLS:
		return mailer.SecurityStartTLS, nil
	case mailer.SecurityTLS:
		return mailer.SecurityTLS, nil
	case mailer.SecurityNone:
		return mailer.SecurityNone, nil
	default:
		return "", fmt.Errorf("unknown SMTP_SECURITY %q", raw)
	}
}
