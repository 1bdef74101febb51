package runtime

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.io/infrasutra/mailroom/internal/config"
	"github.io/infrasutra/mailroom/internal/mailer"
	"github.io/infrasutra/mailroom/internal/store"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSelectMail(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.Config
		mode   string
		sender string
		via    string
	}{
		{
			name:   "smtp",
			cfg:    config.Config{GmailUser: "me@gmail.com", GmailAppPassword: "pw", MailTransport: config.TransportSMTP, SMTPSecurity: "starttls"},
			mode:   ModeSMTP,
			sender: "me@gmail.com",
			via:    "Gmail SMTP",
		},
		{
			name:   "resend",
			cfg:    config.Config{GmailUser: "me@gmail.com", ResendAPIKey: "re_1", MailTransport: config.TransportResend},
			mode:   ModeResend,
			sender: "me@gmail.com",
			via:    "Resend",
		},
		{
			name:   "sink without sender",
			cfg:    config.Config{SinkEnabled: true, SinkPort: 2025, MailTransport: config.TransportSMTP},
			mode:   ModeSink,
			sender: "mailroom@localhost",
			via:    "local sink",
		},
		{
			name:   "credentials win over sink",
			cfg:    config.Config{GmailUser: "me@gmail.com", GmailAppPassword: "pw", MailTransport: config.TransportSMTP, SinkEnabled: true},
			mode:   ModeSMTP,
			sender: "me@gmail.com",
			via:    "Gmail SMTP",
		},
		{
			name:   "local only",
			cfg:    config.Config{GmailUser: "me@gmail.com", MailTransport: config.TransportSMTP},
			mode:   ModeLocalOnly,
			sender: "me@gmail.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mail, err := SelectMail(tt.cfg, quiet())
			if err != nil {
				t.Fatalf("SelectMail: %v", err)
			}
			if mail.Mode != tt.mode || mail.Delivery.Sender != tt.sender || mail.Delivery.Via != tt.via {
				t.Errorf("mail = %+v", mail)
			}
			if (mail.Transport == nil) != (tt.mode == ModeLocalOnly) {
				t.Errorf("transport = %v for mode %s", mail.Transport, tt.mode)
			}
		})
	}
}

func TestSelectMailRejectsUnknownSettings(t *testing.T) {
	base := config.Config{GmailUser: "me@gmail.com", GmailAppPassword: "pw", MailTransport: config.TransportSMTP}

	bad := base
	bad.SMTPSecurity = "ssl3"
	if _, err := SelectMail(bad, quiet()); err == nil {
		t.Error("expected unknown security to fail")
	}

	bad = base
	bad.MailTransport = "pigeon"
	if _, err := SelectMail(bad, quiet()); err == nil {
		t.Error("expected unknown transport to fail")
	}
}

func TestParseSecurity(t *testing.T) {
	tests := map[string]mailer.Security{
		"":         mailer.SecurityStartTLS,
		"STARTTLS": mailer.SecurityStartTLS,
		" tls ":    mailer.SecurityTLS,
		"none":     mailer.SecurityNone,
	}
	for raw, want := range tests {
		got, err := parseSecurity(raw)
		if err != nil || got != want {
			t.Errorf("parseSecurity(%q) = %q, %v", raw, got, err)
		}
	}
}

func TestOpenStoreMigrates(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{DBPath: filepath.Join(t.TempDir(), "mail.sqlite3"), SMTPTimeout: time.Second}
	db, err := OpenStore(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer db.Close()

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if version != store.LatestSchemaVersion() {
		t.Errorf("schema version = %d, want %d", version, store.LatestSchemaVersion())
	}
}
