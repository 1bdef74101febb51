package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "DB_PATH", "GMAIL_USER", "GMAIL_APP_PASSWORD", "SMTP_TIMEOUT", "MAIL_TRANSPORT", "SINK_ENABLED"} {
		t.Setenv(key, "")
	}
	cfg := Load()

	if cfg.HTTPPort != 3001 || cfg.SMTPPort != 587 || cfg.SinkPort != 2025 {
		t.Errorf("ports = %d/%d/%d", cfg.HTTPPort, cfg.SMTPPort, cfg.SinkPort)
	}
	if cfg.DBPath != "mailroom.sqlite3" || cfg.SMTPHost != "smtp.gmail.com" {
		t.Errorf("paths = %q/%q", cfg.DBPath, cfg.SMTPHost)
	}
	if cfg.SMTPTimeout != 30*time.Second || cfg.MailTransport != TransportSMTP {
		t.Errorf("timeout/transport = %v/%q", cfg.SMTPTimeout, cfg.MailTransport)
	}
	if cfg.MailFromName != "Email Client App" || cfg.SinkEnabled {
		t.Errorf("from/sink = %q/%v", cfg.MailFromName, cfg.SinkEnabled)
	}
	if cfg.MailConfigured() {
		t.Error("mail configured without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("SMTP_TIMEOUT", "45")
	t.Setenv("MAIL_TRANSPORT", " Resend ")
	t.Setenv("SINK_ENABLED", "true")
	t.Setenv("GMAIL_USER", "me@gmail.com")
	t.Setenv("RESEND_API_KEY", "re_123")
	t.Setenv("GMAIL_APP_PASSWORD", "")

	cfg := Load()
	if cfg.HTTPPort != 8080 {
		t.Errorf("port = %d", cfg.HTTPPort)
	}
	if cfg.SMTPTimeout != 45*time.Second {
		t.Errorf("timeout = %v", cfg.SMTPTimeout)
	}
	if cfg.MailTransport != TransportResend || !cfg.SinkEnabled {
		t.Errorf("transport/sink = %q/%v", cfg.MailTransport, cfg.SinkEnabled)
	}
	if !cfg.MailConfigured() {
		t.Error("resend with key and sender should be configured")
	}
}

func TestBadValuesFallBack(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	t.Setenv("SMTP_TIMEOUT", "-5s")
	t.Setenv("SINK_ENABLED", "maybe")

	cfg := Load()
	if cfg.HTTPPort != 3001 || cfg.SMTPTimeout != 30*time.Second || cfg.SinkEnabled {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestMailConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"smtp complete", Config{GmailUser: "a@b.com", GmailAppPassword: "pw", MailTransport: TransportSMTP}, true},
		{"smtp missing password", Config{GmailUser: "a@b.com", MailTransport: TransportSMTP}, false},
		{"missing sender", Config{GmailAppPassword: "pw", MailTransport: TransportSMTP}, false},
		{"resend missing key", Config{GmailUser: "a@b.com", GmailAppPassword: "pw", MailTransport: TransportResend}, false},
	}
	for _, tt := range tests {
		if got := tt.cfg.MailConfigured(); got != tt.want {
			t.Errorf("%s: MailConfigured = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for raw, want := range tests {
		if got := (Config{LogLevel: raw}).Level(); got != want {
			t.Errorf("Level(%q) = %v, want %v", raw, got, want)
		}
	}
}
