package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	TransportSMTP   = "smtp"
	TransportResend = "resend"
)

type Config struct {
	HTTPPort    int
	DBPath      string
	FrontendURL string
	APIURL      string
	LogLevel    string

	GmailUser        string
	GmailAppPassword string
	SMTPHost         string
	SMTPPort         int
	SMTPSecurity     string
	SMTPTimeout      time.Duration
	MailTransport    string
	ResendAPIKey     string
	MailFromName     string

	SinkEnabled  bool
	SinkPort     int
	SinkUsername string
	SinkPassword string
}

func Load() Config {
	return Config{
		HTTPPort:    getEnvInt("HTTP_PORT", 3001),
		DBPath:      getEnvString("DB_PATH", "mailroom.sqlite3"),
		FrontendURL: getEnvString("FRONTEND_URL", "http://localhost:3000"),
		APIURL:      getEnvString("API_URL", "http://localhost:3001"),
		LogLevel:    getEnvString("LOG_LEVEL", "info"),

		GmailUser:        getEnvString("GMAIL_USER", ""),
		GmailAppPassword: getEnvString("GMAIL_APP_PASSWORD", ""),
		SMTPHost:         getEnvString("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:         getEnvInt("SMTP_PORT", 587),
		SMTPSecurity:     strings.ToLower(getEnvString("SMTP_SECURITY", "starttls")),
		SMTPTimeout:      getEnvDuration("SMTP_TIMEOUT", 30*time.Second),
		MailTransport:    strings.ToLower(getEnvString("MAIL_TRANSPORT", TransportSMTP)),
		ResendAPIKey:     getEnvString("RESEND_API_KEY", ""),
		MailFromName:     getEnvString("MAIL_FROM_NAME", "Email Client App"),

		SinkEnabled:  getEnvBool("SINK_ENABLED", false),
		SinkPort:     getEnvInt("SINK_PORT", 2025),
		SinkUsername: getEnvString("SINK_USERNAME", ""),
		SinkPassword: getEnvString("SINK_PASSWORD", ""),
	}
}

// MailConfigured reports whether the sender identity and the credential for
// the selected transport are both present. Without them the server runs in
// local-only mode.
func (c Config) MailConfigured() bool {
	if c.GmailUser == "" {
		return false
	}
	if c.MailTransport == TransportResend {
		return c.ResendAPIKey != ""
	}
	return c.GmailAppPassword != ""
}

// Level maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("45s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
