package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.io/infrasutra/mailroom/internal/client"
	"github.io/infrasutra/mailroom/internal/config"
	"github.io/infrasutra/mailroom/internal/delivery"
	"github.io/infrasutra/mailroom/internal/runtime"
)

var errCheckFailed = errors.New("mail check failed")

type mailtestConfig struct {
	app    config.Config
	useAPI bool
	apiURL string
}

func main() {
	_ = godotenv.Load()
	cfg := parseMailtestFlags()
	logger := runtime.NewLogger(cfg.app)
	if err := run(cfg, logger, os.Stdout); err != nil {
		logger.Error("mailroom-mailtest failed", "error", err)
		os.Exit(1)
	}
}

func parseMailtestFlags() mailtestConfig {
	app := config.Load()
	useAPI := flag.Bool("api", false, "check through a running mailroom server instead of dialing the transport directly")
	apiURL := flag.String("api-url", app.APIURL, "mailroom server base URL for -api")
	flag.Parse()
	return mailtestConfig{app: app, useAPI: *useAPI, apiURL: *apiURL}
}

func run(cfg mailtestConfig, logger *slog.Logger, out io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.useAPI {
		return checkAPI(ctx, client.New(cfg.apiURL, nil), out)
	}

	fmt.Fprintln(out, "Configuration check:")
	fmt.Fprintf(out, "  GMAIL_USER: %s\n", presence(cfg.app.GmailUser))
	if cfg.app.MailTransport == config.TransportResend {
		fmt.Fprintf(out, "  RESEND_API_KEY: %s\n", presence(cfg.app.ResendAPIKey))
	} else {
		fmt.Fprintf(out, "  GMAIL_APP_PASSWORD: %s\n", presence(cfg.app.GmailAppPassword))
	}

	mail, err := runtime.SelectMail(cfg.app, logger)
	if err != nil {
		return err
	}
	if mail.Mode == runtime.ModeLocalOnly {
		fmt.Fprintln(out, "Mail credentials missing; set them in .env and retry.")
		return errCheckFailed
	}

	coordinator := delivery.New(nil, mail.Transport, mail.Delivery, logger)
	return checkLocal(ctx, coordinator, mail.Delivery.Sender, out)
}

type checker interface {
	VerifyConnection(ctx context.Context) bool
	SendTest(ctx context.Context) delivery.Result
}

// checkLocal verifies the transport and sends the test message without
// touching the database.
func checkLocal(ctx context.Context, c checker, sender string, out io.Writer) error {
	fmt.Fprintln(out, "Testing connection...")
	if !c.VerifyConnection(ctx) {
		fmt.Fprintln(out, "Connection failed; check credentials and network.")
		return errCheckFailed
	}
	fmt.Fprintln(out, "Connection successful.")

	fmt.Fprintln(out, "Sending test email...")
	result := c.SendTest(ctx)
	if !result.Sent {
		fmt.Fprintf(out, "Failed to send test email: %s\n", orUnknown(result.Error))
		return errCheckFailed
	}
	fmt.Fprintf(out, "Test email sent. Message ID: %s\n", result.MessageID)
	fmt.Fprintf(out, "Check the inbox at: %s\n", sender)
	return nil
}

func checkAPI(ctx context.Context, c *client.Client, out io.Writer) error {
	health, err := c.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	fmt.Fprintf(out, "Server %s, up %.0fs\n", health.Status, health.Uptime)

	status, err := c.SMTPStatus(ctx)
	if err != nil {
		return fmt.Errorf("smtp status: %w", err)
	}
	fmt.Fprintf(out, "Transport configured: %t, connected: %t\n", status.Configured, status.Connected)
	if !status.Configured || !status.Connected {
		return errCheckFailed
	}

	result, err := c.TestEmail(ctx)
	if err != nil {
		return fmt.Errorf("send test email: %w", err)
	}
	if !result.Sent {
		fmt.Fprintf(out, "Failed to send test email: %s\n", orUnknown(result.Error))
		return errCheckFailed
	}
	fmt.Fprintf(out, "Test email sent. Message ID: %s\n", result.MessageID)
	return nil
}

func presence(value string) string {
	if value == "" {
		return "missing"
	}
	return "set"
}

func orUnknown(reason string) string {
	if reason == "" {
		return "unknown error"
	}
	return reason
}
