package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Security selects how the SMTP connection is protected.
type Security string

const (
	SecurityStartTLS Security = "starttls"
	SecurityTLS      Security = "tls"
	SecurityNone     Security = "none"
)

const defaultSMTPTimeout = 30 * time.Second

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Security Security
	// Timeout bounds a whole exchange when ctx carries no earlier deadline.
	Timeout   time.Duration
	TLSConfig *tls.Config
}

// SMTPTransport submits mail to an SMTP relay such as Gmail, one
// connection per message.
type SMTPTransport struct {
	cfg    SMTPConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewSMTPTransport(cfg SMTPConfig, logger *slog.Logger) *SMTPTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	if cfg.Security == "" {
		cfg.Security = SecurityStartTLS
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPTransport{cfg: cfg, logger: logger, now: time.Now}
}

func (t *SMTPTransport) addr() string {
	return net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
}

func (t *SMTPTransport) Send(ctx context.Context, env Envelope) (string, error) {
	raw, messageID, err := compose(env, t.now())
	if err != nil {
		return "", err
	}

	client, err := t.dial(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	if err := client.Mail(env.From, nil); err != nil {
		return "", classify("mail from", err)
	}
	for _, rcpt := range env.Recipients() {
		if err := client.Rcpt(rcpt, nil); err != nil {
			return "", classify("rcpt to "+rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return "", classify("data", err)
	}
	if _, err := io.Copy(w, bytes.NewReader(raw)); err != nil {
		w.Close()
		return "", fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", classify("finish data", err)
	}
	if err := client.Quit(); err != nil {
		t.logger.Debug("smtp quit", "error", err)
	}

	t.logger.Info("smtp message sent", "message_id", messageID, "to", env.To, "recipients", len(env.Recipients()))
	return messageID, nil
}

// Verify connects, authenticates and issues a NOOP.
func (t *SMTPTransport) Verify(ctx context.Context) error {
	client, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Noop(); err != nil {
		return classify("noop", err)
	}
	return client.Quit()
}

// dial opens an authenticated session. The connection deadline comes from
// ctx or the configured timeout, whichever is earlier.
func (t *SMTPTransport) dial(ctx context.Context) (*smtp.Client, error) {
	deadline := time.Now().Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	tlsConfig := t.cfg.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: t.cfg.Host}
	}

	var conn net.Conn
	var err error
	if t.cfg.Security == SecurityTLS {
		dialer := &tls.Dialer{Config: tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", t.addr())
	} else {
		var dialer net.Dialer
		conn, err = dialer.DialContext(ctx, "tcp", t.addr())
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.addr(), err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	var client *smtp.Client
	if t.cfg.Security == SecurityStartTLS {
		client, err = smtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("starttls %s: %w", t.addr(), err)
		}
	} else {
		client = smtp.NewClient(conn)
	}

	if t.cfg.Username != "" {
		if err := client.Auth(sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)); err != nil {
			client.Close()
			return nil, classify("auth", err)
		}
	}
	return client, nil
}

// classify tags credential rejections with ErrAuth.
func classify(step string, err error) error {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) && isAuthCode(smtpErr.Code) {
		return fmt.Errorf("%s: %w: %w", step, ErrAuth, err)
	}
	return fmt.Errorf("%s: %w", step, err)
}

// isAuthCode covers 535 (credentials rejected), 534 (stronger mechanism or
// app password required) and 530 (authentication required).
func isAuthCode(code int) bool {
	switch code {
	case 530, 534, 535:
		return true
	default:
		return false
	}
}
