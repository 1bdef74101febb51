package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resend/resend-go/v2"
)

// ResendTransport sends mail through the Resend HTTP API.
type ResendTransport struct {
	client *resend.Client
	logger *slog.Logger
}

func NewResendTransport(apiKey string, logger *slog.Logger) *ResendTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResendTransport{client: resend.NewClient(apiKey), logger: logger}
}

func (t *ResendTransport) Send(ctx context.Context, env Envelope) (string, error) {
	sent, err := t.client.Emails.SendWithContext(ctx, resendRequest(env))
	if err != nil {
		t.logger.Error("resend send failed", "error", err, "to", env.To)
		return "", classifyResend("resend send", err)
	}
	t.logger.Info("resend message sent", "message_id", sent.Id, "to", env.To)
	return sent.Id, nil
}

// Verify lists the account's domains, which fails for a bad key. Listing
// domains needs a full-access key; a sending-only key is rejected with a
// restricted-key message, which still proves the key is valid.
func (t *ResendTransport) Verify(ctx context.Context) error {
	_, err := t.client.Domains.ListWithContext(ctx)
	return verifyResult(err)
}

func verifyResult(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "restricted to only send") {
		return nil
	}
	return classifyResend("resend verify", err)
}

func resendRequest(env Envelope) *resend.SendEmailRequest {
	return &resend.SendEmailRequest{
		From:    formatFrom(env.FromName, env.From),
		To:      []string{env.To},
		Cc:      env.Cc,
		Bcc:     env.Bcc,
		Subject: env.Subject,
		Text:    env.Text,
		Html:    env.HTML,
	}
}

// classifyResend maps key rejections onto ErrAuth. The client reports API
// failures as plain errors carrying the response message.
func classifyResend(step string, err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"api key", "401", "403", "unauthorized", "forbidden"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%s: %w: %w", step, ErrAuth, err)
		}
	}
	return fmt.Errorf("%s: %w", step, err)
}
