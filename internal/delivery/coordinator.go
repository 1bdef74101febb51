// Package delivery persists outgoing messages and then tries to hand them to
// a mail transport. A stored message is never lost because delivery failed.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.io/infrasutra/mailroom/internal/mailer"
	"github.io/infrasutra/mailroom/internal/store"
)

// State is where an outgoing message ended up.
type State string

const (
	StateReceived        State = "received"
	StatePersisted       State = "persisted"
	StateDelivered       State = "delivered"
	StateDeliveryFailed  State = "delivery_failed"
	StateDeliverySkipped State = "delivery_skipped"
)

const (
	NoticeDelivered = "Email sent successfully"
	NoticeFailed    = "Email saved to database, but sending failed"
	NoticeSkipped   = "Email saved locally (SMTP not configured)"

	AuthFailureHint = "Gmail authentication failed. Please check your App Password."

	TestSubject = "Test Email from Email Client App"
	TestBody    = "This is a test email to verify Gmail SMTP configuration.\n\nIf you receive this, your email setup is working correctly!"

	DefaultFromName = "Email Client App"
	defaultTimeout  = 30 * time.Second
)

// Result describes one send. Message is the stored record; it is zero for
// test sends, which are not stored.
type Result struct {
	Message   store.Message `json:"data"`
	State     State         `json:"state"`
	Sent      bool          `json:"sent"`
	MessageID string        `json:"messageId,omitempty"`
	Notice    string        `json:"message"`
	Error     string        `json:"error,omitempty"`
}

// Repository is the store operation the coordinator needs.
type Repository interface {
	Create(ctx context.Context, fields store.Fields) (store.Message, error)
}

type Config struct {
	// Sender is the From address. Delivery is skipped when it is empty.
	Sender     string
	SenderName string
	// Via names the transport in the success notice, e.g. "Gmail SMTP".
	Via string
	// Timeout bounds one transport call.
	Timeout time.Duration
}

type Coordinator struct {
	repo      Repository
	transport mailer.Transport
	cfg       Config
	logger    *slog.Logger
}

// New builds a coordinator. A nil transport means local-only mode.
func New(repo Repository, transport mailer.Transport, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.SenderName == "" {
		cfg.SenderName = DefaultFromName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{repo: repo, transport: transport, cfg: cfg, logger: logger}
}

// Configured reports whether messages will be handed to a transport.
func (c *Coordinator) Configured() bool {
	return c.transport != nil && c.cfg.Sender != ""
}

// Send stores fields and then attempts delivery. The error is non-nil only
// when the message could not be stored; transport failures are reported in
// the Result.
func (c *Coordinator) Send(ctx context.Context, fields store.Fields) (Result, error) {
	message, err := c.repo.Create(ctx, fields)
	if err != nil {
		return Result{State: StateReceived}, fmt.Errorf("persist message: %w", err)
	}
	result := c.deliver(ctx, envelopeFor(message))
	result.Message = message
	return result, nil
}

// SendTest delivers a canned message to the sender's own address without
// storing it.
func (c *Coordinator) SendTest(ctx context.Context) Result {
	return c.deliver(ctx, mailer.Envelope{
		To:      c.cfg.Sender,
		Subject: TestSubject,
		Text:    TestBody,
		HTML:    mailer.TextToHTML(TestBody),
	})
}

// VerifyConnection never fails; an unreachable or unconfigured transport is
// reported as false and logged.
func (c *Coordinator) VerifyConnection(ctx context.Context) bool {
	if !c.Configured() {
		c.logger.Warn("mail transport not configured, messages are saved locally only")
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	if err := c.transport.Verify(ctx); err != nil {
		c.logger.Error("mail transport verification failed", "error", err)
		return false
	}
	c.logger.Info("mail transport connection verified", "via", c.cfg.Via)
	return true
}

// deliver runs from Persisted to one of the terminal states.
func (c *Coordinator) deliver(ctx context.Context, env mailer.Envelope) Result {
	if !c.Configured() {
		c.logger.Warn("mail transport not configured, message saved locally only", "to", env.To)
		return Result{State: StateDeliverySkipped, Notice: NoticeSkipped}
	}

	env.From = c.cfg.Sender
	env.FromName = c.cfg.SenderName

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	id, err := c.transport.Send(ctx, env)
	if err != nil {
		c.logger.Error("send message", "error", err, "to", env.To)
		reason := err.Error()
		if mailer.IsAuth(err) {
			reason = AuthFailureHint
		}
		return Result{State: StateDeliveryFailed, Notice: NoticeFailed, Error: reason}
	}

	notice := NoticeDelivered
	if c.cfg.Via != "" {
		notice += " via " + c.cfg.Via
	}
	return Result{State: StateDelivered, Sent: true, MessageID: id, Notice: notice}
}

// envelopeFor builds the envelope from the stored, normalized values.
func envelopeFor(m store.Message) mailer.Envelope {
	env := mailer.Envelope{
		To:      m.To,
		Subject: m.Subject,
		Text:    m.Body,
		HTML:    mailer.TextToHTML(m.Body),
	}
	if m.Cc != nil {
		env.Cc = []string{*m.Cc}
	}
	if m.Bcc != nil {
		env.Bcc = []string{*m.Bcc}
	}
	return env
}
