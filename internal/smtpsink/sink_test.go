package smtpsink

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

func startSink(t *testing.T, auth AuthConfig) (*Server, string) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := New(logger, l.Addr().String(), auth)
	go sink.Serve(l)
	t.Cleanup(func() { sink.Close() })
	return sink, l.Addr().String()
}

// deliver runs one plaintext SMTP transaction. The sink offers no
// STARTTLS, so smtp.SendMail would refuse it.
func deliver(addr string, auth sasl.Client, from string, rcpts []string, msg string) error {
	c, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()
	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(from, nil); err != nil {
		return err
	}
	for _, rcpt := range rcpts {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

const rawMessage = "From: Sender <sender@example.com>\r\n" +
	"To: Alice@Example.com\r\n" +
	"Cc: carol@example.com\r\n" +
	"Subject: Sink test\r\n" +
	"Message-Id: <abc123@example.com>\r\n" +
	"Content-Type: multipart/alternative; boundary=XYZ\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"plain body\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>html body</p>\r\n" +
	"--XYZ--\r\n"

func TestSinkCapturesMessage(t *testing.T) {
	sink, addr := startSink(t, AuthConfig{})

	rcpts := []string{"alice@example.com", "carol@example.com", "hidden@example.com"}
	if err := deliver(addr, nil, "sender@example.com", rcpts, rawMessage); err != nil {
		t.Fatalf("send: %v", err)
	}

	captures := sink.Captures()
	if len(captures) != 1 {
		t.Fatalf("captures = %d, want 1", len(captures))
	}
	c := captures[0]
	if c.From != "sender@example.com" {
		t.Errorf("from = %q", c.From)
	}
	if len(c.Recipients) != 3 || c.Recipients[2] != "hidden@example.com" {
		t.Errorf("recipients = %v", c.Recipients)
	}
	if len(c.To) != 1 || c.To[0] != "alice@example.com" {
		t.Errorf("to = %v", c.To)
	}
	if len(c.Cc) != 1 || c.Cc[0] != "carol@example.com" {
		t.Errorf("cc = %v", c.Cc)
	}
	if c.Subject != "Sink test" || c.MessageID != "abc123@example.com" {
		t.Errorf("subject/id = %q/%q", c.Subject, c.MessageID)
	}
	if !strings.Contains(c.Text, "plain body") || !strings.Contains(c.HTML, "<p>html body</p>") {
		t.Errorf("text/html = %q/%q", c.Text, c.HTML)
	}

	sink.Reset()
	if n := len(sink.Captures()); n != 0 {
		t.Errorf("captures after reset = %d", n)
	}
}

func TestSinkRequiresAuth(t *testing.T) {
	sink, addr := startSink(t, AuthConfig{Enabled: true, Username: "dev", Password: "secret"})

	err := deliver(addr, nil, "sender@example.com", []string{"a@b.com"}, rawMessage)
	var authErr *smtp.SMTPError
	if !errors.As(err, &authErr) || authErr.Code != smtp.ErrAuthRequired.Code {
		t.Fatalf("err without auth = %v, want %d", err, smtp.ErrAuthRequired.Code)
	}

	err = deliver(addr, sasl.NewPlainClient("", "dev", "wrong"), "sender@example.com", []string{"a@b.com"}, rawMessage)
	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) || smtpErr.Code != 535 {
		t.Fatalf("bad password err = %v, want 535", err)
	}

	err = deliver(addr, sasl.NewPlainClient("", "dev", "secret"), "sender@example.com", []string{"a@b.com"}, rawMessage)
	if err != nil {
		t.Fatalf("send with auth: %v", err)
	}
	if n := len(sink.Captures()); n != 1 {
		t.Errorf("captures = %d, want 1", n)
	}
}

func TestParseMessage_Unparseable(t *testing.T) {
	c, _ := parseMessage("a@b.com", []string{"c@d.com"}, []byte("not a message"))
	if c.From != "a@b.com" || len(c.Recipients) != 1 || c.ID == "" {
		t.Errorf("envelope data lost: %+v", c)
	}
}
