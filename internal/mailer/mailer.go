// Package mailer delivers outgoing messages through an external transport.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// ErrAuth marks a transport that rejected its credentials.
var ErrAuth = errors.New("transport authentication failed")

// IsAuth reports whether err is a credential rejection from any transport.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// Envelope is one outgoing message.
type Envelope struct {
	From     string
	FromName string
	To       string
	Cc       []string
	Bcc      []string
	Subject  string
	Text     string
	HTML     string
}

// Recipients lists every address the message is delivered to.
func (e Envelope) Recipients() []string {
	out := make([]string, 0, 1+len(e.Cc)+len(e.Bcc))
	out = append(out, e.To)
	out = append(out, e.Cc...)
	out = append(out, e.Bcc...)
	return out
}

// Transport sends envelopes and reports whether it can reach its server.
type Transport interface {
	// Send returns the identifier the transport assigned to the message.
	Send(ctx context.Context, env Envelope) (string, error)
	Verify(ctx context.Context) error
}

// TextToHTML renders a plain body as HTML with line breaks kept.
func TextToHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\n", "<br>")
}

// compose renders env as a multipart/alternative RFC 5322 message. Bcc is
// left out of the headers. It returns the message and its Message-ID.
func compose(env Envelope, now time.Time) ([]byte, string, error) {
	messageID := uuid.NewString() + "@" + domainOf(env.From)

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: env.FromName, Address: env.From}})
	h.SetAddressList("To", []*mail.Address{{Address: env.To}})
	if len(env.Cc) > 0 {
		h.SetAddressList("Cc", addressList(env.Cc))
	}
	h.SetSubject(env.Subject)
	h.SetMessageID(messageID)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("create message writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, "", fmt.Errorf("create inline writer: %w", err)
	}
	if err := writePart(tw, "text/plain", env.Text); err != nil {
		return nil, "", err
	}
	if env.HTML != "" {
		if err := writePart(tw, "text/html", env.HTML); err != nil {
			return nil, "", err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, "", fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close message writer: %w", err)
	}
	return buf.Bytes(), messageID, nil
}

func writePart(tw *mail.InlineWriter, contentType, body string) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return w.Close()
}

func addressList(addrs []string) []*mail.Address {
	list := make([]*mail.Address, 0, len(addrs))
	for _, addr := range addrs {
		list = append(list, &mail.Address{Address: addr})
	}
	return list
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}

// formatFrom renders "Name <addr>" for transports that take a single string.
func formatFrom(name, addr string) string {
	if name == "" {
		return addr
	}
	return (&mail.Address{Name: name, Address: addr}).String()
}
