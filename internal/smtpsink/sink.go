// Package smtpsink is an SMTP server that accepts outgoing mail and keeps it
// in memory instead of relaying it. It stands in for a real relay during
// local development and in tests.
package smtpsink

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

const (
	defaultDomain = "mailroom-sink"
	maxCaptures   = 500
)

type AuthConfig struct {
	Enabled  bool
	Username string
	Password string
}

// Capture is one message accepted by the sink.
type Capture struct {
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Recipients []string  `json:"recipients"`
	To         []string  `json:"to"`
	Cc         []string  `json:"cc"`
	Subject    string    `json:"subject"`
	Text       string    `json:"text"`
	HTML       string    `json:"html"`
	MessageID  string    `json:"messageId"`
	Size       int       `json:"size"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type Server struct {
	smtp    *smtp.Server
	backend *backend
	logger  *slog.Logger
}

func New(logger *slog.Logger, addr string, authCfg AuthConfig) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	b := &backend{
		logger:       logger,
		authEnabled:  authCfg.Enabled,
		authUsername: authCfg.Username,
		authPassword: authCfg.Password,
	}
	server := smtp.NewServer(b)
	server.Addr = addr
	server.Domain = defaultDomain
	server.AllowInsecureAuth = true
	server.ReadTimeout = 15 * time.Second
	server.WriteTimeout = 15 * time.Second
	server.MaxRecipients = 100
	server.MaxMessageBytes = 25 << 20

	return &Server{smtp: server, backend: b, logger: logger}
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("smtp sink listening", "addr", s.smtp.Addr)
	return s.smtp.ListenAndServe()
}

// Serve accepts connections on l until Close.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("smtp sink listening", "addr", l.Addr().String())
	return s.smtp.Serve(l)
}

func (s *Server) Close() error {
	return s.smtp.Close()
}

// Captures returns the accepted messages, oldest first.
func (s *Server) Captures() []Capture {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	out := make([]Capture, len(s.backend.captures))
	copy(out, s.backend.captures)
	return out
}

// Reset forgets every capture.
func (s *Server) Reset() {
	s.backend.mu.Lock()
	s.backend.captures = nil
	s.backend.mu.Unlock()
}

type backend struct {
	logger       *slog.Logger
	authEnabled  bool
	authUsername string
	authPassword string

	mu       sync.Mutex
	captures []Capture
}

func (b *backend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &session{backend: b}, nil
}

func (b *backend) record(c Capture) {
	b.mu.Lock()
	b.captures = append(b.captures, c)
	if len(b.captures) > maxCaptures {
		b.captures = b.captures[len(b.captures)-maxCaptures:]
	}
	b.mu.Unlock()
	b.logger.Info("smtp sink captured message",
		"id", c.ID,
		"from", c.From,
		"recipients", c.Recipients,
		"subject", c.Subject,
		"size", c.Size,
	)
}

type session struct {
	backend       *backend
	from          string
	to            []string
	authenticated bool
}

func (s *session) AuthMechanisms() []string {
	if s.backend.authEnabled {
		return []string{sasl.Plain}
	}
	return nil
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	if !s.backend.authEnabled {
		return nil, errors.New("authentication not enabled")
	}
	if mech != sasl.Plain {
		return nil, errors.New("unsupported authentication mechanism")
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username == s.backend.authUsername && password == s.backend.authPassword {
			s.authenticated = true
			return nil
		}
		return &smtp.SMTPError{
			Code:         535,
			EnhancedCode: smtp.EnhancedCode{5, 7, 8},
			Message:      "Username and Password not accepted",
		}
	}), nil
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	if s.backend.authEnabled && !s.authenticated {
		return smtp.ErrAuthRequired
	}
	s.from = normalizeEmail(from)
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.backend.authEnabled && !s.authenticated {
		return smtp.ErrAuthRequired
	}
	s.to = append(s.to, normalizeEmail(to))
	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	capture, err := parseMessage(s.from, s.to, data)
	if err != nil {
		s.backend.logger.Warn("parse sink message", "error", err)
	}
	s.backend.record(capture)
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	return nil
}

// parseMessage fills a Capture from the envelope and whatever of the MIME
// structure parses. A parse error still returns the envelope data.
func parseMessage(envelopeFrom string, envelopeTo []string, raw []byte) (Capture, error) {
	capture := Capture{
		ID:         uuid.NewString(),
		From:       envelopeFrom,
		Recipients: append([]string(nil), envelopeTo...),
		Size:       len(raw),
		ReceivedAt: time.Now().UTC(),
	}

	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return capture, err
	}

	if subject, err := reader.Header.Subject(); err == nil {
		capture.Subject = subject
	}
	if id, err := reader.Header.MessageID(); err == nil {
		capture.MessageID = id
	}
	if capture.From == "" {
		if fromList, err := reader.Header.AddressList("From"); err == nil && len(fromList) > 0 {
			capture.From = normalizeEmail(fromList[0].Address)
		}
	}
	capture.To = headerAddresses(reader.Header, "To")
	capture.Cc = headerAddresses(reader.Header, "Cc")

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return capture, err
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, _ := header.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(mediaType, "text/plain") || mediaType == "":
			capture.Text = appendBody(capture.Text, string(body))
		case strings.HasPrefix(mediaType, "text/html"):
			capture.HTML = appendBody(capture.HTML, string(body))
		}
	}
	return capture, nil
}

func headerAddresses(h mail.Header, name string) []string {
	list, err := h.AddressList(name)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, addr := range list {
		out = append(out, normalizeEmail(addr.Address))
	}
	return out
}

func appendBody(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "\n" + next
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
