package store

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxAddressLength = 255
	MaxSubjectLength = 255
	MaxBodyLength    = 10000
)

var addressPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Message is the stored email record.
type Message struct {
	ID        int64     `json:"id"`
	To        string    `json:"to"`
	Cc        *string   `json:"cc"`
	Bcc       *string   `json:"bcc"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	Starred   bool      `json:"starred"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Fields carries the caller supplied values for a new message.
type Fields struct {
	To      string `json:"to"`
	Cc      string `json:"cc,omitempty"`
	Bcc     string `json:"bcc,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Patch lists the fields a single update may change. Nil means unchanged;
// an empty Cc or Bcc clears the column.
type Patch struct {
	Read    *bool   `json:"read,omitempty"`
	Starred *bool   `json:"starred,omitempty"`
	Subject *string `json:"subject,omitempty"`
	Body    *string `json:"body,omitempty"`
	To      *string `json:"to,omitempty"`
	Cc      *string `json:"cc,omitempty"`
	Bcc     *string `json:"bcc,omitempty"`
}

// BulkPatch is the narrower field set allowed for bulk updates.
type BulkPatch struct {
	Read    *bool `json:"read,omitempty"`
	Starred *bool `json:"starred,omitempty"`
}

func (p BulkPatch) empty() bool {
	return p.Read == nil && p.Starred == nil
}

// Stats holds the mailbox counters.
type Stats struct {
	Total   int `json:"total"`
	Unread  int `json:"unread"`
	Starred int `json:"starred"`
}

// Filter selects a subset of messages for List.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterUnread  Filter = "unread"
	FilterRead    Filter = "read"
	FilterStarred Filter = "starred"
)

// Valid reports whether f is one of the known filters.
func (f Filter) Valid() bool {
	switch f {
	case FilterAll, FilterUnread, FilterRead, FilterStarred:
		return true
	default:
		return false
	}
}

// Validate checks request shape for a create. Store.Create trusts that this
// already happened and only guards against values that normalize to empty.
func (f Fields) Validate() error {
	to := strings.TrimSpace(f.To)
	subject := strings.TrimSpace(f.Subject)
	body := strings.TrimSpace(f.Body)
	switch {
	case to == "":
		return invalid("recipient email is required")
	case subject == "":
		return invalid("subject is required")
	case body == "":
		return invalid("message body is required")
	}
	if err := validateAddress("recipient", to, true); err != nil {
		return err
	}
	if err := validateAddress("CC", f.Cc, false); err != nil {
		return err
	}
	if err := validateAddress("BCC", f.Bcc, false); err != nil {
		return err
	}
	if utf8.RuneCountInString(subject) > MaxSubjectLength {
		return invalid("subject must be less than 255 characters")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return invalid("message body must be less than 10,000 characters")
	}
	return nil
}

// Validate checks request shape for a single update.
func (p Patch) Validate() error {
	if p.To != nil {
		if err := validateAddress("recipient", *p.To, true); err != nil {
			return err
		}
	}
	if err := validateAddress("CC", deref(p.Cc), false); err != nil {
		return err
	}
	if err := validateAddress("BCC", deref(p.Bcc), false); err != nil {
		return err
	}
	if p.Subject != nil {
		subject := strings.TrimSpace(*p.Subject)
		if subject == "" {
			return invalid("subject cannot be empty")
		}
		if utf8.RuneCountInString(subject) > MaxSubjectLength {
			return invalid("subject must be less than 255 characters")
		}
	}
	if p.Body != nil {
		body := strings.TrimSpace(*p.Body)
		if body == "" {
			return invalid("message body cannot be empty")
		}
		if utf8.RuneCountInString(body) > MaxBodyLength {
			return invalid("message body must be less than 10,000 characters")
		}
	}
	return nil
}

func validateAddress(label, value string, required bool) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		if required {
			return invalid(label + " email is required")
		}
		return nil
	}
	if !addressPattern.MatchString(trimmed) {
		return invalid(fmt.Sprintf("invalid %s email format", label))
	}
	if utf8.RuneCountInString(trimmed) > MaxAddressLength {
		return invalid(fmt.Sprintf("%s email must be less than 255 characters", label))
	}
	return nil
}

// normalizeAddress lower-cases and trims an address.
func normalizeAddress(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// optionalAddress normalizes an optional address, mapping empty to NULL.
func optionalAddress(value string) *string {
	normalized := normalizeAddress(value)
	if normalized == "" {
		return nil
	}
	return &normalized
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
