package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument marks malformed ids, fields or search terms.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks operations that target a missing message.
	ErrNotFound = errors.New("message not found")
	// ErrStorage marks failures of the underlying database.
	ErrStorage = errors.New("storage failure")
)

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, reason)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Reason strips the sentinel prefix from an ErrInvalidArgument so the text
// can be shown to a user.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	prefix := ErrInvalidArgument.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}
