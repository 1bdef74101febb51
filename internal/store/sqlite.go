package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultLimit = 20

	messageColumns = `id, to_email, cc_email, bcc_email, subject, body, read, starred, created_at, updated_at`

	searchClause = ` WHERE (to_email LIKE ? ESCAPE '\' OR cc_email LIKE ? ESCAPE '\' OR bcc_email LIKE ? ESCAPE '\'` +
		` OR subject LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\')`

	orderClause = ` ORDER BY created_at DESC, id DESC`
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

type Option func(*Store)

// WithClock replaces the clock used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := false
	if trimmed == "" {
		trimmed = ":memory:"
		inMemory = true
	}
	if strings.Contains(trimmed, "mode=memory") || trimmed == ":memory:" || trimmed == "file::memory:" {
		inMemory = true
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database still answers.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// Create normalizes and inserts a message, returning the row as stored.
func (s *Store) Create(ctx context.Context, fields Fields) (Message, error) {
	to := normalizeAddress(fields.To)
	subject := strings.TrimSpace(fields.Subject)
	body := strings.TrimSpace(fields.Body)
	if to == "" || subject == "" || body == "" {
		return Message{}, invalid("to, subject and body are required")
	}
	now := s.now().UnixMilli()
	row := s.db.QueryRowContext(ctx, `INSERT INTO emails
        (to_email, cc_email, bcc_email, subject, body, read, starred, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)
        RETURNING `+messageColumns+`;`,
		to,
		nullable(optionalAddress(fields.Cc)),
		nullable(optionalAddress(fields.Bcc)),
		subject,
		body,
		now,
		now,
	)
	message, err := scanMessage(row)
	if err != nil {
		return Message{}, storageErr("create message", err)
	}
	return message, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (Message, error) {
	if id <= 0 {
		return Message{}, invalid("email ID must be a positive integer")
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM emails WHERE id = ?;`, id)
	message, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, storageErr("get message", err)
	}
	return message, nil
}

// List returns one page of messages matching filter, newest first, and the
// number of matching rows across all pages.
func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) ([]Message, int, error) {
	var where string
	switch filter {
	case FilterUnread:
		where = " WHERE read = 0"
	case FilterRead:
		where = " WHERE read = 1"
	case FilterStarred:
		where = " WHERE starred = 1"
	}
	return s.page(ctx, "list messages", where, nil, limit, offset)
}

// Search matches term as a literal, case-insensitive substring of any
// address, the subject or the body.
func (s *Store) Search(ctx context.Context, term string, limit, offset int) ([]Message, int, error) {
	if term == "" {
		return nil, 0, invalid("search term is required")
	}
	pattern := "%" + escapeLike(term) + "%"
	args := []any{pattern, pattern, pattern, pattern, pattern}
	return s.page(ctx, "search messages", searchClause, args, limit, offset)
}

func (s *Store) page(ctx context.Context, op, where string, args []any, limit, offset int) ([]Message, int, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM emails"+where, args...).Scan(&total); err != nil {
		return nil, 0, storageErr(op, err)
	}

	listArgs := append(append([]any{}, args...), limit, offset)
	rows, err := s.db.QueryContext(ctx, "SELECT "+messageColumns+" FROM emails"+where+orderClause+" LIMIT ? OFFSET ?", listArgs...)
	if err != nil {
		return nil, 0, storageErr(op, err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, 0, storageErr(op, err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr(op, err)
	}
	return messages, total, nil
}

// Update applies patch and returns the updated row in one statement. The
// updated_at column is refreshed even when patch changes nothing.
func (s *Store) Update(ctx context.Context, id int64, patch Patch) (Message, error) {
	if id <= 0 {
		return Message{}, invalid("email ID must be a positive integer")
	}

	var sets []string
	var args []any
	if patch.Read != nil {
		sets = append(sets, "read = ?")
		args = append(args, *patch.Read)
	}
	if patch.Starred != nil {
		sets = append(sets, "starred = ?")
		args = append(args, *patch.Starred)
	}
	if patch.Subject != nil {
		subject := strings.TrimSpace(*patch.Subject)
		if subject == "" {
			return Message{}, invalid("subject cannot be empty")
		}
		sets = append(sets, "subject = ?")
		args = append(args, subject)
	}
	if patch.Body != nil {
		body := strings.TrimSpace(*patch.Body)
		if body == "" {
			return Message{}, invalid("message body cannot be empty")
		}
		sets = append(sets, "body = ?")
		args = append(args, body)
	}
	if patch.To != nil {
		to := normalizeAddress(*patch.To)
		if to == "" {
			return Message{}, invalid("recipient email cannot be empty")
		}
		sets = append(sets, "to_email = ?")
		args = append(args, to)
	}
	if patch.Cc != nil {
		sets = append(sets, "cc_email = ?")
		args = append(args, nullable(optionalAddress(*patch.Cc)))
	}
	if patch.Bcc != nil {
		sets = append(sets, "bcc_email = ?")
		args = append(args, nullable(optionalAddress(*patch.Bcc)))
	}
	sets = append(sets, "updated_at = MAX(created_at, ?)")
	args = append(args, s.now().UnixMilli(), id)

	row := s.db.QueryRowContext(ctx, "UPDATE emails SET "+strings.Join(sets, ", ")+
		" WHERE id = ? RETURNING "+messageColumns+";", args...)
	message, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, storageErr("update message", err)
	}
	return message, nil
}

// Delete removes a message and reports whether a row existed.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, invalid("email ID must be a positive integer")
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM emails WHERE id = ?;`, id)
	if err != nil {
		return false, storageErr("delete message", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, storageErr("delete message", err)
	}
	return rows > 0, nil
}

// BulkUpdate sets read and/or starred on every listed message and returns
// the number of rows changed.
func (s *Store) BulkUpdate(ctx context.Context, ids []int64, patch BulkPatch) (int, error) {
	placeholders, idArgs, err := idList(ids)
	if err != nil {
		return 0, err
	}
	if patch.empty() {
		return 0, invalid("update data must set read or starred")
	}

	var sets []string
	var args []any
	if patch.Read != nil {
		sets = append(sets, "read = ?")
		args = append(args, *patch.Read)
	}
	if patch.Starred != nil {
		sets = append(sets, "starred = ?")
		args = append(args, *patch.Starred)
	}
	sets = append(sets, "updated_at = MAX(created_at, ?)")
	args = append(args, s.now().UnixMilli())
	args = append(args, idArgs...)

	result, err := s.db.ExecContext(ctx, "UPDATE emails SET "+strings.Join(sets, ", ")+
		" WHERE id IN ("+placeholders+");", args...)
	if err != nil {
		return 0, storageErr("bulk update messages", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("bulk update messages", err)
	}
	return int(rows), nil
}

func (s *Store) BulkDelete(ctx context.Context, ids []int64) (int, error) {
	placeholders, args, err := idList(ids)
	if err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM emails WHERE id IN ("+placeholders+");", args...)
	if err != nil {
		return 0, storageErr("bulk delete messages", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, storageErr("bulk delete messages", err)
	}
	return int(rows), nil
}

// Stats counts all, unread and starred messages. The three counts are
// separate queries and are not a single snapshot.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(1) FROM emails;`, &stats.Total},
		{`SELECT COUNT(1) FROM emails WHERE read = 0;`, &stats.Unread},
		{`SELECT COUNT(1) FROM emails WHERE starred = 1;`, &stats.Starred},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return Stats{}, storageErr("stats", err)
		}
	}
	return stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (Message, error) {
	var message Message
	var cc, bcc sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(
		&message.ID,
		&message.To,
		&cc,
		&bcc,
		&message.Subject,
		&message.Body,
		&message.Read,
		&message.Starred,
		&createdAt,
		&updatedAt,
	); err != nil {
		return Message{}, err
	}
	if cc.Valid && cc.String != "" {
		message.Cc = &cc.String
	}
	if bcc.Valid && bcc.String != "" {
		message.Bcc = &bcc.String
	}
	message.CreatedAt = time.UnixMilli(createdAt).UTC()
	message.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return message, nil
}

func idList(ids []int64) (string, []any, error) {
	if len(ids) == 0 {
		return "", nil, invalid("email IDs array must not be empty")
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		if id <= 0 {
			return "", nil, invalid(fmt.Sprintf("email ID %d must be a positive integer", id))
		}
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	return placeholders, args, nil
}

// escapeLike makes term literal inside a LIKE pattern using '\' as the
// escape character. The escape character itself goes first so the escapes
// added for % and _ are not escaped again.
func escapeLike(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, `%`, `\%`)
	return strings.ReplaceAll(term, `_`, `\_`)
}

func nullable(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
