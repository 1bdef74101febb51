// Package query validates list and search requests and runs them against the
// message repository.
package query

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.io/infrasutra/mailroom/internal/pagination"
	"github.io/infrasutra/mailroom/internal/store"
)

const (
	MinTermLength = 2
	MaxTermLength = 100

	forbiddenTermChars = `<>'"&`
)

// Repository is the part of the store the engine reads from.
type Repository interface {
	List(ctx context.Context, filter store.Filter, limit, offset int) ([]store.Message, int, error)
	Search(ctx context.Context, term string, limit, offset int) ([]store.Message, int, error)
}

// Page is one window of a list or search result.
type Page struct {
	Records    []store.Message       `json:"records"`
	Pagination pagination.Pagination `json:"pagination"`
}

// ParseFilter maps raw onto a known filter. Anything unrecognized is
// FilterAll.
func ParseFilter(raw string) store.Filter {
	filter := store.Filter(strings.ToLower(strings.TrimSpace(raw)))
	if !filter.Valid() {
		return store.FilterAll
	}
	return filter
}

// ValidateSearchTerm trims raw and checks its length and character set.
func ValidateSearchTerm(raw string) (string, error) {
	term := strings.TrimSpace(raw)
	if term == "" {
		return "", invalid("search term is required")
	}
	n := utf8.RuneCountInString(term)
	if n < MinTermLength {
		return "", invalid("search term must be at least 2 characters")
	}
	if n > MaxTermLength {
		return "", invalid("search term must be less than 100 characters")
	}
	if strings.ContainsAny(term, forbiddenTermChars) {
		return "", invalid("search term contains invalid characters")
	}
	return term, nil
}

type Engine struct {
	repo Repository
}

func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// List returns the page of messages selected by filter.
func (e *Engine) List(ctx context.Context, params pagination.Params, filter store.Filter) (Page, error) {
	params = pagination.New(params.Page, params.Limit)
	if !filter.Valid() {
		filter = store.FilterAll
	}
	records, total, err := e.repo.List(ctx, filter, params.Limit, params.Offset)
	if err != nil {
		return Page{}, err
	}
	return Page{Records: records, Pagination: params.Describe(total)}, nil
}

// Search validates term before it reaches the repository.
func (e *Engine) Search(ctx context.Context, term string, params pagination.Params) (Page, error) {
	term, err := ValidateSearchTerm(term)
	if err != nil {
		return Page{}, err
	}
	params = pagination.New(params.Page, params.Limit)
	records, total, err := e.repo.Search(ctx, term, params.Limit, params.Offset)
	if err != nil {
		return Page{}, err
	}
	return Page{Records: records, Pagination: params.Describe(total)}, nil
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidArgument, reason)
}
