// Package pagination turns page/limit query parameters into storage offsets
// and reports page counts back to callers. Values that do not parse fall
// back to the defaults; values that parse are clamped into range.
package pagination

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

const (
	// MaxLimit is the largest page size a caller may request.
	MaxLimit = 100
	// DefaultPage is used when no page is given.
	DefaultPage = 1
	// DefaultLimit is used when no limit is given.
	DefaultLimit = 20
)

// Params is a normalized page request.
type Params struct {
	Page   int // 1-based
	Limit  int // items per page, in [1, MaxLimit]
	Offset int // rows to skip
}

// Pagination describes a fetched page and the result set it came from.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Option adjusts the defaults applied before query values are read.
type Option func(*Params)

// WithDefaultLimit replaces DefaultLimit. Non-positive values are ignored.
func WithDefaultLimit(limit int) Option {
	return func(p *Params) {
		if limit > 0 {
			p.Limit = limit
		}
	}
}

// New clamps page to at least 1 and limit to [1, MaxLimit] and computes the
// offset. Page is capped so the offset cannot overflow.
func New(page, limit int) Params {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if page > math.MaxInt/limit {
		page = math.MaxInt / limit
	}
	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// FromQuery reads "page" and "limit" from q.
func FromQuery(q url.Values, opts ...Option) Params {
	defaults := Params{Page: DefaultPage, Limit: DefaultLimit}
	for _, opt := range opts {
		opt(&defaults)
	}
	return New(parseInt(q.Get("page"), defaults.Page), parseInt(q.Get("limit"), defaults.Limit))
}

// Describe builds the Pagination reported alongside a page of results.
func (p Params) Describe(total int) Pagination {
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total, Pages: Pages(total, p.Limit)}
}

// Pages returns ceil(total/limit), 0 for an empty result set.
func Pages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// HasNext reports whether rows remain after this page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

func parseInt(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return val
}
