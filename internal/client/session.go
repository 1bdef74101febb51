package client

import (
	"context"
	"slices"
	"strings"

	"github.io/infrasutra/mailroom/internal/pagination"
	"github.io/infrasutra/mailroom/internal/readcache"
	"github.io/infrasutra/mailroom/internal/store"
)

// Session is a browsing client: list pages are served from a read cache and
// every successful mutation clears it. Searches always go to the server.
type Session struct {
	client *Client
	cache  *readcache.Cache[ListResult]
}

// NewSession wraps client with a list cache. Pages handed out are copies, so
// callers may edit them freely.
func NewSession(client *Client, opts readcache.Options[ListResult]) *Session {
	opts.Clone = cloneListResult
	return &Session{client: client, cache: readcache.New(opts)}
}

func (s *Session) List(ctx context.Context, p ListParams) (ListResult, error) {
	p = normalizeList(p)
	key := readcache.Key{Page: p.Page, Limit: p.Limit, Filter: p.Filter}
	return s.cache.GetOrFetch(ctx, key, p.ForceRefresh, func(ctx context.Context) (ListResult, error) {
		return s.client.ListEmails(ctx, p)
	})
}

func (s *Session) Get(ctx context.Context, id int64) (store.Message, error) {
	return s.client.GetEmail(ctx, id)
}

func (s *Session) Search(ctx context.Context, term string, page, limit int) (ListResult, error) {
	return s.client.Search(ctx, term, page, limit)
}

func (s *Session) Create(ctx context.Context, fields store.Fields) (CreateResult, error) {
	result, err := s.client.Create(ctx, fields)
	if err != nil {
		return result, err
	}
	s.cache.Clear()
	return result, nil
}

func (s *Session) Update(ctx context.Context, id int64, patch store.Patch) (store.Message, error) {
	message, err := s.client.Update(ctx, id, patch)
	if err != nil {
		return message, err
	}
	s.cache.Clear()
	return message, nil
}

func (s *Session) Delete(ctx context.Context, id int64) error {
	if err := s.client.Delete(ctx, id); err != nil {
		return err
	}
	s.cache.Clear()
	return nil
}

func (s *Session) BulkUpdate(ctx context.Context, ids []int64, patch store.BulkPatch) (int, error) {
	n, err := s.client.BulkUpdate(ctx, ids, patch)
	if err != nil {
		return n, err
	}
	s.cache.Clear()
	return n, nil
}

func (s *Session) BulkDelete(ctx context.Context, ids []int64) (int, error) {
	n, err := s.client.BulkDelete(ctx, ids)
	if err != nil {
		return n, err
	}
	s.cache.Clear()
	return n, nil
}

// Invalidate drops every cached page, e.g. after a change event arrived from
// the stream.
func (s *Session) Invalidate() {
	s.cache.Clear()
}

// normalizeList fills defaults so equivalent requests share a cache key.
func normalizeList(p ListParams) ListParams {
	page, limit := p.Page, p.Limit
	if page <= 0 {
		page = pagination.DefaultPage
	}
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	normalized := pagination.New(page, limit)
	p.Page, p.Limit = normalized.Page, normalized.Limit
	p.Filter = strings.ToLower(strings.TrimSpace(p.Filter))
	if p.Filter == "" {
		p.Filter = string(store.FilterAll)
	}
	return p
}

func cloneListResult(r ListResult) ListResult {
	r.Records = slices.Clone(r.Records)
	for i := range r.Records {
		r.Records[i].Cc = cloneString(r.Records[i].Cc)
		r.Records[i].Bcc = cloneString(r.Records[i].Bcc)
	}
	return r
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
