package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.io/infrasutra/mailroom/internal/pagination"
	"github.io/infrasutra/mailroom/internal/store"
)

type listCall struct {
	filter        store.Filter
	term          string
	limit, offset int
}

type fakeRepo struct {
	calls   []listCall
	records []store.Message
	total   int
	err     error
}

func (f *fakeRepo) List(_ context.Context, filter store.Filter, limit, offset int) ([]store.Message, int, error) {
	f.calls = append(f.calls, listCall{filter: filter, limit: limit, offset: offset})
	return f.records, f.total, f.err
}

func (f *fakeRepo) Search(_ context.Context, term string, limit, offset int) ([]store.Message, int, error) {
	f.calls = append(f.calls, listCall{term: term, limit: limit, offset: offset})
	return f.records, f.total, f.err
}

func TestParseFilter(t *testing.T) {
	tests := map[string]store.Filter{
		"":         store.FilterAll,
		"all":      store.FilterAll,
		"unread":   store.FilterUnread,
		" READ ":   store.FilterRead,
		"starred":  store.FilterStarred,
		"archived": store.FilterAll,
		"1; DROP":  store.FilterAll,
	}
	for raw, want := range tests {
		if got := ParseFilter(raw); got != want {
			t.Errorf("ParseFilter(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestValidateSearchTerm(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"hi", "hi", false},
		{"  hello  ", "hello", false},
		{"50%_off", "50%_off", false},
		{`back\slash`, `back\slash`, false},
		{"", "", true},
		{"   ", "", true},
		{"a", "", true},
		{" a ", "", true},
		{strings.Repeat("x", 100), strings.Repeat("x", 100), false},
		{strings.Repeat("x", 101), "", true},
		{"<script>", "", true},
		{"it's", "", true},
		{`say "hi"`, "", true},
		{"tom & jerry", "", true},
	}
	for _, tt := range tests {
		got, err := ValidateSearchTerm(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, store.ErrInvalidArgument) {
				t.Errorf("ValidateSearchTerm(%q) err = %v, want ErrInvalidArgument", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ValidateSearchTerm(%q) unexpected error: %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ValidateSearchTerm(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestEngineList(t *testing.T) {
	repo := &fakeRepo{records: []store.Message{{ID: 2}, {ID: 1}}, total: 45}
	engine := NewEngine(repo)

	page, err := engine.List(context.Background(), pagination.New(3, 20), store.FilterUnread)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(repo.calls) != 1 {
		t.Fatalf("repository calls = %d, want 1", len(repo.calls))
	}
	if want := (listCall{filter: store.FilterUnread, limit: 20, offset: 40}); repo.calls[0] != want {
		t.Errorf("call = %+v, want %+v", repo.calls[0], want)
	}
	if want := (pagination.Pagination{Page: 3, Limit: 20, Total: 45, Pages: 3}); page.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", page.Pagination, want)
	}
	if len(page.Records) != 2 {
		t.Errorf("records = %d, want 2", len(page.Records))
	}
}

func TestEngineList_ClampsAndDefaultsFilter(t *testing.T) {
	repo := &fakeRepo{}
	engine := NewEngine(repo)

	if _, err := engine.List(context.Background(), pagination.Params{Page: -1, Limit: 1000}, store.Filter("bogus")); err != nil {
		t.Fatalf("list: %v", err)
	}
	if want := (listCall{filter: store.FilterAll, limit: 100, offset: 0}); repo.calls[0] != want {
		t.Errorf("call = %+v, want %+v", repo.calls[0], want)
	}
}

func TestEngineSearch_RejectsBeforeStorage(t *testing.T) {
	repo := &fakeRepo{}
	engine := NewEngine(repo)

	_, err := engine.Search(context.Background(), "<b>", pagination.New(1, 20))
	if !errors.Is(err, store.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
	if len(repo.calls) != 0 {
		t.Errorf("repository was called %d times for an invalid term", len(repo.calls))
	}
}

func TestEngineSearch_PassesTrimmedTerm(t *testing.T) {
	repo := &fakeRepo{total: 1, records: []store.Message{{ID: 9}}}
	engine := NewEngine(repo)

	page, err := engine.Search(context.Background(), "  invoice ", pagination.New(2, 5))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if want := (listCall{term: "invoice", limit: 5, offset: 5}); repo.calls[0] != want {
		t.Errorf("call = %+v, want %+v", repo.calls[0], want)
	}
	if page.Pagination.Pages != 1 || page.Pagination.Total != 1 {
		t.Errorf("pagination = %+v", page.Pagination)
	}
}

func TestEngine_PropagatesStorageErrors(t *testing.T) {
	boom := errors.New("disk gone")
	repo := &fakeRepo{err: boom}
	engine := NewEngine(repo)

	if _, err := engine.List(context.Background(), pagination.New(1, 20), store.FilterAll); !errors.Is(err, boom) {
		t.Errorf("list err = %v, want %v", err, boom)
	}
	if _, err := engine.Search(context.Background(), "term", pagination.New(1, 20)); !errors.Is(err, boom) {
		t.Errorf("search err = %v, want %v", err, boom)
	}
}

func TestEngineSearch_AgainstStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := s.Create(ctx, store.Fields{To: "a@b.com", Subject: "100% done", Body: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, store.Fields{To: "a@b.com", Subject: "1000 done", Body: "x"}); err != nil {
		t.Fatal(err)
	}

	page, err := NewEngine(s).Search(ctx, "0%", pagination.New(1, 20))
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Pagination.Total != 1 || page.Records[0].Subject != "100% done" {
		t.Errorf("page = %+v", page)
	}
}
