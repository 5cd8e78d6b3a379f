package catalog

import (
	"errors"
	"net/url"
	"testing"
)

func TestParseQueryDefaults(t *testing.T) {
	q, page, err := ParseQuery(url.Values{})
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if q.OrderBy != SortID || q.Desc {
		t.Fatalf("unexpected sort: %+v", q)
	}
	if page.Skip != 0 || page.Limit != DefaultLimit {
		t.Fatalf("unexpected page: %+v", page)
	}
	if q.Title != nil || q.AuthorName != nil || q.PublishedYear != nil || q.Genre != nil {
		t.Fatalf("expected no filters: %+v", q)
	}
}

func TestParseQueryFilters(t *testing.T) {
	values := url.Values{
		"title":          {"dune"},
		"author_name":    {"herbert"},
		"published_year": {"1965"},
		"genre":          {"Sci-Fi"},
		"order_by":       {"published_year"},
		"order_desc":     {"true"},
		"skip":           {"20"},
		"limit":          {"5"},
	}
	q, page, err := ParseQuery(values)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if *q.Title != "dune" || *q.AuthorName != "herbert" || *q.PublishedYear != 1965 || *q.Genre != GenreSciFi {
		t.Fatalf("unexpected filters: %+v", q)
	}
	if q.OrderBy != SortPublishedYear || !q.Desc {
		t.Fatalf("unexpected sort: %+v", q)
	}
	if page.Skip != 20 || page.Limit != 5 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestParseQueryRejectsUnknownSortColumn(t *testing.T) {
	for _, col := range []string{"file_path", "id; drop table books", "author_id", "ID"} {
		_, _, err := ParseQuery(url.Values{"order_by": {col}})
		if !errors.Is(err, ErrInvalidSortColumn) {
			t.Fatalf("order_by=%q: expected ErrInvalidSortColumn, got %v", col, err)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("order_by=%q: expected ErrValidation, got %v", col, err)
		}
	}
}

func TestNewQueryFieldRules(t *testing.T) {
	year := 1800
	_, err := NewQuery(QueryParams{Title: strp("123"), AuthorName: strp(" "), PublishedYear: &year, Genre: strp("Poems")})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Errors) != 4 {
		t.Fatalf("expected 4 field errors, got %+v", verr.Errors)
	}
	if errors.Is(err, ErrInvalidSortColumn) {
		t.Fatalf("sort column was valid")
	}
}

func TestParseQueryPaging(t *testing.T) {
	for _, values := range []url.Values{
		{"skip": {"-1"}},
		{"limit": {"0"}},
		{"limit": {"1001"}},
		{"limit": {"ten"}},
		{"order_desc": {"maybe"}},
		{"published_year": {"abc"}},
	} {
		if _, _, err := ParseQuery(values); !errors.Is(err, ErrValidation) {
			t.Fatalf("%v: expected ErrValidation, got %v", values, err)
		}
	}
}
