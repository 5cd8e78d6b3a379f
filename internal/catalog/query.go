package catalog

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// ErrInvalidSortColumn is matched by a ValidationError rejecting order_by.
var ErrInvalidSortColumn = errors.New("catalog: invalid sort column")

// SortColumn names a column books may be ordered by.
type SortColumn string

const (
	SortID            SortColumn = "id"
	SortTitle         SortColumn = "title"
	SortPublishedYear SortColumn = "published_year"
	SortCreatedAt     SortColumn = "created_at"
	SortUpdatedAt     SortColumn = "updated_at"
)

var sortColumns = map[SortColumn]struct{}{
	SortID:            {},
	SortTitle:         {},
	SortPublishedYear: {},
	SortCreatedAt:     {},
	SortUpdatedAt:     {},
}

// Valid reports whether c is whitelisted.
func (c SortColumn) Valid() bool {
	_, ok := sortColumns[c]
	return ok
}

// Query is the validated filter and sort order for book listings.
type Query struct {
	Title         *string
	PublishedYear *int
	AuthorName    *string
	Genre         *Genre
	OrderBy       SortColumn
	Desc          bool
}

// QueryParams holds unvalidated listing parameters.
type QueryParams struct {
	Title         *string
	PublishedYear *int
	AuthorName    *string
	Genre         *string
	OrderBy       string
	Desc          bool
}

// NewQuery validates params. An empty OrderBy means SortID.
func NewQuery(p QueryParams) (Query, error) {
	var verr ValidationError
	q := Query{OrderBy: SortID, Desc: p.Desc}

	if p.Title != nil {
		if msg := checkText(*p.Title, "title"); msg != "" {
			verr.add("title", "value_error", msg)
		} else {
			q.Title = p.Title
		}
	}
	if p.AuthorName != nil {
		if msg := checkText(*p.AuthorName, "author_name"); msg != "" {
			verr.add("author_name", "value_error", msg)
		} else {
			q.AuthorName = p.AuthorName
		}
	}
	if p.PublishedYear != nil {
		if *p.PublishedYear <= MinPublishedYear {
			verr.add("published_year", "value_error", "published_year must be above 1800")
		} else {
			q.PublishedYear = p.PublishedYear
		}
	}
	if p.Genre != nil {
		if g, ok := ParseGenre(*p.Genre); ok {
			q.Genre = &g
		} else {
			verr.add("genre", "enum", genreMessage())
		}
	}
	if col := strings.TrimSpace(p.OrderBy); col != "" {
		if c := SortColumn(col); c.Valid() {
			q.OrderBy = c
		} else {
			verr.add("order_by", "invalid_sort_column", "order_by must be one of id, title, published_year, created_at, updated_at")
		}
	}
	if err := verr.orNil(); err != nil {
		return Query{}, err
	}
	return q, nil
}

// ParseQuery reads listing parameters from a URL query string.
func ParseQuery(values url.Values) (Query, Page, error) {
	var (
		verr   ValidationError
		params QueryParams
		page   = Page{Skip: 0, Limit: DefaultLimit}
	)
	if values.Has("title") {
		v := values.Get("title")
		params.Title = &v
	}
	if values.Has("author_name") {
		v := values.Get("author_name")
		params.AuthorName = &v
	}
	if values.Has("genre") {
		v := values.Get("genre")
		params.Genre = &v
	}
	if raw := strings.TrimSpace(values.Get("published_year")); raw != "" {
		if year, err := strconv.Atoi(raw); err != nil {
			verr.add("published_year", "int_parsing", "Input should be a valid integer")
		} else {
			params.PublishedYear = &year
		}
	}
	params.OrderBy = values.Get("order_by")
	if raw := strings.TrimSpace(values.Get("order_desc")); raw != "" {
		desc, err := strconv.ParseBool(raw)
		if err != nil {
			verr.add("order_desc", "bool_parsing", "Input should be a valid boolean")
		}
		params.Desc = desc
	}
	if raw := strings.TrimSpace(values.Get("skip")); raw != "" {
		if n, err := strconv.Atoi(raw); err != nil || n < 0 {
			verr.add("skip", "greater_than_equal", "skip must be a non-negative integer")
		} else {
			page.Skip = n
		}
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err != nil || n < 1 || n > MaxLimit {
			verr.add("limit", "less_than_equal", "limit must be between 1 and 1000")
		} else {
			page.Limit = n
		}
	}

	q, err := NewQuery(params)
	if err != nil {
		var qerr *ValidationError
		if errors.As(err, &qerr) {
			verr.Errors = append(verr.Errors, qerr.Errors...)
		}
	}
	if err := verr.orNil(); err != nil {
		return Query{}, Page{}, err
	}
	return q, page, nil
}
