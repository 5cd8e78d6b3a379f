// Package export renders book listings as downloadable CSV or JSON.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"bookcat.org/internal/catalog"
)

// ErrUnsupportedFormat is returned before any output is produced.
var ErrUnsupportedFormat = errors.New("export: unsupported format")

// Format names an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Columns is the fixed field order of every export.
var Columns = []string{"id", "title", "published_year", "genre", "author_id", "author_name", "created_at", "updated_at"}

// Payload is a finished export file.
type Payload struct {
	Body        []byte
	ContentType string
	Filename    string
}

// ParseFormat accepts csv or json in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

type record struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	PublishedYear int    `json:"published_year"`
	Genre         string `json:"genre"`
	AuthorID      int64  `json:"author_id"`
	AuthorName    string `json:"author_name"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

func newRecord(b catalog.BookWithAuthor) record {
	return record{
		ID:            b.ID,
		Title:         b.Title,
		PublishedYear: b.PublishedYear,
		Genre:         string(b.Genre),
		AuthorID:      b.AuthorID,
		AuthorName:    b.Author.Name,
		CreatedAt:     timestamp(b.CreatedAt),
		UpdatedAt:     timestamp(b.UpdatedAt),
	}
}

func (r record) fields() []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.Title,
		strconv.Itoa(r.PublishedYear),
		r.Genre,
		strconv.FormatInt(r.AuthorID, 10),
		r.AuthorName,
		r.CreatedAt,
		r.UpdatedAt,
	}
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Render encodes books in the requested format.
func Render(books []catalog.BookWithAuthor, format Format) (Payload, error) {
	switch format {
	case FormatCSV:
		body, err := renderCSV(books)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Body: body, ContentType: "text/csv", Filename: "books.csv"}, nil
	case FormatJSON:
		body, err := renderJSON(books)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Body: body, ContentType: "application/json", Filename: "books.json"}, nil
	default:
		return Payload{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func renderCSV(books []catalog.BookWithAuthor) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Columns); err != nil {
		return nil, err
	}
	for _, b := range books {
		if err := w.Write(newRecord(b).fields()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export csv: %w", err)
	}
	return buf.Bytes(), nil
}

func renderJSON(books []catalog.BookWithAuthor) ([]byte, error) {
	out := make([]record, 0, len(books))
	for _, b := range books {
		out = append(out, newRecord(b))
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("export json: %w", err)
	}
	return body, nil
}
