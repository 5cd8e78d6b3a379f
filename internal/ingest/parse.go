// Package ingest turns uploaded CSV or JSON files into books, one
// transaction per batch.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"

	"bookcat.org/internal/catalog"
)

const (
	ContentTypeCSV  = "text/csv"
	ContentTypeJSON = "application/json"
)

var (
	ErrUnsupportedFormat = errors.New("ingest: unsupported format")
	ErrMalformedFile     = errors.New("ingest: malformed file")
)

// Row is one parsed record. Line is 1-based: the CSV line or the JSON
// array position.
type Row struct {
	Line int
	catalog.RawBook
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse decodes r according to contentType.
func Parse(contentType string, r io.Reader) ([]Row, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
	}
	switch strings.ToLower(mediaType) {
	case ContentTypeCSV:
		return parseCSV(r)
	case ContentTypeJSON:
		return parseJSON(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, mediaType)
	}
}

func parseCSV(r io.Reader) ([]Row, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %v", ErrMalformedFile, err)
	}
	idx := headerIndex(header)

	var rows []Row
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
		}
		if isEmptyRecord(record) {
			continue
		}
		line, _ := cr.FieldPos(0)
		rows = append(rows, Row{
			Line: line,
			RawBook: catalog.RawBook{
				Title:         idx.cell(record, "title"),
				PublishedYear: idx.cell(record, "published_year"),
				Genre:         idx.cell(record, "genre"),
			},
		})
	}
	return rows, nil
}

type columns map[string]int

func headerIndex(header []string) columns {
	idx := make(columns, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	return idx
}

func (c columns) cell(record []string, name string) *string {
	pos, ok := c[name]
	if !ok || pos >= len(record) {
		return nil
	}
	v := strings.TrimSpace(record[pos])
	return &v
}

func isEmptyRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseJSON(r io.Reader) ([]Row, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: expected a list of objects: %v", ErrMalformedFile, err)
	}

	rows := make([]Row, 0, len(items))
	for i, item := range items {
		rows = append(rows, Row{
			Line: i + 1,
			RawBook: catalog.RawBook{
				Title:         jsonField(item, "title"),
				PublishedYear: jsonField(item, "published_year"),
				Genre:         jsonField(item, "genre"),
			},
		})
	}
	return rows, nil
}

// jsonField renders scalar values as text. null counts as absent.
func jsonField(item map[string]any, key string) *string {
	v, ok := item[key]
	if !ok || v == nil {
		return nil
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	default:
		// objects and arrays never validate; keep their JSON text for the error.
		b, _ := json.Marshal(t)
		s = string(b)
	}
	return &s
}
