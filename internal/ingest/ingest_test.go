package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"bookcat.org/internal/catalog"
)

var fixedNow = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

type recordingStore struct {
	batches [][]catalog.NewBook
	failOn  int // 1-based call that fails, 0 never
	calls   int
}

func (s *recordingStore) InsertBooksBulk(_ context.Context, _ int64, books []catalog.NewBook) error {
	s.calls++
	if s.failOn == s.calls {
		return errors.New("connection reset")
	}
	s.batches = append(s.batches, books)
	return nil
}

func (s *recordingStore) total() int {
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func newTestPipeline(store BulkInserter) *Pipeline {
	return NewPipeline(store,
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func csvBody(rows ...string) io.Reader {
	return strings.NewReader("title,published_year,genre\n" + strings.Join(rows, "\n") + "\n")
}

func TestParseCSV(t *testing.T) {
	body := "\xEF\xBB\xBFTitle, Published_Year ,genre\nDune,1965,Sci-Fi\n\n,,\nEmma,1815\n"
	rows, err := Parse("text/csv; charset=utf-8", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if *rows[0].Title != "Dune" || *rows[0].PublishedYear != "1965" || *rows[0].Genre != "Sci-Fi" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[0].Line != 2 || rows[1].Line != 5 {
		t.Fatalf("unexpected line numbers: %d, %d", rows[0].Line, rows[1].Line)
	}
	if rows[1].Genre != nil {
		t.Fatalf("short record must leave genre absent")
	}
}

func TestParseJSON(t *testing.T) {
	body := `[{"title":"Dune","published_year":1965,"genre":"Sci-Fi"},{"title":null,"published_year":"1990"}]`
	rows, err := Parse("application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if *rows[0].PublishedYear != "1965" {
		t.Fatalf("numbers should keep their text, got %q", *rows[0].PublishedYear)
	}
	if rows[1].Title != nil || rows[1].Genre != nil {
		t.Fatalf("null and missing keys must be absent: %+v", rows[1])
	}
}

func TestParseRejects(t *testing.T) {
	if _, err := Parse("application/xml", strings.NewReader("<books/>")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := Parse("application/json", strings.NewReader(`{"title":"x"}`)); !errors.Is(err, ErrMalformedFile) {
		t.Fatalf("expected ErrMalformedFile, got %v", err)
	}
	rows, err := Parse("application/json", strings.NewReader(""))
	if err != nil || len(rows) != 0 {
		t.Fatalf("empty body should parse to no rows, got %v %v", rows, err)
	}
}

func TestBatches(t *testing.T) {
	for _, tc := range []struct{ rows, size int }{{0, 3}, {1, 3}, {3, 3}, {7, 3}, {10, 1}, {5, 100}} {
		rows := make([]Row, tc.rows)
		var sizes []int
		for b := range Batches(rows, tc.size) {
			sizes = append(sizes, len(b))
		}
		want := (tc.rows + tc.size - 1) / tc.size
		if len(sizes) != want {
			t.Fatalf("rows=%d size=%d: expected %d batches, got %d", tc.rows, tc.size, want, len(sizes))
		}
		for i, n := range sizes {
			if i < len(sizes)-1 && n != tc.size {
				t.Fatalf("rows=%d size=%d: batch %d has %d rows", tc.rows, tc.size, i, n)
			}
			if n == 0 || n > tc.size {
				t.Fatalf("rows=%d size=%d: bad batch size %d", tc.rows, tc.size, n)
			}
		}
	}
}

func TestBatchesStopsEarly(t *testing.T) {
	seen := 0
	for range Batches(make([]Row, 10), 2) {
		seen++
		if seen == 2 {
			break
		}
	}
	if seen != 2 {
		t.Fatalf("expected 2 batches, got %d", seen)
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{"": PolicyRaiseError, "skip": PolicySkip, "RAISE_ERROR": PolicyRaiseError}
	for in, want := range cases {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParsePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("IGNORE"); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestImportEmpty(t *testing.T) {
	store := &recordingStore{}
	res, err := newTestPipeline(store).Import(context.Background(), Request{
		ContentType: ContentTypeCSV,
		Body:        strings.NewReader("title,published_year,genre\n"),
		BatchSize:   10,
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Status != StatusEmpty || store.calls != 0 {
		t.Fatalf("expected empty without transactions, got %+v calls=%d", res, store.calls)
	}
}

func TestImportSkipPersistsValidRows(t *testing.T) {
	store := &recordingStore{}
	rows := []string{
		"Dune,1965,Sci-Fi",
		"12345,1990,Fiction",
		"Emma,1815,Fiction",
		"Old,1800,History",
		"Future,2030,Fantasy",
		"Hobbit,1937,Fantasy",
		"Odd,1999,Poetry",
	}
	res, err := newTestPipeline(store).Import(context.Background(), Request{
		ContentType: ContentTypeCSV,
		Body:        csvBody(rows...),
		BatchSize:   2,
		Policy:      PolicySkip,
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Status != StatusSuccess || res.Imported != 3 || res.Skipped != 4 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if store.total() != 3 {
		t.Fatalf("expected 3 persisted rows, got %d", store.total())
	}
}

func TestImportRaiseErrorKeepsPriorBatches(t *testing.T) {
	store := &recordingStore{}
	res, err := newTestPipeline(store).Import(context.Background(), Request{
		ContentType: ContentTypeCSV,
		Body:        csvBody("Dune,1965,Sci-Fi", "Emma,1815,Fiction", "Hobbit,1937,Fantasy", "Bad,1700,Fiction", "Late,2001,Other"),
		BatchSize:   2,
		Policy:      PolicyRaiseError,
	})
	if !errors.Is(err, ErrImportFailed) || !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("expected invalid row import failure, got %v", err)
	}
	var rowErr *RowError
	if !errors.As(err, &rowErr) || rowErr.Line != 5 {
		t.Fatalf("expected failure on line 5, got %v", err)
	}
	if len(store.batches) != 1 || store.total() != 2 {
		t.Fatalf("only the first batch may be committed, got %v", store.batches)
	}
	if res.Imported != 2 {
		t.Fatalf("expected 2 imported before failure, got %+v", res)
	}
}

func TestImportStorageFailureStops(t *testing.T) {
	store := &recordingStore{failOn: 2}
	_, err := newTestPipeline(store).Import(context.Background(), Request{
		ContentType: ContentTypeJSON,
		Body:        strings.NewReader(`[{"title":"A","published_year":2000,"genre":"Other"},{"title":"B","published_year":2001,"genre":"Other"},{"title":"C","published_year":2002,"genre":"Other"}]`),
		BatchSize:   1,
		Policy:      PolicySkip,
	})
	if !errors.Is(err, ErrImportFailed) || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected storage failure, got %v", err)
	}
	if store.calls != 2 || store.total() != 1 {
		t.Fatalf("import must stop at the failed batch: calls=%d total=%d", store.calls, store.total())
	}
}

func TestImportHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := &recordingStore{}
	_, err := newTestPipeline(store).Import(ctx, Request{
		ContentType: ContentTypeCSV,
		Body:        csvBody("Dune,1965,Sci-Fi"),
		BatchSize:   1,
	})
	if !errors.Is(err, context.Canceled) || store.calls != 0 {
		t.Fatalf("expected cancellation before any batch, got %v calls=%d", err, store.calls)
	}
}

func TestImportUnsupportedFormat(t *testing.T) {
	_, err := newTestPipeline(&recordingStore{}).Import(context.Background(), Request{
		ContentType: "application/pdf",
		Body:        strings.NewReader("%PDF"),
	})
	if !errors.Is(err, ErrUnsupportedFormat) || errors.Is(err, ErrImportFailed) {
		t.Fatalf("expected bare ErrUnsupportedFormat, got %v", err)
	}
}

func ExampleBatches() {
	rows := make([]Row, 5)
	for b := range Batches(rows, 2) {
		fmt.Print(len(b), " ")
	}
	// Output: 2 2 1
}
