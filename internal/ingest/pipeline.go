package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"bookcat.org/internal/catalog"
	"bookcat.org/internal/obs"
)

// ErrImportFailed wraps every error that stops an import after parsing began.
var ErrImportFailed = errors.New("ingest: import failed")

// BulkInserter writes one batch of books atomically.
type BulkInserter interface {
	InsertBooksBulk(ctx context.Context, authorID int64, books []catalog.NewBook) error
}

// Status is the outcome reported to the client.
type Status string

const (
	StatusEmpty   Status = "empty"
	StatusSuccess Status = "success"
)

// Result summarizes an import. Imported counts rows in committed batches,
// so it is meaningful even when Import returns an error.
type Result struct {
	Status   Status `json:"message"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
}

// Request describes one uploaded import file.
type Request struct {
	ContentType string
	Body        io.Reader
	BatchSize   int
	Policy      Policy
	AuthorID    int64
}

// Pipeline parses, batches, validates and persists book imports.
// Batches run strictly in order; each one is its own transaction.
type Pipeline struct {
	store BulkInserter
	now   func() time.Time
	log   *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithClock sets the time source for year validation.
func WithClock(fn func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if fn != nil {
			p.now = fn
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

func NewPipeline(store BulkInserter, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{store: store, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Import runs the whole file. A format the parser does not know returns
// ErrUnsupportedFormat unwrapped; everything after that is wrapped in
// ErrImportFailed. Batches committed before a failure stay committed.
func (p *Pipeline) Import(ctx context.Context, req Request) (Result, error) {
	if req.Policy == "" {
		req.Policy = PolicyRaiseError
	}
	rows, err := Parse(req.ContentType, req.Body)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %w", ErrImportFailed, err)
	}
	if len(rows) == 0 {
		return Result{Status: StatusEmpty}, nil
	}

	var res Result
	now := p.now()
	n := 0
	for batch := range Batches(rows, req.BatchSize) {
		n++
		if err := ctx.Err(); err != nil {
			return finish(res), fmt.Errorf("%w: %w", ErrImportFailed, err)
		}
		books, skipped, err := ValidateBatch(batch, req.Policy, now)
		if err != nil {
			p.log.Warn("import aborted on invalid row", "batch", n, "author_id", req.AuthorID, "error", err)
			return finish(res), fmt.Errorf("%w: %w", ErrImportFailed, err)
		}
		res.Skipped += skipped
		obs.ImportRows("skipped", skipped)
		if len(books) == 0 {
			continue
		}
		if err := p.persistBatch(ctx, books, req.AuthorID); err != nil {
			p.log.Error("import batch rolled back", "batch", n, "author_id", req.AuthorID, "error", err)
			return finish(res), fmt.Errorf("%w: %w", ErrImportFailed, err)
		}
		res.Imported += len(books)
	}
	p.log.Info("import finished", "author_id", req.AuthorID, "batches", n, "imported", res.Imported, "skipped", res.Skipped)
	return finish(res), nil
}

func (p *Pipeline) persistBatch(ctx context.Context, books []catalog.NewBook, authorID int64) error {
	if err := p.store.InsertBooksBulk(ctx, authorID, books); err != nil {
		obs.ImportBatch("rolled_back")
		return err
	}
	obs.ImportBatch("committed")
	obs.ImportRows("imported", len(books))
	return nil
}

func finish(res Result) Result {
	if res.Imported == 0 {
		res.Status = StatusEmpty
	} else {
		res.Status = StatusSuccess
	}
	return res
}
