package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"bookcat.org/internal/auth"
)

// Store is the persistence contract for books.
type Store interface {
	BookByID(ctx context.Context, id int64) (BookWithAuthor, error)
	InsertBook(ctx context.Context, authorID int64, b NewBook) (Book, error)
	// InsertBooksBulk writes all books in one transaction.
	InsertBooksBulk(ctx context.Context, authorID int64, books []NewBook) error
	UpdateBook(ctx context.Context, id int64, patch BookPatch) (Book, error)
	DeleteBook(ctx context.Context, id int64) (Book, error)
	QueryBooks(ctx context.Context, q Query, page Page) ([]BookWithAuthor, error)
}

// Files is the object storage used for book files.
type Files interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Upload is a client supplied file.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// Service implements book operations on top of Store and Files.
type Service struct {
	store       Store
	files       Files
	now         func() time.Time
	maxFileSize int64
	log         *slog.Logger
}

// Option configures Service behavior.
type Option func(*Service)

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFileSize = n
		}
	}
}

// WithClock overrides time source used for year validation.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithLogger sets the logger used for best-effort cleanup failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// NewService wires the catalog. files must be safe for concurrent use.
func NewService(store Store, files Files, opts ...Option) *Service {
	s := &Service{
		store:       store,
		files:       files,
		now:         time.Now,
		maxFileSize: DefaultMaxFileSize,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock. cmd/api hands it to ingest.WithClock so
// imported and single-created books are validated against the same year.
func (s *Service) Now() time.Time { return s.now() }

// Get returns a single book with its author.
func (s *Service) Get(ctx context.Context, id int64) (BookWithAuthor, error) {
	return s.store.BookByID(ctx, id)
}

// List returns one page of books matching q.
func (s *Service) List(ctx context.Context, q Query, page Page) ([]BookWithAuthor, error) {
	if page.Limit <= 0 {
		page.Limit = DefaultLimit
	}
	if page.Skip < 0 {
		page.Skip = 0
	}
	return s.store.QueryBooks(ctx, q, page)
}

// All returns every book matching q, reading MaxLimit rows at a time.
func (s *Service) All(ctx context.Context, q Query) ([]BookWithAuthor, error) {
	var out []BookWithAuthor
	for skip := 0; ; skip += MaxLimit {
		batch, err := s.store.QueryBooks(ctx, q, Page{Skip: skip, Limit: MaxLimit})
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < MaxLimit {
			return out, nil
		}
	}
}

// Create validates the fields and file, uploads the file and stores the book.
func (s *Service) Create(ctx context.Context, p auth.Principal, raw RawBook, file Upload) (Book, error) {
	nb, err := raw.Validate(s.now())
	if err != nil {
		return Book{}, err
	}
	key, err := s.putFile(ctx, file)
	if err != nil {
		return Book{}, err
	}
	nb.FilePath = key

	book, err := s.store.InsertBook(ctx, p.ID, nb)
	if err != nil {
		s.removeFile(ctx, key)
		return Book{}, err
	}
	return book, nil
}

// Update applies a partial update owned by p. A new file replaces the old one.
func (s *Service) Update(ctx context.Context, p auth.Principal, id int64, raw RawBook, file *Upload) (Book, error) {
	current, err := s.store.BookByID(ctx, id)
	if err != nil {
		return Book{}, err
	}
	if err := auth.AssertOwner(current.Book, p); err != nil {
		return Book{}, err
	}
	patch, err := raw.Patch(s.now())
	if err != nil {
		return Book{}, err
	}

	var newKey string
	if file != nil {
		if newKey, err = s.putFile(ctx, *file); err != nil {
			return Book{}, err
		}
		patch.FilePath = &newKey
	}
	if patch.Empty() {
		return current.Book, nil
	}

	updated, err := s.store.UpdateBook(ctx, id, patch)
	if err != nil {
		if newKey != "" {
			s.removeFile(ctx, newKey)
		}
		return Book{}, err
	}
	if newKey != "" && current.FilePath != "" && current.FilePath != newKey {
		s.removeFile(ctx, current.FilePath)
	}
	return updated, nil
}

// Delete removes a book owned by p and then its file.
func (s *Service) Delete(ctx context.Context, p auth.Principal, id int64) error {
	current, err := s.store.BookByID(ctx, id)
	if err != nil {
		return err
	}
	if err := auth.AssertOwner(current.Book, p); err != nil {
		return err
	}
	deleted, err := s.store.DeleteBook(ctx, id)
	if err != nil {
		return err
	}
	if deleted.FilePath == "" {
		return nil
	}
	if err := s.files.Delete(ctx, deleted.FilePath); err != nil {
		return fmt.Errorf("delete file %s: %w", deleted.FilePath, err)
	}
	return nil
}

// Download reads a stored file by its public name (the part after books/).
func (s *Service) Download(ctx context.Context, name string) ([]byte, error) {
	key, err := DownloadKey(name)
	if err != nil {
		return nil, err
	}
	return s.files.Download(ctx, key)
}

func (s *Service) putFile(ctx context.Context, file Upload) (string, error) {
	if file.Body == nil || CleanFilename(file.Filename) == "" {
		return "", &ValidationError{Errors: []FieldError{{Field: "file", Message: "Field required", Type: "missing"}}}
	}
	contentType, err := FileType(file.Filename)
	if err != nil {
		return "", err
	}
	body, size := file.Body, file.Size
	if size <= 0 {
		// Size unknown: buffer up to the limit so it can be checked.
		data, err := io.ReadAll(io.LimitReader(file.Body, s.maxFileSize+1))
		if err != nil {
			return "", fmt.Errorf("read upload: %w", err)
		}
		body, size = bytes.NewReader(data), int64(len(data))
	}
	if err := CheckFileSize(size, s.maxFileSize); err != nil {
		return "", err
	}
	key := ObjectKey(file.Filename)
	if err := s.files.Upload(ctx, key, body, size, contentType); err != nil {
		return "", fmt.Errorf("upload file: %w", err)
	}
	return key, nil
}

func (s *Service) removeFile(ctx context.Context, key string) {
	if err := s.files.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("book file cleanup failed", "key", key, "error", err)
	}
}
