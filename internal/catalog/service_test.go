package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"bookcat.org/internal/auth"
	"bookcat.org/internal/objectstore"
)

type memoryStore struct {
	mu     sync.Mutex
	nextID int64
	books  map[int64]Book
}

func newMemoryStore() *memoryStore {
	return &memoryStore{books: make(map[int64]Book)}
}

func (m *memoryStore) BookByID(_ context.Context, id int64) (BookWithAuthor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return BookWithAuthor{}, ErrNotFound
	}
	return BookWithAuthor{Book: b, Author: Author{ID: b.AuthorID}}, nil
}

func (m *memoryStore) InsertBook(_ context.Context, authorID int64, nb NewBook) (Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := time.Now().UTC()
	b := Book{
		ID:            m.nextID,
		Title:         nb.Title,
		PublishedYear: nb.PublishedYear,
		Genre:         nb.Genre,
		AuthorID:      authorID,
		FilePath:      nb.FilePath,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.books[b.ID] = b
	return b, nil
}

func (m *memoryStore) InsertBooksBulk(ctx context.Context, authorID int64, books []NewBook) error {
	for _, nb := range books {
		if _, err := m.InsertBook(ctx, authorID, nb); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryStore) UpdateBook(_ context.Context, id int64, patch BookPatch) (Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return Book{}, ErrNotFound
	}
	if patch.Title != nil {
		b.Title = *patch.Title
	}
	if patch.PublishedYear != nil {
		b.PublishedYear = *patch.PublishedYear
	}
	if patch.Genre != nil {
		b.Genre = *patch.Genre
	}
	if patch.FilePath != nil {
		b.FilePath = *patch.FilePath
	}
	b.UpdatedAt = time.Now().UTC()
	m.books[id] = b
	return b, nil
}

func (m *memoryStore) DeleteBook(_ context.Context, id int64) (Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return Book{}, ErrNotFound
	}
	delete(m.books, id)
	return b, nil
}

func (m *memoryStore) QueryBooks(_ context.Context, _ Query, page Page) ([]BookWithAuthor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []BookWithAuthor
	for id := int64(1); id <= m.nextID; id++ {
		if b, ok := m.books[id]; ok {
			out = append(out, BookWithAuthor{Book: b, Author: Author{ID: b.AuthorID}})
		}
	}
	if page.Skip >= len(out) {
		return nil, nil
	}
	out = out[page.Skip:]
	if len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, nil
}

func validRaw() RawBook {
	return RawBook{Title: strp("Dune"), PublishedYear: strp("1965"), Genre: strp("Sci-Fi")}
}

func newTestService() (*Service, *memoryStore, *objectstore.Memory) {
	store := newMemoryStore()
	files := objectstore.NewMemory()
	svc := NewService(store, files, WithClock(func() time.Time { return fixedNow }))
	return svc, store, files
}

func TestServiceCreateStoresFileAndBook(t *testing.T) {
	svc, _, files := newTestService()
	owner := auth.Principal{ID: 1}

	book, err := svc.Create(context.Background(), owner, validRaw(), Upload{
		Filename: "dune.pdf",
		Size:     4,
		Body:     strings.NewReader("%PDF"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if book.AuthorID != owner.ID || !strings.HasPrefix(book.FilePath, "books/") {
		t.Fatalf("unexpected book: %+v", book)
	}
	if !files.Has(book.FilePath) {
		t.Fatalf("file was not uploaded")
	}
}

func TestServiceCreateRejectsBadFiles(t *testing.T) {
	svc, store, files := newTestService()
	owner := auth.Principal{ID: 1}
	ctx := context.Background()

	_, err := svc.Create(ctx, owner, validRaw(), Upload{Filename: "cover.png", Size: 3, Body: strings.NewReader("png")})
	if !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
	}
	_, err = svc.Create(ctx, owner, validRaw(), Upload{Filename: "empty.txt", Body: strings.NewReader("")})
	if !errors.Is(err, ErrUnsupportedFileSize) {
		t.Fatalf("expected ErrUnsupportedFileSize, got %v", err)
	}
	_, err = svc.Create(ctx, owner, RawBook{Title: strp("X")}, Upload{Filename: "a.txt", Size: 1, Body: strings.NewReader("a")})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if files.Len() != 0 || len(store.books) != 0 {
		t.Fatalf("nothing should be stored after rejected creates")
	}
}

func TestServiceDeleteRequiresOwnership(t *testing.T) {
	svc, store, files := newTestService()
	ctx := context.Background()
	owner := auth.Principal{ID: 1}
	intruder := auth.Principal{ID: 2}

	book, err := svc.Create(ctx, owner, validRaw(), Upload{Filename: "dune.txt", Size: 4, Body: strings.NewReader("text")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Delete(ctx, intruder, book.ID); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, ok := store.books[book.ID]; !ok || !files.Has(book.FilePath) {
		t.Fatalf("book must survive a forbidden delete")
	}

	if err := svc.Delete(ctx, owner, book.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := store.books[book.ID]; ok || files.Has(book.FilePath) {
		t.Fatalf("book and file should be gone")
	}
	if err := svc.Delete(ctx, owner, book.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceUpdateReplacesFile(t *testing.T) {
	svc, _, files := newTestService()
	ctx := context.Background()
	owner := auth.Principal{ID: 1}

	book, err := svc.Create(ctx, owner, validRaw(), Upload{Filename: "v1.txt", Size: 2, Body: strings.NewReader("v1")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Update(ctx, auth.Principal{ID: 9}, book.ID, RawBook{Title: strp("Hijack")}, nil); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	updated, err := svc.Update(ctx, owner, book.ID, RawBook{Title: strp("Dune Messiah")}, &Upload{
		Filename: "v2.txt",
		Body:     strings.NewReader("v2"),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "Dune Messiah" || updated.FilePath == book.FilePath {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if files.Has(book.FilePath) || !files.Has(updated.FilePath) {
		t.Fatalf("old file should be replaced by the new one")
	}

	if _, err := svc.Update(ctx, owner, book.ID, RawBook{PublishedYear: strp("1800")}, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestServiceDownload(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	book, err := svc.Create(ctx, auth.Principal{ID: 1}, validRaw(), Upload{Filename: "d.txt", Size: 5, Body: strings.NewReader("hello")})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	data, err := svc.Download(ctx, strings.TrimPrefix(book.FilePath, "books/"))
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected data: %q", data)
	}
	if _, err := svc.Download(ctx, "../etc/passwd"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceAllPagesThroughResults(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	books := make([]NewBook, MaxLimit+5)
	for i := range books {
		books[i] = NewBook{Title: "T", PublishedYear: 2000, Genre: GenreOther}
	}
	if err := store.InsertBooksBulk(ctx, 1, books); err != nil {
		t.Fatalf("InsertBooksBulk: %v", err)
	}
	all, err := svc.All(ctx, Query{OrderBy: SortID})
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != MaxLimit+5 {
		t.Fatalf("expected %d books, got %d", MaxLimit+5, len(all))
	}
}
