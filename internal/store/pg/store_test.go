package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"bookcat.org/internal/auth"
	"bookcat.org/internal/catalog"
)

var bookRowColumns = []string{"id", "title", "published_year", "genre", "author_id", "file_path", "created_at", "updated_at"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

func TestPrincipalByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("select id, name, email, password_hash, created_at\\s+from authors").
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash", "created_at"}).
			AddRow(int64(4), "Kyrylo Test", "user@example.com", "$2a$hash", created))
	mock.ExpectQuery("from authors").WithArgs("ghost@example.com").WillReturnError(sql.ErrNoRows)

	p, err := store.PrincipalByEmail(context.Background(), " User@Example.com ")
	if err != nil {
		t.Fatalf("PrincipalByEmail: %v", err)
	}
	if p.ID != 4 || p.PasswordHash != "$2a$hash" || !p.CreatedAt.Equal(created) {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if _, err := store.PrincipalByEmail(context.Background(), "ghost@example.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertPrincipalDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("insert into authors").
		WithArgs("Kyrylo Test", "user@example.com", "hash").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	_, err := store.InsertPrincipal(context.Background(), auth.Principal{Name: "Kyrylo Test", Email: "user@example.com", PasswordHash: "hash"})
	if !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestInsertBookMapsMissingAuthor(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("insert into books").
		WithArgs("Dune", 1965, "Sci-Fi", int64(99), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	_, err := store.InsertBook(context.Background(), 99, catalog.NewBook{Title: "Dune", PublishedYear: 1965, Genre: catalog.GenreSciFi, FilePath: "books/x_dune.pdf"})
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertBooksBulkCommits(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into books").WithArgs("Dune", 1965, "Sci-Fi", int64(1), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into books").WithArgs("Emma", 1815, "Fiction", int64(1), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := store.InsertBooksBulk(context.Background(), 1, []catalog.NewBook{
		{Title: "Dune", PublishedYear: 1965, Genre: catalog.GenreSciFi},
		{Title: "Emma", PublishedYear: 1815, Genre: catalog.GenreFiction},
	})
	if err != nil {
		t.Fatalf("InsertBooksBulk: %v", err)
	}
}

func TestInsertBooksBulkRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into books").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into books").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.InsertBooksBulk(context.Background(), 1, []catalog.NewBook{
		{Title: "Dune", PublishedYear: 1965, Genre: catalog.GenreSciFi},
		{Title: "Emma", PublishedYear: 1815, Genre: catalog.GenreFiction},
	})
	if err == nil || !strings.Contains(err.Error(), "insert book 2 of 2") {
		t.Fatalf("expected failure on second row, got %v", err)
	}
}

func TestBookByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("from books b\\s+join authors a").WithArgs(int64(5)).WillReturnError(sql.ErrNoRows)

	if _, err := store.BookByID(context.Background(), 5); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateBookSetsOnlyPatchedColumns(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	title := "Dune Messiah"
	mock.ExpectQuery(`update books as b set title = \$1, updated_at = now\(\)\s+where b.id = \$2`).
		WithArgs(title, int64(3)).
		WillReturnRows(sqlmock.NewRows(bookRowColumns).AddRow(int64(3), title, 1969, "Sci-Fi", int64(1), "", now, now))

	book, err := store.UpdateBook(context.Background(), 3, catalog.BookPatch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateBook: %v", err)
	}
	if book.Title != title || book.Genre != catalog.GenreSciFi {
		t.Fatalf("unexpected book: %+v", book)
	}
}

func TestDeleteBookReturnsRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery("delete from books as b").WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(bookRowColumns).AddRow(int64(3), "Dune", 1965, "Sci-Fi", int64(1), "books/a_dune.pdf", now, now))
	mock.ExpectQuery("delete from books as b").WithArgs(int64(4)).WillReturnError(sql.ErrNoRows)

	book, err := store.DeleteBook(context.Background(), 3)
	if err != nil {
		t.Fatalf("DeleteBook: %v", err)
	}
	if book.FilePath != "books/a_dune.pdf" {
		t.Fatalf("unexpected file path: %q", book.FilePath)
	}
	if _, err := store.DeleteBook(context.Background(), 4); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBuildBookQuery(t *testing.T) {
	title := "50%_off"
	year := 1965
	genre := catalog.GenreSciFi
	query, args, err := buildBookQuery(catalog.Query{
		Title:         &title,
		PublishedYear: &year,
		Genre:         &genre,
		OrderBy:       catalog.SortPublishedYear,
		Desc:          true,
	}, catalog.Page{Skip: 20, Limit: 10})
	if err != nil {
		t.Fatalf("buildBookQuery: %v", err)
	}
	for _, want := range []string{
		"b.title ilike $1",
		"b.published_year = $2",
		"b.genre = $3",
		"order by b.published_year desc, b.id desc",
		"limit $4 offset $5",
	} {
		if !strings.Contains(query, want) {
			t.Fatalf("query missing %q:\n%s", want, query)
		}
	}
	if args[0] != `%50\%\_off%` || args[3] != 10 || args[4] != 20 {
		t.Fatalf("unexpected args: %v", args)
	}

	if _, _, err := buildBookQuery(catalog.Query{OrderBy: "password_hash"}, catalog.Page{Limit: 10}); !errors.Is(err, catalog.ErrInvalidSortColumn) {
		t.Fatalf("expected ErrInvalidSortColumn, got %v", err)
	}
}

func TestQueryBooksScansAuthors(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	name := "herbert"
	cols := append(append([]string{}, bookRowColumns...), "author_id", "name", "email")
	mock.ExpectQuery("a.name ilike \\$1").
		WithArgs("%herbert%", 10, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), "Dune", 1965, "Sci-Fi", int64(2), "", now, now, int64(2), "Frank Herbert", "frank@example.com"))

	books, err := store.QueryBooks(context.Background(), catalog.Query{AuthorName: &name, OrderBy: catalog.SortID}, catalog.Page{Limit: 10})
	if err != nil {
		t.Fatalf("QueryBooks: %v", err)
	}
	if len(books) != 1 || books[0].Author.Name != "Frank Herbert" {
		t.Fatalf("unexpected books: %+v", books)
	}
}
