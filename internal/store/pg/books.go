package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bookcat.org/internal/catalog"
)

const bookColumns = `b.id, b.title, b.published_year, b.genre, b.author_id, coalesce(b.file_path, ''), b.created_at, b.updated_at`

// orderColumns is the only source of ORDER BY text; user input never reaches SQL.
var orderColumns = map[catalog.SortColumn]string{
	catalog.SortID:            "b.id",
	catalog.SortTitle:         "b.title",
	catalog.SortPublishedYear: "b.published_year",
	catalog.SortCreatedAt:     "b.created_at",
	catalog.SortUpdatedAt:     "b.updated_at",
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(row scanner, extra ...any) (catalog.Book, error) {
	var (
		b     catalog.Book
		genre string
	)
	dest := append([]any{&b.ID, &b.Title, &b.PublishedYear, &genre, &b.AuthorID, &b.FilePath, &b.CreatedAt, &b.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return catalog.Book{}, err
	}
	b.Genre = catalog.Genre(genre)
	return b, nil
}

func scanBookWithAuthor(row scanner) (catalog.BookWithAuthor, error) {
	var a catalog.Author
	b, err := scanBook(row, &a.ID, &a.Name, &a.Email)
	if err != nil {
		return catalog.BookWithAuthor{}, err
	}
	return catalog.BookWithAuthor{Book: b, Author: a}, nil
}

func (s *Store) BookByID(ctx context.Context, id int64) (catalog.BookWithAuthor, error) {
	if s.db == nil {
		return catalog.BookWithAuthor{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		select `+bookColumns+`, a.id, a.name, a.email
		from books b
		join authors a on a.id = b.author_id
		where b.id = $1
	`, id)
	book, err := scanBookWithAuthor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.BookWithAuthor{}, catalog.ErrNotFound
	}
	return book, err
}

func (s *Store) InsertBook(ctx context.Context, authorID int64, nb catalog.NewBook) (catalog.Book, error) {
	if s.db == nil {
		return catalog.Book{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into books as b (title, published_year, genre, author_id, file_path)
		values ($1, $2, $3, $4, $5)
		returning `+bookColumns,
		nb.Title, nb.PublishedYear, string(nb.Genre), authorID, nullIfEmpty(nb.FilePath))
	book, err := scanBook(row)
	if err != nil {
		return catalog.Book{}, mapWriteError(err)
	}
	return book, nil
}

// InsertBooksBulk inserts every book or none.
func (s *Store) InsertBooksBulk(ctx context.Context, authorID int64, books []catalog.NewBook) error {
	if s.db == nil {
		return errNoDB
	}
	if len(books) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for i, nb := range books {
		if _, err := tx.ExecContext(ctx, `
			insert into books (title, published_year, genre, author_id, file_path)
			values ($1, $2, $3, $4, $5)
		`, nb.Title, nb.PublishedYear, string(nb.Genre), authorID, nullIfEmpty(nb.FilePath)); err != nil {
			return fmt.Errorf("insert book %d of %d: %w", i+1, len(books), mapWriteError(err))
		}
	}
	return tx.Commit()
}

func (s *Store) UpdateBook(ctx context.Context, id int64, patch catalog.BookPatch) (catalog.Book, error) {
	if s.db == nil {
		return catalog.Book{}, errNoDB
	}
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.PublishedYear != nil {
		add("published_year", *patch.PublishedYear)
	}
	if patch.Genre != nil {
		add("genre", string(*patch.Genre))
	}
	if patch.FilePath != nil {
		add("file_path", nullIfEmpty(*patch.FilePath))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		update books as b set %s
		where b.id = $%d
		returning %s
	`, strings.Join(sets, ", "), len(args), bookColumns), args...)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Book{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Book{}, mapWriteError(err)
	}
	return book, nil
}

func (s *Store) DeleteBook(ctx context.Context, id int64) (catalog.Book, error) {
	if s.db == nil {
		return catalog.Book{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		delete from books as b
		where b.id = $1
		returning `+bookColumns, id)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Book{}, catalog.ErrNotFound
	}
	return book, err
}

func (s *Store) QueryBooks(ctx context.Context, q catalog.Query, page catalog.Page) ([]catalog.BookWithAuthor, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	query, args, err := buildBookQuery(q, page)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.BookWithAuthor
	for rows.Next() {
		book, err := scanBookWithAuthor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, book)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func buildBookQuery(q catalog.Query, page catalog.Page) (string, []any, error) {
	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = catalog.SortID
	}
	col, ok := orderColumns[orderBy]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", catalog.ErrInvalidSortColumn, orderBy)
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.Title != nil {
		where = append(where, "b.title ilike "+arg("%"+escapeLike(*q.Title)+"%"))
	}
	if q.AuthorName != nil {
		where = append(where, "a.name ilike "+arg("%"+escapeLike(*q.AuthorName)+"%"))
	}
	if q.PublishedYear != nil {
		where = append(where, "b.published_year = "+arg(*q.PublishedYear))
	}
	if q.Genre != nil {
		where = append(where, "b.genre = "+arg(string(*q.Genre)))
	}

	var sb strings.Builder
	sb.WriteString("select " + bookColumns + ", a.id, a.name, a.email\nfrom books b\njoin authors a on a.id = b.author_id")
	if len(where) > 0 {
		sb.WriteString("\nwhere " + strings.Join(where, " and "))
	}
	dir := "asc"
	if q.Desc {
		dir = "desc"
	}
	sb.WriteString("\norder by " + col + " " + dir)
	if col != "b.id" {
		sb.WriteString(", b.id " + dir)
	}
	limit := page.Limit
	if limit <= 0 {
		limit = catalog.DefaultLimit
	}
	sb.WriteString("\nlimit " + arg(limit) + " offset " + arg(max(page.Skip, 0)))
	return sb.String(), args, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func mapWriteError(err error) error {
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return fmt.Errorf("%w: author does not exist", catalog.ErrNotFound)
	}
	return err
}
