package catalog

import (
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("catalog: book not found")
	ErrValidation          = errors.New("catalog: validation failed")
	ErrUnsupportedFileType = errors.New("catalog: unsupported file type")
	ErrUnsupportedFileSize = errors.New("catalog: unsupported file size")
)

// Genre is one of a fixed set of book genres.
type Genre string

const (
	GenreFiction    Genre = "Fiction"
	GenreNonFiction Genre = "Non-fiction"
	GenreSciFi      Genre = "Sci-Fi"
	GenreFantasy    Genre = "Fantasy"
	GenreMystery    Genre = "Mystery"
	GenreBiography  Genre = "Biography"
	GenreHistory    Genre = "History"
	GenreOther      Genre = "Other"
)

// Genres lists every accepted genre in display order.
var Genres = []Genre{
	GenreFiction,
	GenreNonFiction,
	GenreSciFi,
	GenreFantasy,
	GenreMystery,
	GenreBiography,
	GenreHistory,
	GenreOther,
}

// ParseGenre matches s exactly against the known genres.
func ParseGenre(s string) (Genre, bool) {
	for _, g := range Genres {
		if string(g) == s {
			return g, true
		}
	}
	return "", false
}

// Book is a stored catalog record.
type Book struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	PublishedYear int       `json:"published_year"`
	Genre         Genre     `json:"genre"`
	AuthorID      int64     `json:"author_id"`
	FilePath      string    `json:"file_path"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OwnerID implements auth.Owned.
func (b Book) OwnerID() int64 { return b.AuthorID }

// Author is the public view of a book's owner.
type Author struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// BookWithAuthor is a book joined with its author row.
type BookWithAuthor struct {
	Book
	Author Author `json:"author"`
}

// NewBook is a validated creation record. The author comes from the caller.
type NewBook struct {
	Title         string
	PublishedYear int
	Genre         Genre
	FilePath      string
}

// BookPatch carries the fields of a partial update; nil fields are left alone.
type BookPatch struct {
	Title         *string
	PublishedYear *int
	Genre         *Genre
	FilePath      *string
}

// Empty reports whether the patch changes nothing.
func (p BookPatch) Empty() bool {
	return p.Title == nil && p.PublishedYear == nil && p.Genre == nil && p.FilePath == nil
}

// Page bounds a listing.
type Page struct {
	Skip  int
	Limit int
}

const (
	DefaultLimit = 10
	MaxLimit     = 1000
)
