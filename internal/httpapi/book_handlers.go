package httpapi

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"bookcat.org/internal/audit"
	"bookcat.org/internal/auth"
	"bookcat.org/internal/catalog"
	"bookcat.org/internal/export"
	"bookcat.org/internal/ingest"
)

const (
	// multipartOverhead leaves room for form fields and part headers
	// on top of the largest accepted file.
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
)

func (a *API) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q, page, err := catalog.ParseQuery(r.URL.Query())
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	books, err := a.catalog.List(r.Context(), q, page)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	if books == nil {
		books = []catalog.BookWithAuthor{}
	}
	writeJSON(w, http.StatusOK, books)
}

func (a *API) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(r)
	if !ok {
		invalidField(w, r, "book_id", "int_parsing", "Input should be a valid integer")
		return
	}
	book, err := a.catalog.Get(r.Context(), id)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (a *API) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	if !parseMultipart(w, r) {
		return
	}
	defer cleanupMultipart(r)

	file, upload, err := formUpload(r)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			invalidField(w, r, "file", "missing", "Field required")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid file part")
		return
	}
	defer file.Close()

	book, err := a.catalog.Create(r.Context(), p, rawBook(r.MultipartForm), upload)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "book.created", map[string]any{
		"book_id": book.ID,
		"file":    book.FilePath,
	})
	writeJSON(w, http.StatusCreated, book)
}

func (a *API) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	id, ok := bookID(r)
	if !ok {
		invalidField(w, r, "book_id", "int_parsing", "Input should be a valid integer")
		return
	}
	if !parseMultipart(w, r) {
		return
	}
	defer cleanupMultipart(r)

	var upload *catalog.Upload
	file, u, err := formUpload(r)
	switch {
	case err == nil:
		defer file.Close()
		upload = &u
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeError(w, r, http.StatusBadRequest, "invalid file part")
		return
	}

	book, err := a.catalog.Update(r.Context(), p, id, rawBook(r.MultipartForm), upload)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "book.updated", map[string]any{
		"book_id":      book.ID,
		"file_changed": upload != nil,
	})
	writeJSON(w, http.StatusOK, book)
}

func (a *API) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	id, ok := bookID(r)
	if !ok {
		invalidField(w, r, "book_id", "int_parsing", "Input should be a valid integer")
		return
	}
	if err := a.catalog.Delete(r.Context(), p, id); err != nil {
		handleCatalogError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "book.deleted", map[string]any{"book_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleImportBooks(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	policy, err := ingest.ParsePolicy(r.URL.Query().Get("on_validation_error"))
	if err != nil {
		invalidField(w, r, "on_validation_error", "enum", "Input should be 'SKIP' or 'RAISE_ERROR'")
		return
	}
	batchSize, err := parsePositiveInt(r.URL.Query().Get("batch_size"), a.batchSize)
	if err != nil {
		invalidField(w, r, "batch_size", "greater_than", err.Error())
		return
	}
	if !parseMultipart(w, r) {
		return
	}
	defer cleanupMultipart(r)

	file, hdr, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			invalidField(w, r, "file", "missing", "Field required")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid file part")
		return
	}
	defer file.Close()

	res, err := a.importer.Import(r.Context(), ingest.Request{
		ContentType: importContentType(hdr),
		Body:        file,
		BatchSize:   batchSize,
		Policy:      policy,
		AuthorID:    p.ID,
	})
	_ = audit.LogEvent(r.Context(), "book.imported", map[string]any{
		"file":     hdr.Filename,
		"policy":   string(policy),
		"imported": res.Imported,
		"skipped":  res.Skipped,
		"failed":   err != nil,
	})
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleExportBooks(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	if !values.Has("format") {
		invalidField(w, r, "format", "missing", "Field required")
		return
	}
	format, err := export.ParseFormat(values.Get("format"))
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	values.Del("format")
	values.Del("skip")
	values.Del("limit")
	q, _, err := catalog.ParseQuery(values)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	books, err := a.catalog.All(r.Context(), q)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	payload, err := export.Render(books, format)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "book.exported", map[string]any{
		"format": string(format),
		"count":  len(books),
	})
	w.Header().Set("Content-Type", payload.ContentType)
	w.Header().Set("Content-Disposition", attachment(payload.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(payload.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload.Body)
}

func (a *API) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	data, err := a.catalog.Download(r.Context(), name)
	if err != nil {
		handleCatalogError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", attachment(name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// rawBook picks the book fields out of a parsed form; absent stays nil.
func rawBook(form *multipart.Form) catalog.RawBook {
	field := func(name string) *string {
		if form == nil {
			return nil
		}
		vs, ok := form.Value[name]
		if !ok || len(vs) == 0 {
			return nil
		}
		v := vs[0]
		return &v
	}
	return catalog.RawBook{
		Title:         field("title"),
		PublishedYear: field("published_year"),
		Genre:         field("genre"),
	}
}

// parseMultipart writes the error response itself when it returns false.
func parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	err := r.ParseMultipartForm(multipartMemory)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, r, http.StatusBadRequest, "unsupported file size: request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
		return false
	}
	writeError(w, r, http.StatusBadRequest, "invalid multipart body")
	return false
}

func formUpload(r *http.Request) (multipart.File, catalog.Upload, error) {
	file, hdr, err := r.FormFile("file")
	if err != nil {
		return nil, catalog.Upload{}, err
	}
	return file, catalog.Upload{Filename: hdr.Filename, Size: hdr.Size, Body: file}, nil
}

// importContentType trusts the part header unless it is generic, then
// falls back to the file extension.
func importContentType(hdr *multipart.FileHeader) string {
	ct := hdr.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil && mt != "application/octet-stream" {
		return ct
	}
	switch strings.ToLower(path.Ext(hdr.Filename)) {
	case ".csv":
		return ingest.ContentTypeCSV
	case ".json":
		return ingest.ContentTypeJSON
	}
	return ct
}

func attachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
