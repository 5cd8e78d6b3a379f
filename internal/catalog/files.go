package catalog

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// BookFolder prefixes every stored book file key.
const BookFolder = "books"

// DefaultMaxFileSize caps uploaded book files.
const DefaultMaxFileSize int64 = 20 << 20

var supportedFileTypes = map[string]string{
	".pdf":  "application/pdf",
	".epub": "application/epub+zip",
	".mobi": "application/x-mobipocket-ebook",
	".txt":  "text/plain",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".csv":  "text/csv",
}

// FileType resolves the content type of an upload from its name.
func FileType(filename string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	ct, ok := supportedFileTypes[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, ext)
	}
	return ct, nil
}

// CheckFileSize requires 0 < size <= max.
func CheckFileSize(size, max int64) error {
	if size <= 0 || size > max {
		return fmt.Errorf("%w: supported file size is 0 - %d KB", ErrUnsupportedFileSize, max/1024)
	}
	return nil
}

// CleanFilename strips directories so a client name cannot escape BookFolder.
func CleanFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	base := path.Base(strings.TrimSpace(filename))
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

// ObjectKey returns a fresh storage key of the form books/<uuid>_<name>.
func ObjectKey(filename string) string {
	return BookFolder + "/" + uuid.NewString() + "_" + CleanFilename(filename)
}

// DownloadKey maps a public file name back to its storage key.
func DownloadKey(name string) (string, error) {
	clean := CleanFilename(name)
	if clean == "" || clean != name {
		return "", fmt.Errorf("%w: invalid file name", ErrNotFound)
	}
	return BookFolder + "/" + clean, nil
}
