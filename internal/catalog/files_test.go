package catalog

import (
	"errors"
	"strings"
	"testing"
)

func TestFileType(t *testing.T) {
	for name, want := range map[string]string{
		"book.pdf":    "application/pdf",
		"BOOK.EPUB":   "application/epub+zip",
		"notes.txt":   "text/plain",
		"list.csv":    "text/csv",
		"draft.docx":  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"kindle.mobi": "application/x-mobipocket-ebook",
	} {
		got, err := FileType(name)
		if err != nil || got != want {
			t.Fatalf("FileType(%q) = %q, %v", name, got, err)
		}
	}
	for _, name := range []string{"image.png", "noext", "archive.tar.gz"} {
		if _, err := FileType(name); !errors.Is(err, ErrUnsupportedFileType) {
			t.Fatalf("FileType(%q): expected ErrUnsupportedFileType, got %v", name, err)
		}
	}
}

func TestCheckFileSize(t *testing.T) {
	if err := CheckFileSize(1, DefaultMaxFileSize); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckFileSize(DefaultMaxFileSize, DefaultMaxFileSize); err != nil {
		t.Fatalf("size equal to limit should pass: %v", err)
	}
	for _, size := range []int64{0, -1, DefaultMaxFileSize + 1} {
		if err := CheckFileSize(size, DefaultMaxFileSize); !errors.Is(err, ErrUnsupportedFileSize) {
			t.Fatalf("size %d: expected ErrUnsupportedFileSize, got %v", size, err)
		}
	}
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("../../etc/dune.pdf")
	if !strings.HasPrefix(key, "books/") || !strings.HasSuffix(key, "_dune.pdf") {
		t.Fatalf("unexpected key: %s", key)
	}
	if strings.Contains(strings.TrimPrefix(key, "books/"), "/") {
		t.Fatalf("key escapes folder: %s", key)
	}
	if ObjectKey("a.pdf") == ObjectKey("a.pdf") {
		t.Fatalf("keys must be unique")
	}
}

func TestDownloadKey(t *testing.T) {
	key, err := DownloadKey("abc_dune.pdf")
	if err != nil || key != "books/abc_dune.pdf" {
		t.Fatalf("DownloadKey = %q, %v", key, err)
	}
	for _, name := range []string{"", "..", "../secret", "a/b.pdf"} {
		if _, err := DownloadKey(name); !errors.Is(err, ErrNotFound) {
			t.Fatalf("DownloadKey(%q): expected ErrNotFound, got %v", name, err)
		}
	}
}
