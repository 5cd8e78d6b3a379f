package migrate

import (
	"context"
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(Files(), "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(names) == 0 {
		t.Fatal("no embedded migrations")
	}
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file %s", name)
		}
	}
	for base := range ups {
		if !downs[base] {
			t.Fatalf("migration %s has no down file", base)
		}
	}
	if len(ups) != len(downs) {
		t.Fatalf("up/down mismatch: %d vs %d", len(ups), len(downs))
	}
}

func TestInitMigrationCreatesTables(t *testing.T) {
	data, err := fs.ReadFile(Files(), "0001_init.up.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	sql := string(data)
	for _, want := range []string{"create table if not exists authors", "create table if not exists books", "references authors (id)"} {
		if !strings.Contains(sql, want) {
			t.Fatalf("init migration missing %q", want)
		}
	}
}

func TestManagerRequiresDB(t *testing.T) {
	if err := NewManager(nil).Up(context.Background()); err == nil {
		t.Fatal("expected error without database")
	}
}
