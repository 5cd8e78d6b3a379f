package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

const defaultMigrationsTable = "schema_migrations"

//go:embed sql/*.sql
var embedded embed.FS

// Files returns the embedded migration set.
func Files() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// Manager applies the embedded SQL migrations through golang-migrate.
type Manager struct {
	db              *sql.DB
	migrationsTable string
	log             *slog.Logger
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the default migrations bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithLogger sets the logger used for progress messages.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager constructs a Manager.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{
		db:              db,
		migrationsTable: defaultMigrationsTable,
		log:             slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	return m.run(ctx, "up", func(mg *migrate.Migrate) error { return mg.Up() })
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down(ctx context.Context) error {
	return m.run(ctx, "down", func(mg *migrate.Migrate) error { return mg.Steps(-1) })
}

// Version reports the applied version. Zero means nothing is applied.
func (m *Manager) Version(ctx context.Context) (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := m.run(ctx, "version", func(mg *migrate.Migrate) error {
		v, d, err := mg.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			return nil
		}
		version, dirty = v, d
		return err
	})
	return version, dirty, err
}

func (m *Manager) run(ctx context.Context, op string, fn func(*migrate.Migrate) error) error {
	if m.db == nil {
		return errors.New("database connection unavailable")
	}
	driver, err := pgxv5.WithInstance(m.db, &pgxv5.Config{MigrationsTable: m.migrationsTable})
	if err != nil {
		return fmt.Errorf("pgx driver: %w", err)
	}
	src, err := iofs.New(embedded, "sql")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}
	mg, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	// Closing mg would close m.db through the driver; only the source is released.
	defer src.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mg.GracefulStop <- true
		case <-done:
		}
	}()

	err = fn(mg)
	if errors.Is(err, migrate.ErrNoChange) {
		m.log.Info("no migrations to apply", "op", op)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", op, err)
	}
	if op != "version" {
		m.log.Info("migrations applied", "op", op)
	}
	return nil
}
