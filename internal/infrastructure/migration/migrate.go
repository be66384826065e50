package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// VersionTable records the applied schema version.
const VersionTable = "sync_schema_migrations"

// ErrSchemaDirty means a migration stopped halfway. Repair the schema by hand,
// then Force the version it is now at.
var ErrSchemaDirty = errors.New("migration: schema is dirty, fix it and force the version")

// Migrator runs the numbered SQL files of a source against postgres.
type Migrator struct {
	m      *migrate.Migrate
	source fs.FS
	log    *zap.Logger
}

// Status compares the database with its migration source.
type Status struct {
	Current uint
	Latest  uint
	Dirty   bool
	Pending int
}

func (s Status) UpToDate() bool {
	return !s.Dirty && s.Pending == 0
}

// New reads migrations from source, usually migrations.FS.
func New(db *sql.DB, source fs.FS, log *zap.Logger) (*Migrator, error) {
	src, err := iofs.New(source, ".")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	target, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: VersionTable})
	if err != nil {
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", target)
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return &Migrator{m: m, source: source, log: log}, nil
}

func (m *Migrator) Up() error {
	return m.apply("up", m.m.Up)
}

func (m *Migrator) Down() error {
	m.log.Warn("Rolling back every migration")
	return m.apply("down", m.m.Down)
}

// Steps applies n migrations, or rolls back -n when n is negative.
func (m *Migrator) Steps(n int) error {
	return m.apply("step "+strconv.Itoa(n), func() error { return m.m.Steps(n) })
}

func (m *Migrator) GoTo(version uint) error {
	return m.apply("goto "+strconv.FormatUint(uint64(version), 10), func() error { return m.m.Migrate(version) })
}

func (m *Migrator) apply(op string, fn func() error) error {
	before, _, err := m.Version()
	if err != nil {
		return err
	}
	if err := fn(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}
	after, dirty, err := m.Version()
	if err != nil {
		return err
	}
	m.log.Info("Migration applied",
		zap.String("op", op),
		zap.Uint("from", before),
		zap.Uint("to", after),
		zap.Bool("dirty", dirty),
	)
	return nil
}

// Version returns the applied version, zero before the first migration.
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return v, dirty, nil
}

// Status compares the applied version with the migrations in the source
func (m *Migrator) Status() (Status, error) {
	current, dirty, err := m.Version()
	if err != nil {
		return Status{}, err
	}
	available, err := ListMigrations(m.source)
	if err != nil {
		return Status{}, err
	}
	return statusOf(current, dirty, available), nil
}

func statusOf(current uint, dirty bool, available []Migration) Status {
	s := Status{Current: current, Dirty: dirty}
	for _, mf := range available {
		if mf.Version > s.Latest {
			s.Latest = mf.Version
		}
		if mf.Version > current {
			s.Pending++
		}
	}
	return s
}

// Force marks version as applied and clean without running anything.
func (m *Migrator) Force(version int) error {
	m.log.Warn("Forcing schema version", zap.Int("version", version))
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Close releases the source and the database handle.
func (m *Migrator) Close() error {
	return errors.Join(m.m.Close())
}
