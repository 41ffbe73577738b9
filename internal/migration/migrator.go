package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// =============================================================================
// Embedded migration files
// =============================================================================

//go:embed migrations/postgres/*.sql migrations/mysql/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// DefaultMigrationsTable records the applied schema version.
const DefaultMigrationsTable = "catalogfed_schema_migrations"

// =============================================================================
// Types and interfaces
// =============================================================================

// Dialect is a supported SQL dialect.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// sqlDriverName is the database/sql driver opened for the dialect.
func (d Dialect) sqlDriverName() string {
	if d == DialectSQLite {
		return "sqlite3"
	}
	return string(d)
}

func (d Dialect) dir() string {
	return path.Join("migrations", string(d))
}

// MigrationStatus is the state of one migration file.
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// MigrationInfo summarizes the schema state.
type MigrationInfo struct {
	CurrentVersion    uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// Config configures a Migrator.
type Config struct {
	Dialect Dialect
	// DSN is passed to the database/sql driver of the dialect.
	DSN string
	// MigrationsTable defaults to DefaultMigrationsTable.
	MigrationsTable string
}

// Migrator manages the catalog table schema.
type Migrator interface {
	// Up applies all pending migrations.
	Up(ctx context.Context) error
	// Down rolls back the last migration.
	Down(ctx context.Context) error
	// Steps applies n migrations, or rolls back -n when n is negative.
	Steps(ctx context.Context, n int) error
	// Version returns the current version; zero means none applied.
	Version(ctx context.Context) (uint, bool, error)
	Status(ctx context.Context) ([]MigrationStatus, error)
	Info(ctx context.Context) (*MigrationInfo, error)
	Close() error
}

// =============================================================================
// golang-migrate implementation
// =============================================================================

// CatalogMigrator applies the embedded catalog migrations with golang-migrate.
type CatalogMigrator struct {
	config   Config
	migrate  *migrate.Migrate
	db       *sql.DB
	dbDriver database.Driver
}

// NewMigrator connects to the database and prepares the migrations.
func NewMigrator(ctx context.Context, cfg Config) (*CatalogMigrator, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	dialect, err := ParseDialect(string(cfg.Dialect))
	if err != nil {
		return nil, err
	}
	cfg.Dialect = dialect
	if cfg.MigrationsTable == "" {
		cfg.MigrationsTable = DefaultMigrationsTable
	}

	m := &CatalogMigrator{config: cfg}
	if err := m.init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize migrator: %w", err)
	}
	return m, nil
}

func (m *CatalogMigrator) init(ctx context.Context) error {
	var err error

	m.db, err = sql.Open(m.config.Dialect.sqlDriverName(), m.config.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.db.PingContext(pingCtx); err != nil {
		_ = m.db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	m.dbDriver, err = m.createDatabaseDriver()
	if err != nil {
		_ = m.db.Close()
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	sourceDriver, err := m.createSourceDriver()
	if err != nil {
		_ = m.dbDriver.Close()
		return fmt.Errorf("failed to create source driver: %w", err)
	}

	m.migrate, err = migrate.NewWithInstance("iofs", sourceDriver, string(m.config.Dialect), m.dbDriver)
	if err != nil {
		_ = m.dbDriver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return nil
}

func (m *CatalogMigrator) createDatabaseDriver() (database.Driver, error) {
	switch m.config.Dialect {
	case DialectPostgres:
		return postgres.WithInstance(m.db, &postgres.Config{MigrationsTable: m.config.MigrationsTable})
	case DialectMySQL:
		return mysql.WithInstance(m.db, &mysql.Config{MigrationsTable: m.config.MigrationsTable})
	case DialectSQLite:
		return sqlite3.WithInstance(m.db, &sqlite3.Config{MigrationsTable: m.config.MigrationsTable})
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", m.config.Dialect)
	}
}

func (m *CatalogMigrator) createSourceDriver() (source.Driver, error) {
	return iofs.New(migrationsFS, m.config.Dialect.dir())
}

// Up applies all pending migrations.
func (m *CatalogMigrator) Up(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Down rolls back the last migration.
func (m *CatalogMigrator) Down(ctx context.Context) error {
	return m.Steps(ctx, -1)
}

// Steps applies or rolls back n migrations.
func (m *CatalogMigrator) Steps(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := m.migrate.Steps(n)
	// ErrNotExist means there is no migration left in that direction.
	if err != nil && !errors.Is(err, migrate.ErrNoChange) && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("migration steps failed: %w", err)
	}
	return nil
}

// Version returns the current version and whether it is dirty.
func (m *CatalogMigrator) Version(ctx context.Context) (uint, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	version, dirty, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Status lists every embedded migration with its state.
func (m *CatalogMigrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := availableMigrations(m.config.Dialect)
	if err != nil {
		return nil, err
	}
	return statusOf(files, current, dirty), nil
}

// Info summarizes the schema state.
func (m *CatalogMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := availableMigrations(m.config.Dialect)
	if err != nil {
		return nil, err
	}
	return infoOf(files, current, dirty), nil
}

// Close releases the database connection.
func (m *CatalogMigrator) Close() error {
	if m.migrate == nil {
		return nil
	}
	sourceErr, dbErr := m.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}

// =============================================================================
// Embedded file listing
// =============================================================================

type migrationFile struct {
	version uint
	name    string
}

// availableMigrations lists the embedded up migrations of a dialect by
// version. File names follow 000001_name.up.sql.
func availableMigrations(d Dialect) ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationsFS, d.dir())
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations of %s: %w", d, err)
	}

	seen := make(map[uint]bool)
	var files []migrationFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil || seen[uint(version)] {
			continue
		}
		seen[uint(version)] = true
		files = append(files, migrationFile{
			version: uint(version),
			name:    strings.TrimSuffix(parts[1], ".up.sql"),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].version < files[j].version
	})
	return files, nil
}

func statusOf(files []migrationFile, current uint, dirty bool) []MigrationStatus {
	out := make([]MigrationStatus, 0, len(files))
	for _, f := range files {
		out = append(out, MigrationStatus{
			Version: f.version,
			Name:    f.name,
			Applied: f.version <= current,
			Dirty:   dirty && f.version == current,
		})
	}
	return out
}

func infoOf(files []migrationFile, current uint, dirty bool) *MigrationInfo {
	applied := 0
	for _, f := range files {
		if f.version <= current {
			applied++
		}
	}
	return &MigrationInfo{
		CurrentVersion:    current,
		Dirty:             dirty,
		TotalMigrations:   len(files),
		AppliedMigrations: applied,
		PendingMigrations: len(files) - applied,
	}
}

// ParseDialect accepts the sql source driver names and common aliases.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported dialect: %q", s)
	}
}
