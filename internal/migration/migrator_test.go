package migration

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/catalogfed/config"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Dialect
		wantErr  bool
	}{
		{"postgres", "postgres", DialectPostgres, false},
		{"postgresql", "postgresql", DialectPostgres, false},
		{"pg", "pg", DialectPostgres, false},
		{"mysql", "mysql", DialectMySQL, false},
		{"mariadb", "mariadb", DialectMySQL, false},
		{"sqlite", "sqlite", DialectSQLite, false},
		{"sqlite3", "sqlite3", DialectSQLite, false},
		{"uppercase", "POSTGRES", DialectPostgres, false},
		{"oracle", "oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseDialect(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestAvailableMigrations(t *testing.T) {
	for _, d := range []Dialect{DialectPostgres, DialectMySQL, DialectSQLite} {
		t.Run(string(d), func(t *testing.T) {
			files, err := availableMigrations(d)
			require.NoError(t, err)
			require.NotEmpty(t, files)
			assert.Equal(t, uint(1), files[0].version)
			assert.Equal(t, "create_catalog_records", files[0].name)
			for i := 1; i < len(files); i++ {
				assert.Greater(t, files[i].version, files[i-1].version)
			}
		})
	}

	_, err := availableMigrations(Dialect("oracle"))
	assert.Error(t, err)
}

func TestStatusAndInfo(t *testing.T) {
	files := []migrationFile{{1, "create_catalog_records"}, {2, "add_region"}, {3, "add_owner"}}

	statuses := statusOf(files, 2, true)
	require.Len(t, statuses, 3)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[0].Dirty)
	assert.True(t, statuses[1].Applied)
	assert.True(t, statuses[1].Dirty)
	assert.False(t, statuses[2].Applied)

	info := infoOf(files, 2, false)
	assert.Equal(t, &MigrationInfo{
		CurrentVersion:    2,
		TotalMigrations:   3,
		AppliedMigrations: 2,
		PendingMigrations: 1,
	}, info)
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	ctx := context.Background()

	_, err := NewMigrator(ctx, Config{Dialect: DialectPostgres})
	assert.ErrorContains(t, err, "DSN is required")

	_, err = NewMigrator(ctx, Config{Dialect: "oracle", DSN: "oracle://db"})
	assert.ErrorContains(t, err, "unsupported dialect")
}

func TestConfigForSource(t *testing.T) {
	tests := []struct {
		name    string
		source  config.SourceConfig
		want    Config
		wantErr string
	}{
		{
			name:   "postgres",
			source: config.SourceConfig{ID: "pg", Type: config.SourceTypeSQL, Driver: "postgres", DSN: "postgres://db/catalog"},
			want:   Config{Dialect: DialectPostgres, DSN: "postgres://db/catalog"},
		},
		{
			name:   "explicit default table",
			source: config.SourceConfig{ID: "lite", Type: config.SourceTypeSQL, Driver: "sqlite", DSN: "catalog.db", Table: "catalog_records"},
			want:   Config{Dialect: DialectSQLite, DSN: "catalog.db"},
		},
		{
			name:    "not an sql source",
			source:  config.SourceConfig{ID: "mem", Type: config.SourceTypeMemory},
			wantErr: "migrations apply to sql sources",
		},
		{
			name:    "custom table",
			source:  config.SourceConfig{ID: "pg", Type: config.SourceTypeSQL, Driver: "postgres", DSN: "x", Table: "records"},
			wantErr: `uses table "records"`,
		},
		{
			name:    "unknown driver",
			source:  config.SourceConfig{ID: "ora", Type: config.SourceTypeSQL, Driver: "oracle", DSN: "x"},
			wantErr: "unsupported dialect",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfigForSource(tt.source)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// fakeMigrator steps a version counter over n migrations.
type fakeMigrator struct {
	version uint
	total   uint
	dirty   bool
	err     error
}

func (f *fakeMigrator) Up(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.version = f.total
	return nil
}

func (f *fakeMigrator) Down(context.Context) error {
	if f.err != nil {
		return f.err
	}
	if f.version > 0 {
		f.version--
	}
	return nil
}

func (f *fakeMigrator) Steps(ctx context.Context, n int) error {
	for ; n < 0; n++ {
		_ = f.Down(ctx)
	}
	for ; n > 0 && f.version < f.total; n-- {
		f.version++
	}
	return nil
}

func (f *fakeMigrator) Version(context.Context) (uint, bool, error) {
	return f.version, f.dirty, f.err
}

func (f *fakeMigrator) files() []migrationFile {
	out := make([]migrationFile, 0, f.total)
	for v := uint(1); v <= f.total; v++ {
		out = append(out, migrationFile{version: v, name: "step"})
	}
	return out
}

func (f *fakeMigrator) Status(context.Context) ([]MigrationStatus, error) {
	return statusOf(f.files(), f.version, f.dirty), f.err
}

func (f *fakeMigrator) Info(context.Context) (*MigrationInfo, error) {
	return infoOf(f.files(), f.version, f.dirty), f.err
}

func (f *fakeMigrator) Close() error { return nil }

var _ Migrator = (*fakeMigrator)(nil)

func TestCLI_Output(t *testing.T) {
	ctx := context.Background()
	m := &fakeMigrator{total: 2}
	cli := NewCLI(m)
	out := &bytes.Buffer{}
	cli.SetOutput(out)

	require.NoError(t, cli.RunVersion(ctx))
	assert.Contains(t, out.String(), "No migrations applied yet.")

	out.Reset()
	require.NoError(t, cli.RunUp(ctx))
	assert.Contains(t, out.String(), "Migrations complete. Current version: 2")

	out.Reset()
	require.NoError(t, cli.RunDown(ctx))
	assert.Contains(t, out.String(), "Rollback complete. Current version: 1")

	out.Reset()
	require.NoError(t, cli.RunStatus(ctx))
	assert.Contains(t, out.String(), "000001  step  Applied")
	assert.Contains(t, out.String(), "000002  step  Pending")
	assert.Contains(t, out.String(), "Total: 2, Applied: 1, Pending: 1")

	m.dirty = true
	out.Reset()
	require.NoError(t, cli.RunVersion(ctx))
	assert.Contains(t, out.String(), "Current version: 1 (dirty)")
}

func TestCLI_Errors(t *testing.T) {
	ctx := context.Background()
	cli := NewCLI(&fakeMigrator{total: 1, err: errors.New("locked")})
	cli.SetOutput(&bytes.Buffer{})

	assert.ErrorContains(t, cli.RunUp(ctx), "migration failed: locked")
	assert.ErrorContains(t, cli.RunDown(ctx), "rollback failed: locked")
	assert.ErrorContains(t, cli.RunVersion(ctx), "failed to get version: locked")
	assert.ErrorContains(t, cli.RunStatus(ctx), "failed to get status: locked")
}
