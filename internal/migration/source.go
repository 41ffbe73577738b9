package migration

import (
	"fmt"

	"github.com/BaSui01/catalogfed/config"
)

// catalogTable is the table the embedded migrations create.
const catalogTable = "catalog_records"

// ConfigForSource derives the migrator settings of an sql source. The
// migrations only manage the default catalog table.
func ConfigForSource(sc config.SourceConfig) (Config, error) {
	if sc.Type != config.SourceTypeSQL {
		return Config{}, fmt.Errorf("source %s is of type %s, migrations apply to sql sources", sc.ID, sc.Type)
	}
	if sc.Table != "" && sc.Table != catalogTable {
		return Config{}, fmt.Errorf("source %s uses table %q, migrations only manage %q", sc.ID, sc.Table, catalogTable)
	}
	dialect, err := ParseDialect(sc.Driver)
	if err != nil {
		return Config{}, fmt.Errorf("source %s: %w", sc.ID, err)
	}
	return Config{Dialect: dialect, DSN: sc.DSN}, nil
}
