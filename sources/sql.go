package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/catalogfed/internal/database"
	"github.com/BaSui01/catalogfed/types"
)

// DefaultCatalogTable is the table queried when none is configured.
const DefaultCatalogTable = "catalog_records"

const insertAttempts = 3

// CatalogRow is the table layout read by SQLSource.
type CatalogRow struct {
	ID        string    `gorm:"primaryKey;size:128"`
	Title     string    `gorm:"size:512;index"`
	Effective time.Time `gorm:"index"`
	Created   time.Time
	Modified  time.Time
	Score     float64
	Metadata  string `gorm:"type:text"`
}

func (r CatalogRow) record() Record {
	rec := Record{
		ID:        r.ID,
		Title:     r.Title,
		Effective: r.Effective.UTC(),
		Created:   r.Created.UTC(),
		Modified:  r.Modified.UTC(),
		Score:     r.Score,
	}
	if r.Metadata != "" {
		_ = json.Unmarshal([]byte(r.Metadata), &rec.Metadata)
	}
	return rec
}

func rowFromRecord(rec Record) (CatalogRow, error) {
	row := CatalogRow{
		ID:        rec.ID,
		Title:     rec.Title,
		Effective: rec.Effective,
		Created:   rec.Created,
		Modified:  rec.Modified,
		Score:     rec.Score,
	}
	if len(rec.Metadata) > 0 {
		b, err := json.Marshal(rec.Metadata)
		if err != nil {
			return CatalogRow{}, fmt.Errorf("encode metadata of %s: %w", rec.ID, err)
		}
		row.Metadata = string(b)
	}
	return row, nil
}

// sortColumns maps sort attributes onto table columns.
var sortColumns = map[string]string{
	"":                       "effective",
	types.AttributeEffective: "effective",
	types.AttributeCreated:   "created",
	types.AttributeModified:  "modified",
	types.AttributeRelevance: "score",
	"score":                  "score",
}

// SQLSource queries a catalog table through GORM. Filtering, ordering and
// paging run in the database.
type SQLSource struct {
	id         string
	pool       *database.PoolManager
	poolConfig database.PoolConfig
	table      string
	metrics    MetricsRecorder
	logger     *zap.Logger
}

// SQLOption configures an SQLSource.
type SQLOption func(*SQLSource)

// WithTable sets the catalog table name.
func WithTable(table string) SQLOption {
	return func(s *SQLSource) {
		if table != "" {
			s.table = table
		}
	}
}

// WithSQLMetrics records query latency and pool usage.
func WithSQLMetrics(m MetricsRecorder) SQLOption {
	return func(s *SQLSource) {
		s.metrics = recorderOrNop(m)
	}
}

// WithPoolConfig overrides the connection pool limits.
func WithPoolConfig(cfg database.PoolConfig) SQLOption {
	return func(s *SQLSource) {
		s.poolConfig = cfg
	}
}

// NewSQLSource wraps an open GORM handle. The source owns the handle from
// then on.
func NewSQLSource(id string, db *gorm.DB, logger *zap.Logger, opts ...SQLOption) (*SQLSource, error) {
	if db == nil {
		return nil, fmt.Errorf("sql source %s: db cannot be nil", id)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SQLSource{
		id:         id,
		poolConfig: database.DefaultPoolConfig(),
		table:      DefaultCatalogTable,
		metrics:    nopRecorder{},
		logger:     logger.With(zap.String("component", "sql_source"), zap.String("source", id)),
	}
	for _, opt := range opts {
		opt(s)
	}
	pool, err := database.NewPoolManager(db, s.poolConfig, s.logger)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidConfiguration, "sql connection pool").WithSource(id).WithCause(err)
	}
	s.pool = pool
	return s, nil
}

// OpenSQLSource opens a database with the named driver (postgres, mysql or
// sqlite) and wraps it.
func OpenSQLSource(id, driver, dsn string, logger *zap.Logger, opts ...SQLOption) (*SQLSource, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, types.NewError(types.ErrInvalidConfiguration, fmt.Sprintf("unsupported sql driver %q", driver)).WithSource(id)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, types.NewError(types.ErrSourceUnavailable, "open catalog database").WithSource(id).WithCause(err)
	}
	s, err := NewSQLSource(id, db, logger, opts...)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, err
	}
	return s, nil
}

// ID implements types.Source.
func (s *SQLSource) ID() string { return s.id }

// Migrate creates or updates the catalog table.
func (s *SQLSource) Migrate(ctx context.Context) error {
	return s.pool.DB().WithContext(ctx).Table(s.table).AutoMigrate(&CatalogRow{})
}

// Insert stores records in the catalog table in one transaction, retrying
// transient failures.
func (s *SQLSource) Insert(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]CatalogRow, 0, len(records))
	for _, rec := range records {
		row, err := rowFromRecord(rec)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	start := time.Now()
	err := s.pool.WithTransactionRetry(ctx, insertAttempts, func(tx *gorm.DB) error {
		return tx.Table(s.table).Create(&rows).Error
	})
	s.metrics.RecordDBQuery(s.id, "insert", time.Since(start))
	return err
}

// Query implements types.Source.
func (s *SQLSource) Query(ctx context.Context, req *types.QueryRequest) (*types.SourceResponse, error) {
	q := req.Query
	column, ok := sortColumns[q.Sort.Attribute]
	if !ok {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unsupported sort attribute %q", q.Sort.Attribute)).WithSource(s.id)
	}
	direction := "DESC"
	if !q.Sort.Descending() {
		direction = "ASC"
	}

	base := s.pool.DB().WithContext(ctx).Table(s.table)
	if text := FilterText(q); text != "" {
		like := "%" + text + "%"
		base = base.Where("LOWER(title) LIKE LOWER(?) OR LOWER(id) LIKE LOWER(?)", like, like)
	}

	hits := types.UnknownHits
	if q.RequestsTotalHits {
		start := time.Now()
		if err := base.Session(&gorm.Session{}).Count(&hits).Error; err != nil {
			return nil, s.queryError("count", err)
		}
		s.metrics.RecordDBQuery(s.id, "count", time.Since(start))
	}

	page := base.Session(&gorm.Session{}).
		Order(fmt.Sprintf("%s %s", column, direction)).
		Order("id ASC").
		Offset(q.NormalizedStartIndex() - 1)
	if q.Bounded() {
		page = page.Limit(q.PageSize)
	}

	var rows []CatalogRow
	start := time.Now()
	if err := page.Find(&rows).Error; err != nil {
		return nil, s.queryError("select", err)
	}
	s.metrics.RecordDBQuery(s.id, "select", time.Since(start))
	s.recordPoolStats()

	results := make([]types.Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, row.record().Result(s.id))
	}
	resp := types.NewSourceResponse(results)
	resp.Hits = hits
	return resp, nil
}

// Close closes the underlying connection pool.
func (s *SQLSource) Close() error {
	return s.pool.Close()
}

func (s *SQLSource) queryError(op string, err error) error {
	s.logger.Warn("catalog query failed", zap.String("operation", op), zap.Error(err))
	return types.NewError(types.ErrSourceQueryFailed, "catalog "+op+" failed").WithSource(s.id).WithCause(err)
}

func (s *SQLSource) recordPoolStats() {
	stats := s.pool.Stats()
	s.metrics.RecordDBConnections(s.id, stats.OpenConnections, stats.Idle)
}
