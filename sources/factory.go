package sources

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed/config"
	"github.com/BaSui01/catalogfed/internal/database"
	"github.com/BaSui01/catalogfed/types"
)

// Deps carries what the factory hands to every source it builds.
type Deps struct {
	Logger  *zap.Logger
	Metrics MetricsRecorder
	// Cache, when set, wraps every source with a positive cache_ttl in a
	// CachedSource.
	Cache ResponseCache
}

// Build creates the source a configuration entry describes.
func Build(ctx context.Context, cfg config.SourceConfig, deps Deps) (types.Source, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s, err := build(ctx, cfg, deps, logger)
	if err != nil {
		return nil, err
	}
	if deps.Cache != nil && cfg.CacheTTL > 0 {
		return NewCachedSource(s, deps.Cache, cfg.CacheTTL, logger, deps.Metrics), nil
	}
	return s, nil
}

func build(ctx context.Context, cfg config.SourceConfig, deps Deps, logger *zap.Logger) (types.Source, error) {
	switch cfg.Type {
	case config.SourceTypeMemory:
		records := make([]Record, 0, len(cfg.Records))
		for _, rc := range cfg.Records {
			records = append(records, Record{
				ID:        rc.ID,
				Title:     rc.Title,
				Effective: rc.Effective,
				Score:     rc.Score,
				Metadata:  rc.Metadata,
			})
		}
		return NewMemorySource(cfg.ID, records, logger), nil

	case config.SourceTypeHTTP:
		hc := DefaultHTTPConfig(cfg.ID, cfg.URL)
		if cfg.Timeout > 0 {
			hc.Timeout = cfg.Timeout
		}
		hc.RateLimit = cfg.RateLimit
		hc.Burst = cfg.Burst
		hc.RetryCount = cfg.RetryCount
		return NewHTTPSource(hc, logger, WithHTTPMetrics(deps.Metrics)), nil

	case config.SourceTypeSQL:
		s, err := OpenSQLSource(cfg.ID, cfg.Driver, cfg.DSN, logger,
			WithTable(cfg.Table), WithSQLMetrics(deps.Metrics), WithPoolConfig(sqlPoolConfig(cfg)))
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.SourceTypeRedis:
		s, err := NewRedisSource(ctx, RedisConfig{
			ID:       cfg.ID,
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			Key:      cfg.Key,
			TLS:      cfg.TLS,
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, types.NewError(types.ErrInvalidConfiguration, fmt.Sprintf("unknown source type %q", cfg.Type)).WithSource(cfg.ID)
	}
}

func sqlPoolConfig(cfg config.SourceConfig) database.PoolConfig {
	pc := database.DefaultPoolConfig()
	if cfg.MaxOpenConns > 0 {
		pc.MaxOpenConns = cfg.MaxOpenConns
		pc.MaxIdleConns = min(pc.MaxIdleConns, cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pc.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	return pc
}

// BuildAll creates every enabled source. On failure the sources built so far
// are closed.
func BuildAll(ctx context.Context, cfgs []config.SourceConfig, deps Deps) ([]types.Source, error) {
	out := make([]types.Source, 0, len(cfgs))
	for _, cfg := range cfgs {
		if cfg.Disabled {
			continue
		}
		start := time.Now()
		s, err := Build(ctx, cfg, deps)
		if err != nil {
			_ = CloseAll(out)
			return nil, fmt.Errorf("build source %s: %w", cfg.ID, err)
		}
		if deps.Logger != nil {
			deps.Logger.Debug("source built",
				zap.String("source", cfg.ID),
				zap.String("type", cfg.Type),
				zap.Duration("took", time.Since(start)))
		}
		out = append(out, s)
	}
	return out, nil
}
