package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/catalogfed/internal/tlsutil"
	"github.com/BaSui01/catalogfed/types"
)

// RedisConfig configures a RedisSource.
type RedisConfig struct {
	ID       string
	Addr     string
	Password string
	DB       int
	// Key names the sorted set of record ids scored by effective time. Record
	// bodies live in the hash Key+":records".
	Key string
	TLS bool
}

// RedisSource serves a catalog kept in Redis: a sorted set orders record ids
// by effective time and a hash holds the JSON records. It pages natively but
// only orders by the effective attribute and cannot apply text filters.
type RedisSource struct {
	id     string
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisSource connects to Redis and verifies the connection.
func NewRedisSource(ctx context.Context, config RedisConfig, logger *zap.Logger) (*RedisSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := &redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	}
	if config.TLS {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, types.NewError(types.ErrSourceUnavailable, "connect to redis").WithSource(config.ID).WithCause(err)
	}

	key := config.Key
	if key == "" {
		key = "catalog:" + config.ID
	}
	s := &RedisSource{
		id:     config.ID,
		client: client,
		key:    key,
		logger: logger.With(zap.String("component", "redis_source"), zap.String("source", config.ID)),
	}
	s.logger.Info("redis source initialized", zap.String("addr", config.Addr), zap.String("key", key))
	return s, nil
}

// ID implements types.Source.
func (s *RedisSource) ID() string { return s.id }

func (s *RedisSource) recordsKey() string { return s.key + ":records" }

// Put stores records, indexing them by effective time, which every record
// must carry.
func (s *RedisSource) Put(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	members := make([]redis.Z, 0, len(records))
	bodies := make(map[string]any, len(records))
	for _, rec := range records {
		if rec.Effective.IsZero() {
			return fmt.Errorf("record %s has no effective time", rec.ID)
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %s: %w", rec.ID, err)
		}
		bodies[rec.ID] = string(b)
		members = append(members, redis.Z{Score: float64(rec.Effective.UnixMilli()), Member: rec.ID})
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, s.key, members...)
		pipe.HSet(ctx, s.recordsKey(), bodies)
		return nil
	})
	return err
}

// Query implements types.Source.
func (s *RedisSource) Query(ctx context.Context, req *types.QueryRequest) (*types.SourceResponse, error) {
	q := req.Query
	if attr := q.Sort.Attribute; attr != "" && attr != types.AttributeEffective {
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unsupported sort attribute %q", attr)).WithSource(s.id)
	}

	start := int64(q.NormalizedStartIndex() - 1)
	stop := int64(-1)
	if q.Bounded() {
		stop = start + int64(q.PageSize) - 1
	}

	var ids []string
	var err error
	if q.Sort.Descending() {
		ids, err = s.client.ZRevRange(ctx, s.key, start, stop).Result()
	} else {
		ids, err = s.client.ZRange(ctx, s.key, start, stop).Result()
	}
	if err != nil {
		return nil, s.queryError("range", err)
	}

	hits, err := s.client.ZCard(ctx, s.key).Result()
	if err != nil {
		return nil, s.queryError("count", err)
	}

	results := make([]types.Result, 0, len(ids))
	if len(ids) > 0 {
		bodies, err := s.client.HMGet(ctx, s.recordsKey(), ids...).Result()
		if err != nil {
			return nil, s.queryError("load", err)
		}
		for i, raw := range bodies {
			body, ok := raw.(string)
			if !ok {
				s.logger.Warn("record body missing", zap.String("id", ids[i]))
				continue
			}
			var rec Record
			if err := json.Unmarshal([]byte(body), &rec); err != nil {
				s.logger.Warn("record body unreadable", zap.String("id", ids[i]), zap.Error(err))
				continue
			}
			results = append(results, rec.Result(s.id))
		}
	}

	resp := types.NewSourceResponse(results)
	resp.Hits = hits
	if text := FilterText(q); text != "" {
		resp.Hits = types.UnknownHits
		resp.ProcessingDetails = append(resp.ProcessingDetails, types.NewProcessingDetail(s.id, nil,
			[]string{fmt.Sprintf("text filter %q is not supported, results are unfiltered", text)}))
	}
	return resp, nil
}

// Close closes the Redis client.
func (s *RedisSource) Close() error {
	return s.client.Close()
}

func (s *RedisSource) queryError(op string, err error) error {
	s.logger.Warn("redis query failed", zap.String("operation", op), zap.Error(err))
	return types.NewError(types.ErrSourceQueryFailed, "redis "+op+" failed").WithSource(s.id).WithCause(err).WithRetryable(true)
}
