// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package cache provides the Redis backed store behind the per-source response
cache.

Manager wraps a go-redis client with a key prefix, a default TTL, JSON
helpers and an optional background health check. Get reports absent or
expired keys as ErrCacheMiss; callers test for it with IsCacheMiss.
*/
package cache
