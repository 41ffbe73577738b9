// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package sources provides catalog backends for the federation engine and the
registry that holds them.

# Sources

  - MemorySource: a fixed record set, filtered, sorted and paged in process.
  - HTTPSource: a remote catalog speaking a small JSON search protocol,
    rate limited and retried.
  - SQLSource: a catalog table read through GORM (postgres, mysql, sqlite).
  - RedisSource: a sorted set of record ids scored by effective time.

Every source returns its page ordered by the request sort, which the merge
step relies on. Free-text filters are taken from Query.Filter when it is a
string; RedisSource cannot filter and reports a warning instead.

# Registry

Registry swaps whole source lists atomically. Build and BuildAll turn
config.SourceConfig entries into sources.
*/
package sources
