// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared data model of the catalog federation engine.

# Overview

types is the lowest public package of the module and depends on no internal
package. The federation engine, the source adapters, the plugins and the CLI
all exchange these types, which keeps the dependency graph acyclic.

# Core types

  - Query / SortBy          : opaque filter, 1-based start index, page size, sort, time budget
  - QueryRequest            : a query, an optional explicit source subset and a property bag
  - Source                  : the capability every backend exposes (ID + Query)
  - SourceResponse / Result : one source's ordered results, hit count and self-reported details
  - ProcessingDetail(Set)   : structural-equality record of a per-source problem
  - QueryResponse           : merged page, total hits, details and per-source properties
  - Error / ErrorCode       : structured errors with Retryable and Source markers

# Conventions

A nil ProcessingDetail.Warnings slice is preserved and is not equal to an
empty one. Causes compare by dynamic type and message. Hit counts use
UnknownHits when a source cannot count.
*/
package types
