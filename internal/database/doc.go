// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package database manages the GORM connection pool behind an SQL catalog
source.

PoolManager applies the pool limits of a source to the underlying
database/sql handle, pings it in the background, and runs writes in
transactions. WithTransactionRetry retries deadlocks, serialization failures
and dropped connections with exponential backoff.
*/
package database
