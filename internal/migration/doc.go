// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package migration versions the schema of the catalog table read by sql
sources. The SQL files for PostgreSQL, MySQL and SQLite are embedded and
applied with golang-migrate; the applied version is kept in
catalogfed_schema_migrations.

CatalogMigrator implements Migrator (Up, Down, Steps, Version, Status, Info).
ConfigForSource derives its settings from an sql source of the catalogfed
configuration, and CLI prints the outcome of each command for the
catalogfed migrate subcommands.
*/
package migration
