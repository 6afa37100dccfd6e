package migrations

import "embed"

// SQLFS embeds the record-store migrations, one directory per dbpool dialect name.
//
//go:embed sqlite/*.sql postgres/*.sql
var SQLFS embed.FS

// ClickhouseFS embeds all ClickHouse migration files.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
