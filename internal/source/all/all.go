// Package all wires every built-in source backend into the source registry.
//
// Importing it for side effects makes these kinds available to source.Open:
//
//   - "mssql", "sqlserver" (sql2parquet/internal/source/mssql)
//   - "mysql"              (sql2parquet/internal/source/mysql)
//   - "postgres"           (sql2parquet/internal/source/postgres)
//   - "sqlite"             (sql2parquet/internal/source/sqlite)
//
// Typical usage in a command's main package:
//
//	import _ "sql2parquet/internal/source/all"
package all

import (
	_ "sql2parquet/internal/source/mssql"
	_ "sql2parquet/internal/source/mysql"
	_ "sql2parquet/internal/source/postgres"
	_ "sql2parquet/internal/source/sqlite"
)
