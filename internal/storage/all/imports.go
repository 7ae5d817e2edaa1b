// Package all wires every built-in ledger backend into the storage factory.
//
// Importing it (as a blank import) runs each backend's init, which registers
// its factory, making these ledger kinds available at runtime:
//
//   - "sqlite"   (disneyetl/internal/storage/sqlite)
//   - "postgres" (disneyetl/internal/storage/postgres)
//   - "mssql"    (disneyetl/internal/storage/mssql)
//   - "mysql"    (disneyetl/internal/storage/mysql)
//
// Typical usage (in cmd/etl/main.go):
//
//	import _ "disneyetl/internal/storage/all"
//
//	repo, err := storage.New(ctx, storage.Config{Kind: p.Ledger.Kind, DSN: p.Ledger.DSN, Table: p.Ledger.Table})
//
// A binary that needs only a subset can import the backends it wants instead.
package all

import (
	_ "disneyetl/internal/storage/mssql"
	_ "disneyetl/internal/storage/mysql"
	_ "disneyetl/internal/storage/postgres"
	_ "disneyetl/internal/storage/sqlite"
)
