//go:build cgo_sqlite

package memory

// CGO SQLite (github.com/mattn/go-sqlite3). FTS5 needs the sqlite_fts5 tag;
// without it the store runs on the LIKE fallback.
//
//   CGO_ENABLED=1 go build -tags "cgo_sqlite,sqlite_fts5" ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// SQLiteDriverName is the database/sql driver used by SQLiteStore.
	SQLiteDriverName = "sqlite3"

	// SQLiteBuildMode describes the driver selected at build time.
	SQLiteBuildMode = "cgo"
)

func sqliteDSN(path string) string {
	return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1"
}
