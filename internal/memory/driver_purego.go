//go:build !cgo_sqlite

package memory

// Pure Go SQLite (modernc.org/sqlite). No C toolchain required; FTS5 is
// compiled in.
//
//   CGO_ENABLED=0 go build ./...

import (
	_ "modernc.org/sqlite"
)

const (
	// SQLiteDriverName is the database/sql driver used by SQLiteStore.
	SQLiteDriverName = "sqlite"

	// SQLiteBuildMode describes the driver selected at build time.
	SQLiteBuildMode = "purego"
)

func sqliteDSN(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}
