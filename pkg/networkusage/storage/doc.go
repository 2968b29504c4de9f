// Package storage provides networkusage.Storage backends.
//
// SQLiteStorage is the production backend. It runs on either of two
// database/sql drivers: "sqlite3" (github.com/mattn/go-sqlite3, cgo) or
// "sqlite" (modernc.org/sqlite, pure Go), selected by SQLiteConfig.Driver.
// MemoryStorage is intended for tests and for running without an audit
// database.
//
// Creation times are stored as Unix milliseconds so range filters and
// retention deletes compare integers on both drivers.
package storage
