// Package patterns loads the read-only bug-pattern database that the static
// validator compares candidate code against. The database is a JSON document
// produced by the pattern extraction tooling; this package never writes it.
package patterns

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
)

// Entry is one known bug pattern.
type Entry struct {
	ID           string `json:"id"`
	ErrorType    string `json:"error_type"`
	Difficulty   string `json:"difficulty"`
	BuggyCode    string `json:"buggy_code"`
	ErrorMessage string `json:"error_message"`
	SourceFile   string `json:"source_file"`
}

// document is the on-disk shape of the database file.
type document struct {
	Version       string  `json:"version"`
	TotalPatterns int     `json:"total_patterns"`
	Patterns      []Entry `json:"patterns"`
}

// DB is a lazily-loaded, immutable view of the pattern database. A missing
// or unreadable file yields an empty database rather than an error; the
// similarity tier is simply skipped. Safe for concurrent use; the file is
// read at most once.
type DB struct {
	path   string
	logger *slog.Logger

	once sync.Once
	doc  document
}

// Open creates a handle on the database file. Nothing is read until the
// first access.
func Open(path string, logger *slog.Logger) *DB {
	return &DB{path: path, logger: logger}
}

func (db *DB) load() {
	data, err := os.ReadFile(db.path)
	if err != nil {
		if db.logger != nil {
			db.logger.Warn("pattern database unavailable",
				slog.String("path", db.path),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		// Malformed database is treated like absence.
		if db.logger != nil {
			db.logger.Warn("pattern database malformed",
				slog.String("path", db.path),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	db.doc = doc
}

// Entries returns up to limit pattern entries. limit <= 0 returns all.
// The returned slice must not be mutated.
func (db *DB) Entries(limit int) []Entry {
	db.once.Do(db.load)
	entries := db.doc.Patterns
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Version returns the database version string, empty when unavailable.
func (db *DB) Version() string {
	db.once.Do(db.load)
	return db.doc.Version
}

// Len returns the number of loaded patterns.
func (db *DB) Len() int {
	db.once.Do(db.load)
	return len(db.doc.Patterns)
}

// Available reports whether the database was loaded successfully and holds
// at least one pattern.
func (db *DB) Available() bool {
	return db.Len() > 0
}
