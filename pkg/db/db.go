package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// migrationsSQL creates the corpus schema. Statements are idempotent.
const migrationsSQL = `
CREATE TABLE IF NOT EXISTS sources (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file TEXT NOT NULL UNIQUE,
	title TEXT,
	language TEXT,
	added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	last_processed_unit INTEGER NOT NULL DEFAULT -1
);

CREATE TABLE IF NOT EXISTS units (
	id TEXT PRIMARY KEY,
	source_id INTEGER REFERENCES sources(id),
	file TEXT NOT NULL,
	paragraph INTEGER NOT NULL,
	text TEXT NOT NULL,
	context TEXT,
	classes TEXT
);

CREATE TABLE IF NOT EXISTS word_lemmas (
	word TEXT PRIMARY KEY,
	lemma TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS occurrences (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	unit_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	word TEXT NOT NULL,
	original TEXT,
	lemma TEXT NOT NULL,
	file TEXT,
	in_word_index INTEGER NOT NULL DEFAULT 1,
	in_lemma_index INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_occurrences_word ON occurrences(word);
CREATE INDEX IF NOT EXISTS idx_occurrences_lemma ON occurrences(lemma);
CREATE INDEX IF NOT EXISTS idx_occurrences_unit ON occurrences(unit_id, position);

CREATE TABLE IF NOT EXISTS families (
	lemma TEXT PRIMARY KEY,
	total_occurrences INTEGER NOT NULL DEFAULT 0,
	unique_forms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS family_forms (
	lemma TEXT NOT NULL REFERENCES families(lemma) ON DELETE CASCADE,
	form TEXT NOT NULL,
	ord INTEGER NOT NULL,
	PRIMARY KEY (lemma, form)
);
`

// InitDB runs migrations on the given DB connection.
func InitDB(db *sql.DB) error {
	stmts := strings.Split(migrationsSQL, ";")
	for _, s := range stmts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Open opens the SQLite database at path and runs migrations. An in-memory
// database is pinned to a single connection so every query sees the same data.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		conn.SetMaxOpenConns(1)
	} else if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
