package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// CreateOrGetSource returns the id of the source for file, inserting it when
// missing.
func CreateOrGetSource(ctx context.Context, db DBExecutor, file, title, language string) (int64, error) {
	file = strings.TrimSpace(file)
	if file == "" {
		return 0, fmt.Errorf("file must be non-empty")
	}

	const maxRetries = 3

	var id int64
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := db.QueryRowContext(ctx, `SELECT id FROM sources WHERE file = ?`, file).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}

		res, err := db.ExecContext(ctx,
			`INSERT INTO sources (file, title, language) VALUES (?, ?, ?)`,
			file, title, language,
		)
		if err != nil {
			// Another writer inserted the same file; look it up again.
			if isUniqueConstraintErr(err) {
				continue
			}
			return 0, err
		}
		return res.LastInsertId()
	}

	return 0, fmt.Errorf("could not create or get source after %d retries", maxRetries)
}

// GetSourceProgress returns the index of the last unit stored for a source,
// or -1 when none was.
func GetSourceProgress(ctx context.Context, db DBExecutor, sourceID int64) (int, error) {
	var index int
	err := db.QueryRowContext(ctx, "SELECT last_processed_unit FROM sources WHERE id = ?", sourceID).Scan(&index)
	if err != nil {
		return 0, err
	}
	return index, nil
}

// UpdateSourceProgress records the index of the last unit stored.
func UpdateSourceProgress(ctx context.Context, db DBExecutor, sourceID int64, index int) error {
	_, err := db.ExecContext(ctx, "UPDATE sources SET last_processed_unit = ? WHERE id = ?", index, sourceID)
	return err
}

// UpsertUnit stores a text unit, replacing any unit with the same id.
func UpsertUnit(ctx context.Context, db DBExecutor, u UnitRow) error {
	if u.ID == "" {
		return fmt.Errorf("unit id must be non-empty")
	}
	var classes any
	if len(u.Classes) > 0 {
		b, err := json.Marshal(u.Classes)
		if err != nil {
			return err
		}
		classes = string(b)
	}
	_, err := db.ExecContext(ctx, `INSERT INTO units (id, source_id, file, paragraph, text, context, classes)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	  source_id = excluded.source_id,
	  file = excluded.file,
	  paragraph = excluded.paragraph,
	  text = excluded.text,
	  context = excluded.context,
	  classes = excluded.classes`,
		u.ID, nullableInt64(u.SourceID), u.File, u.Paragraph, u.Text, u.Context, classes)
	if err != nil {
		return fmt.Errorf("upsert unit %s: %w", u.ID, err)
	}
	return nil
}

// SetWordLemma maps word to lemma. The latest mapping wins.
func SetWordLemma(ctx context.Context, db DBExecutor, word, lemma string) error {
	if word == "" {
		return fmt.Errorf("word must be non-empty")
	}
	_, err := db.ExecContext(ctx, `INSERT INTO word_lemmas (word, lemma) VALUES (?, ?)
	ON CONFLICT(word) DO UPDATE SET lemma = excluded.lemma`, word, lemma)
	return err
}

// InsertOccurrence appends an occurrence. Insertion order is the order the
// index views list occurrences in.
func InsertOccurrence(ctx context.Context, db DBExecutor, o OccurrenceRow) error {
	if o.UnitID == "" {
		return fmt.Errorf("occurrence unit id must be non-empty")
	}
	_, err := db.ExecContext(ctx, `INSERT INTO occurrences
	(unit_id, position, word, original, lemma, file, in_word_index, in_lemma_index)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.UnitID, o.Position, o.Word, o.Original, o.Lemma, o.File, o.InWordIndex, o.InLemmaIndex)
	if err != nil {
		return fmt.Errorf("insert occurrence %s@%d: %w", o.UnitID, o.Position, err)
	}
	return nil
}

// RebuildFamilies derives the word families from the lemma-indexed
// occurrences. Forms are ordered by first appearance.
func RebuildFamilies(ctx context.Context, db DBExecutor) error {
	stmts := []string{
		`DELETE FROM family_forms`,
		`DELETE FROM families`,
		`INSERT INTO families (lemma, total_occurrences, unique_forms)
		 SELECT lemma, COUNT(*), COUNT(DISTINCT word) FROM occurrences
		 WHERE in_lemma_index = 1 GROUP BY lemma`,
		`INSERT INTO family_forms (lemma, form, ord)
		 SELECT lemma, word, MIN(id) FROM occurrences
		 WHERE in_lemma_index = 1 AND word != '' GROUP BY lemma, word`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("rebuild families: %w", err)
		}
	}
	return nil
}

// nullableInt64 returns nil for 0 (meaning no reference) else the value.
func nullableInt64(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
