package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/japaniel/lexireader/pkg/lexicon"
)

// ImportTables replaces the stored corpus with t in one transaction.
// Sources are kept.
func ImportTables(ctx context.Context, conn *sql.DB, t lexicon.Tables) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	for _, table := range []string{"family_forms", "families", "occurrences", "word_lemmas", "units"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, id := range slices.Sorted(maps.Keys(t.Units)) {
		u := t.Units[id]
		if err := UpsertUnit(ctx, tx, UnitRow{
			ID:        id,
			File:      u.File,
			Paragraph: u.Paragraph,
			Text:      u.Text,
			Context:   u.Context,
			Classes:   u.Classes,
		}); err != nil {
			return err
		}
	}

	for _, word := range slices.Sorted(maps.Keys(t.WordToLemma)) {
		if err := SetWordLemma(ctx, tx, word, t.WordToLemma[word]); err != nil {
			return err
		}
	}

	for _, lemma := range slices.Sorted(maps.Keys(t.LemmaIndex)) {
		for _, occ := range t.LemmaIndex[lemma] {
			if err := InsertOccurrence(ctx, tx, OccurrenceRow{
				UnitID:       occ.UnitID,
				Position:     occ.Position,
				Word:         occ.Word,
				Original:     occ.Original,
				Lemma:        lemma,
				File:         occ.File,
				InLemmaIndex: true,
			}); err != nil {
				return err
			}
		}
	}

	// Word-indexed occurrences reuse the matching lemma row when one exists.
	for _, word := range slices.Sorted(maps.Keys(t.WordIndex)) {
		for _, occ := range t.WordIndex[word] {
			res, err := tx.ExecContext(ctx, `UPDATE occurrences SET in_word_index = 1
			WHERE id = (SELECT id FROM occurrences
			            WHERE unit_id = ? AND position = ? AND word = ? AND in_word_index = 0
			            ORDER BY id LIMIT 1)`, occ.UnitID, occ.Position, word)
			if err != nil {
				return fmt.Errorf("mark word occurrence: %w", err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				continue
			}
			lemma := occ.Lemma
			if lemma == "" {
				lemma = t.WordToLemma[word]
			}
			if lemma == "" {
				lemma = word
			}
			if err := InsertOccurrence(ctx, tx, OccurrenceRow{
				UnitID:      occ.UnitID,
				Position:    occ.Position,
				Word:        word,
				Original:    occ.Original,
				Lemma:       lemma,
				File:        occ.File,
				InWordIndex: true,
			}); err != nil {
				return err
			}
		}
	}

	for _, lemma := range slices.Sorted(maps.Keys(t.Families)) {
		f := t.Families[lemma]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO families (lemma, total_occurrences, unique_forms) VALUES (?, ?, ?)`,
			lemma, f.TotalOccurrences, f.UniqueForms); err != nil {
			return fmt.Errorf("insert family %s: %w", lemma, err)
		}
		for i, form := range f.Forms {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO family_forms (lemma, form, ord) VALUES (?, ?, ?)`,
				lemma, form, i); err != nil {
				return fmt.Errorf("insert family form %s/%s: %w", lemma, form, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

// LoadTables reads the stored corpus back into index tables.
func LoadTables(ctx context.Context, db DBExecutor) (lexicon.Tables, error) {
	t := lexicon.Tables{
		WordIndex:   map[string][]lexicon.Occurrence{},
		LemmaIndex:  map[string][]lexicon.Occurrence{},
		WordToLemma: map[string]string{},
		Families:    map[string]lexicon.Family{},
		Units:       map[string]lexicon.Unit{},
	}
	if err := loadUnits(ctx, db, t.Units); err != nil {
		return t, err
	}
	if err := loadWordLemmas(ctx, db, t.WordToLemma); err != nil {
		return t, err
	}
	if err := loadOccurrences(ctx, db, &t); err != nil {
		return t, err
	}
	if err := loadFamilies(ctx, db, t.Families); err != nil {
		return t, err
	}
	return t, nil
}

func loadUnits(ctx context.Context, db DBExecutor, dst map[string]lexicon.Unit) error {
	rows, err := db.QueryContext(ctx, `SELECT id, file, paragraph, text, context, classes FROM units`)
	if err != nil {
		return fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u lexicon.Unit
		var summary, classes sql.NullString
		if err := rows.Scan(&u.ID, &u.File, &u.Paragraph, &u.Text, &summary, &classes); err != nil {
			return err
		}
		u.Context = summary.String
		if classes.Valid && classes.String != "" {
			if err := json.Unmarshal([]byte(classes.String), &u.Classes); err != nil {
				return fmt.Errorf("decode classes of unit %s: %w", u.ID, err)
			}
		}
		dst[u.ID] = u
	}
	return rows.Err()
}

func loadWordLemmas(ctx context.Context, db DBExecutor, dst map[string]string) error {
	rows, err := db.QueryContext(ctx, `SELECT word, lemma FROM word_lemmas`)
	if err != nil {
		return fmt.Errorf("query word lemmas: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var word, lemma string
		if err := rows.Scan(&word, &lemma); err != nil {
			return err
		}
		dst[word] = lemma
	}
	return rows.Err()
}

func loadOccurrences(ctx context.Context, db DBExecutor, t *lexicon.Tables) error {
	rows, err := db.QueryContext(ctx, `SELECT unit_id, position, word, original, lemma, file,
	in_word_index, in_lemma_index FROM occurrences ORDER BY id`)
	if err != nil {
		return fmt.Errorf("query occurrences: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var o OccurrenceRow
		var original, file sql.NullString
		if err := rows.Scan(&o.UnitID, &o.Position, &o.Word, &original, &o.Lemma, &file,
			&o.InWordIndex, &o.InLemmaIndex); err != nil {
			return err
		}
		base := lexicon.Occurrence{
			UnitID:   o.UnitID,
			Position: o.Position,
			Original: original.String,
			File:     file.String,
		}
		if o.InWordIndex {
			occ := base
			occ.Lemma = o.Lemma
			t.WordIndex[o.Word] = append(t.WordIndex[o.Word], occ)
		}
		if o.InLemmaIndex {
			occ := base
			occ.Word = o.Word
			t.LemmaIndex[o.Lemma] = append(t.LemmaIndex[o.Lemma], occ)
		}
	}
	return rows.Err()
}

func loadFamilies(ctx context.Context, db DBExecutor, dst map[string]lexicon.Family) error {
	rows, err := db.QueryContext(ctx, `SELECT lemma, total_occurrences, unique_forms FROM families`)
	if err != nil {
		return fmt.Errorf("query families: %w", err)
	}
	for rows.Next() {
		var lemma string
		var f lexicon.Family
		if err := rows.Scan(&lemma, &f.TotalOccurrences, &f.UniqueForms); err != nil {
			rows.Close()
			return err
		}
		dst[lemma] = f
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	forms, err := db.QueryContext(ctx, `SELECT lemma, form FROM family_forms ORDER BY lemma, ord`)
	if err != nil {
		return fmt.Errorf("query family forms: %w", err)
	}
	defer forms.Close()
	for forms.Next() {
		var lemma, form string
		if err := forms.Scan(&lemma, &form); err != nil {
			return err
		}
		f := dst[lemma]
		f.Forms = append(f.Forms, form)
		dst[lemma] = f
	}
	return forms.Err()
}

// CorpusSource loads index tables from a database. It implements
// lexicon.Source.
type CorpusSource struct {
	DB *sql.DB
}

// Tables implements lexicon.Source.
func (s CorpusSource) Tables(ctx context.Context) (lexicon.Tables, error) {
	return LoadTables(ctx, s.DB)
}
