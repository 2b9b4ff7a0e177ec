package db

import "time"

// Source is one ingested document (a book chapter, an article).
type Source struct {
	ID                int64
	File              string
	Title             string
	Language          string
	AddedAt           time.Time
	LastProcessedUnit int
}

// UnitRow is a stored text unit.
type UnitRow struct {
	ID        string
	SourceID  int64
	File      string
	Paragraph int
	Text      string
	Context   string
	Classes   []string
}

// OccurrenceRow is one indexed word inside a unit. InWordIndex and
// InLemmaIndex record which index views list it.
type OccurrenceRow struct {
	UnitID       string
	Position     int
	Word         string
	Original     string
	Lemma        string
	File         string
	InWordIndex  bool
	InLemmaIndex bool
}
