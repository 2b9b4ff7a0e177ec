package lexicon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Table file names inside a corpus data directory.
const (
	WordIndexFile   = "word_index.json"
	LemmaIndexFile  = "lemma_index.json"
	WordToLemmaFile = "word_to_lemma.json"
	FamiliesFile    = "word_families.json"
	ParagraphsFile  = "paragraphs.json"
	SentencesFile   = "sentences.json"

	// Frequency lists written next to the tables for study tools. They are
	// never read back.
	WordFrequencyFile  = "word_frequency.json"
	LemmaFrequencyFile = "lemma_frequency.json"
)

// UnmarshalJSON accepts the unit id under any of the keys used by the
// different indexer generations.
func (o *Occurrence) UnmarshalJSON(data []byte) error {
	type plain Occurrence
	var raw struct {
		plain
		ParagraphID string `json:"paragraph_id"`
		TextUnitID  string `json:"text_unit_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = Occurrence(raw.plain)
	if o.UnitID == "" {
		o.UnitID = raw.ParagraphID
	}
	if o.UnitID == "" {
		o.UnitID = raw.TextUnitID
	}
	return nil
}

// Source produces corpus tables. Implementations include ReadDir and the
// SQLite store in pkg/db.
type Source interface {
	Tables(ctx context.Context) (Tables, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Tables, error)

// Tables calls f.
func (f SourceFunc) Tables(ctx context.Context) (Tables, error) { return f(ctx) }

// DirSource reads the JSON tables from a data directory.
type DirSource string

// Tables implements Source.
func (d DirSource) Tables(_ context.Context) (Tables, error) {
	return ReadDir(string(d))
}

// ReadDir reads all corpus tables from dir. The unit table is read from
// paragraphs.json, falling back to sentences.json.
func ReadDir(dir string) (Tables, error) {
	var t Tables
	files := []struct {
		name string
		dst  any
	}{
		{WordIndexFile, &t.WordIndex},
		{LemmaIndexFile, &t.LemmaIndex},
		{WordToLemmaFile, &t.WordToLemma},
		{FamiliesFile, &t.Families},
	}
	for _, f := range files {
		if err := readJSON(filepath.Join(dir, f.name), f.dst); err != nil {
			return Tables{}, err
		}
	}

	unitsPath := filepath.Join(dir, ParagraphsFile)
	if _, err := os.Stat(unitsPath); errors.Is(err, os.ErrNotExist) {
		unitsPath = filepath.Join(dir, SentencesFile)
	}
	if err := readJSON(unitsPath, &t.Units); err != nil {
		return Tables{}, err
	}
	return t, nil
}

// WriteDir writes the tables to dir in the layout ReadDir expects.
func WriteDir(dir string, t Tables) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	files := []struct {
		name string
		src  any
	}{
		{WordIndexFile, t.WordIndex},
		{LemmaIndexFile, t.LemmaIndex},
		{WordToLemmaFile, t.WordToLemma},
		{FamiliesFile, t.Families},
		{ParagraphsFile, t.Units},
		{WordFrequencyFile, Frequencies(t.WordIndex)},
		{LemmaFrequencyFile, Frequencies(t.LemmaIndex)},
	}
	for _, f := range files {
		b, err := json.MarshalIndent(f.src, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, f.name), b, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}

func readJSON(path string, dst any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Load reads tables from src. Any failure is logged and yields an empty
// index, so the reading session is never blocked by bad corpus data.
func Load(ctx context.Context, src Source, log *slog.Logger) *Index {
	if log == nil {
		log = slog.Default()
	}
	t, err := src.Tables(ctx)
	if err != nil {
		log.Error("failed to load corpus data, continuing with empty index", slog.Any("error", err))
		return Empty()
	}
	idx := New(t)
	st := idx.Stats()
	log.Info("loaded corpus data",
		slog.Int("words", st.Words),
		slog.Int("lemmas", st.Lemmas),
		slog.Int("units", st.Units),
	)
	return idx
}

// Loader loads an index asynchronously and signals completion. Before the load
// finishes Index returns an empty index, so early lookups see empty results
// instead of errors.
type Loader struct {
	mu    sync.RWMutex
	idx   *Index
	ready chan struct{}
	once  sync.Once
	log   *slog.Logger
}

// NewLoader creates a loader that has not started yet.
func NewLoader(log *slog.Logger) *Loader {
	return &Loader{idx: Empty(), ready: make(chan struct{}), log: log}
}

// Start begins loading from src in a new goroutine. Only the first call has
// any effect.
func (l *Loader) Start(ctx context.Context, src Source) {
	l.once.Do(func() {
		go func() {
			idx := Load(ctx, src, l.log)
			l.mu.Lock()
			l.idx = idx
			l.mu.Unlock()
			close(l.ready)
		}()
	})
}

// Ready is closed once the load has completed, successfully or not.
func (l *Loader) Ready() <-chan struct{} { return l.ready }

// Wait blocks until the index is loaded or ctx is done.
func (l *Loader) Wait(ctx context.Context) (*Index, error) {
	select {
	case <-l.ready:
		return l.Index(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Index returns the loaded index, or an empty one while loading.
func (l *Loader) Index() *Index {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.idx
}
