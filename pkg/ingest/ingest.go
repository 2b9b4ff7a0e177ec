package ingest

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/japaniel/lexireader/pkg/analyze"
	"github.com/japaniel/lexireader/pkg/db"
	"github.com/japaniel/lexireader/pkg/lexicon"
)

// Mode selects how a document is split into units.
type Mode string

const (
	ByParagraph Mode = "paragraph"
	BySentence  Mode = "sentence"
)

// contextRunes is how much of a unit is kept as its context preview.
const contextRunes = 100

// Document is one source file to index. Body is XHTML/HTML unless Plain is set.
type Document struct {
	File     string
	Title    string
	Language string
	Body     []byte
	Plain    bool
}

// Segment is one unit cut from a document before analysis.
type Segment struct {
	ID        string
	Paragraph int
	Text      string
	Classes   []string
}

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// Report summarizes a build.
type Report struct {
	Documents   int
	Units       int
	Occurrences int
}

// Builder turns documents into corpus rows: units, occurrences, word→lemma
// mappings and, once every document is stored, word families.
type Builder struct {
	DB        *sql.DB
	Analyzer  analyze.Analyzer
	Mode      Mode
	BatchSize int
	Workers   int
	Logger    *slog.Logger
	// OnProgress is called with the number of stored units of the current document.
	OnProgress func(file string, current, total int)

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewBuilder returns a Builder with paragraph units, 50-write batches and four workers.
func NewBuilder(conn *sql.DB, a analyze.Analyzer) *Builder {
	return &Builder{
		DB:        conn,
		Analyzer:  a,
		Mode:      ByParagraph,
		BatchSize: 50,
		Workers:   4,
	}
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

// Build ingests every document and rebuilds the word families. A document
// already fully stored is skipped; a partly stored one resumes after its last
// stored unit.
func (b *Builder) Build(ctx context.Context, docs []Document) (Report, error) {
	var rep Report
	for _, doc := range docs {
		units, occ, err := b.Ingest(ctx, doc)
		rep.Units += units
		rep.Occurrences += occ
		if err != nil {
			return rep, fmt.Errorf("ingest %s: %w", doc.File, err)
		}
		rep.Documents++
	}
	if err := db.RebuildFamilies(ctx, b.DB); err != nil {
		return rep, err
	}
	b.logger().Info("corpus built",
		slog.Int("documents", rep.Documents),
		slog.Int("units", rep.Units),
		slog.Int("occurrences", rep.Occurrences))
	return rep, nil
}

// Split cuts a document into units. Unit ids are "<file>_<n>": in paragraph
// mode n is the paragraph number, so empty paragraphs leave gaps; in sentence
// mode n counts the sentences of the document from zero.
func Split(doc Document, mode Mode) ([]Segment, error) {
	var paras []analyze.Paragraph
	if doc.Plain {
		for _, text := range analyze.SplitText(string(doc.Body)) {
			paras = append(paras, analyze.Paragraph{Text: text})
		}
	} else {
		var err error
		paras, err = analyze.Paragraphs(bytes.NewReader(analyze.SanitizeRuby(doc.Body)))
		if err != nil {
			return nil, err
		}
	}

	var segs []Segment
	for p, para := range paras {
		texts := []string{para.Text}
		if mode == BySentence {
			texts = analyze.SplitSentences(para.Text)
		}
		for _, text := range texts {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			n := p
			if mode == BySentence {
				n = len(segs)
			}
			segs = append(segs, Segment{
				ID:        fmt.Sprintf("%s_%d", doc.File, n),
				Paragraph: p,
				Text:      text,
				Classes:   para.Classes,
			})
		}
	}
	return segs, nil
}

// preview returns the first contextRunes runes of text, marked when cut.
func preview(text string) string {
	if utf8.RuneCountInString(text) <= contextRunes {
		return text
	}
	return string([]rune(text)[:contextRunes]) + "..."
}

// analyzedUnit is one segment after analysis, waiting to be written.
type analyzedUnit struct {
	Index  int
	Seg    Segment
	Tokens []analyze.Token
	Err    error
}

// Ingest stores one document and returns how many units and occurrences it
// wrote. Units are analyzed concurrently and written in document order; the
// source's progress is checkpointed with each unit.
func (b *Builder) Ingest(ctx context.Context, doc Document) (int, int, error) {
	if b.Analyzer == nil {
		return 0, 0, errors.New("ingest: no analyzer")
	}
	log := b.logger().With(slog.String("file", doc.File))

	segs, err := Split(doc, b.Mode)
	if err != nil {
		return 0, 0, fmt.Errorf("split: %w", err)
	}

	sourceID, err := db.CreateOrGetSource(ctx, b.DB, doc.File, doc.Title, doc.Language)
	if err != nil {
		return 0, 0, err
	}
	lastStored, err := db.GetSourceProgress(ctx, b.DB, sourceID)
	if err != nil {
		log.Warn("read progress", slog.Any("error", err))
		lastStored = -1
	}

	total := len(segs)
	start := lastStored + 1
	if start >= total {
		log.Debug("already stored", slog.Int("units", total))
		return 0, 0, nil
	}
	if start > 0 {
		log.Info("resuming", slog.Int("unit", start), slog.Int("total", total))
	}

	workers := max(b.Workers, 1)
	var wp WorkerPoolInterface
	if b.PoolFactory != nil {
		wp = b.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan analyzedUnit, workers*2)
	consumed := make(chan error, 1)

	bw := NewBatchWriter(b.DB, b.BatchSize, 100*time.Millisecond)
	var occurrences int

	wp.Start(ctx)

	go func() {
		consumed <- b.consume(ctx, cancel, results, bw, start, total, doc, sourceID, &occurrences)
	}()

	// Producer: submit one analysis job per unit.
	var submitErr error
	for i := start; i < total; i++ {
		idx, seg := i, segs[i]
		job := func(ctx context.Context) error {
			res := analyzedUnit{Index: idx, Seg: seg}
			res.Tokens, res.Err = b.Analyzer.Analyze(seg.Text)
			select {
			case results <- res:
			case <-ctx.Done():
			}
			return nil
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, ErrPoolClosed) {
				submitErr = err
			}
			cancel()
			break
		}
	}

	// Workers are done once Close returns, so results can be closed safely.
	wp.Close()
	close(results)

	consumerErr := <-consumed
	if err := bw.Close(); err != nil && consumerErr == nil {
		consumerErr = err
	}
	if submitErr != nil {
		consumerErr = submitErr
	}
	return bw.Committed(), occurrences, consumerErr
}

// consume reorders analyzed units and hands them to the batch writer. It
// returns when results is closed or on the first failure.
func (b *Builder) consume(ctx context.Context, cancel context.CancelFunc, results <-chan analyzedUnit,
	bw *BatchWriter, start, total int, doc Document, sourceID int64, occurrences *int) error {
	pending := make(map[int]analyzedUnit)
	next := start

	flush := func() error {
		for {
			item, ok := pending[next]
			if !ok {
				return nil
			}
			delete(pending, next)
			*occurrences += len(item.Tokens)
			if err := bw.Submit(b.write(item, doc, sourceID)); err != nil {
				return err
			}
			next++
			if b.OnProgress != nil {
				b.OnProgress(doc.File, next, total)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			// Keep draining so workers blocked on results can exit.
			for range results {
			}
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := flush(); err != nil {
					return err
				}
				if next < total {
					return fmt.Errorf("stored %d of %d units", next, total)
				}
				return nil
			}
			if res.Err != nil {
				cancel()
				for range results {
				}
				return fmt.Errorf("analyze unit %s: %w", res.Seg.ID, res.Err)
			}
			pending[res.Index] = res
			if err := flush(); err != nil {
				cancel()
				for range results {
				}
				return err
			}
		}
	}
}

// write returns the batch write that stores one unit and its occurrences.
func (b *Builder) write(item analyzedUnit, doc Document, sourceID int64) WriteFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		if err := db.UpsertUnit(ctx, tx, db.UnitRow{
			ID:        item.Seg.ID,
			SourceID:  sourceID,
			File:      doc.File,
			Paragraph: item.Seg.Paragraph,
			Text:      item.Seg.Text,
			Context:   preview(item.Seg.Text),
			Classes:   item.Seg.Classes,
		}); err != nil {
			return err
		}
		for pos, tok := range item.Tokens {
			if err := db.SetWordLemma(ctx, tx, tok.Word, tok.Lemma); err != nil {
				return fmt.Errorf("map %s: %w", tok.Word, err)
			}
			if err := db.InsertOccurrence(ctx, tx, db.OccurrenceRow{
				UnitID:       item.Seg.ID,
				Position:     pos,
				Word:         tok.Word,
				Original:     tok.Surface,
				Lemma:        tok.Lemma,
				File:         doc.File,
				InWordIndex:  true,
				InLemmaIndex: true,
			}); err != nil {
				return err
			}
		}
		if err := db.UpdateSourceProgress(ctx, tx, sourceID, item.Index); err != nil {
			return fmt.Errorf("save progress: %w", err)
		}
		return nil
	}
}

// Export writes the stored corpus as JSON index tables into dir.
func Export(ctx context.Context, conn *sql.DB, dir string) (lexicon.Tables, error) {
	t, err := db.LoadTables(ctx, conn)
	if err != nil {
		return t, err
	}
	if err := lexicon.WriteDir(dir, t); err != nil {
		return t, err
	}
	return t, nil
}
