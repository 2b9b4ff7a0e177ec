// Package annotate builds the word panel shown when a reader selects a word:
// lemma, word family, frequency tier and highlighted example usages.
package annotate

import (
	"context"
	"log/slog"

	"github.com/japaniel/lexireader/pkg/clipboard"
	"github.com/japaniel/lexireader/pkg/highlight"
	"github.com/japaniel/lexireader/pkg/lexicon"
)

// Example is one text unit showing a form of the selected word.
type Example struct {
	UnitID    string               `json:"unit_id"`
	File      string               `json:"file"`
	Form      string               `json:"form"`
	Text      string               `json:"text"`
	Fragments []highlight.Fragment `json:"fragments"`
}

// Panel is everything the word panel displays for one selection.
type Panel struct {
	Word            string    `json:"word"`
	Lemma           string    `json:"lemma"`
	Forms           []string  `json:"forms"`
	WordFrequency   int       `json:"word_frequency"`
	FamilyFrequency int       `json:"family_frequency"`
	Tier            Tier      `json:"tier"`
	FamilyExamples  []Example `json:"family_examples"`
	FormExamples    []Example `json:"form_examples"`
}

// Builder assembles panels from a shared read-only index.
type Builder struct {
	idx *lexicon.Index
	hl  *highlight.Highlighter
	cfg Config
	log *slog.Logger
}

// NewBuilder creates a Builder. A nil highlighter uses the Spanish alphabet.
func NewBuilder(idx *lexicon.Index, hl *highlight.Highlighter, cfg Config, log *slog.Logger) *Builder {
	if idx == nil {
		idx = lexicon.Empty()
	}
	if hl == nil {
		hl = highlight.New(nil)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Builder{idx: idx, hl: hl, cfg: cfg, log: log}
}

// Index returns the index the builder reads from.
func (b *Builder) Index() *lexicon.Index { return b.idx }

// Build computes the panel for word selected inside the unit origin. An empty
// lemma is resolved from the index.
func (b *Builder) Build(word, lemma, origin string) Panel {
	if lemma == "" {
		lemma = b.idx.LemmaOf(word)
	}
	familyOccs := b.idx.OccurrencesOfLemma(lemma)
	wordOccs := b.idx.OccurrencesOfWord(word)
	forms := b.idx.FamilyOf(lemma)
	if !b.idx.HasFamily(lemma) {
		forms = []string{word}
	}

	p := Panel{
		Word:            word,
		Lemma:           lemma,
		Forms:           forms,
		WordFrequency:   len(wordOccs),
		FamilyFrequency: len(familyOccs),
		Tier:            b.cfg.Tier(len(familyOccs)),
		FamilyExamples:  b.examples(familyOccs, forms, origin, b.cfg.FamilyExampleCap),
		FormExamples:    b.examples(wordOccs, []string{word}, origin, b.cfg.FormExampleCap),
	}
	b.log.Debug("built word panel",
		slog.String("word", word),
		slog.String("lemma", lemma),
		slog.Int("family_frequency", p.FamilyFrequency),
		slog.String("tier", string(p.Tier)),
	)
	return p
}

// AllExamples returns every example of the lemma except the origin unit,
// without the display cap.
func (b *Builder) AllExamples(lemma, origin string) []Example {
	return b.examples(b.idx.OccurrencesOfLemma(lemma), b.idx.FamilyOf(lemma), origin, 0)
}

// examples walks occs in order, keeping the first occurrence of each unit.
// The origin unit and units missing from the store are skipped. limit <= 0
// means no limit.
func (b *Builder) examples(occs []lexicon.Occurrence, forms []string, origin string, limit int) []Example {
	var out []Example
	seen := make(map[string]struct{}, len(occs))
	for _, occ := range occs {
		if limit > 0 && len(out) >= limit {
			break
		}
		if occ.UnitID == origin {
			continue
		}
		if _, ok := seen[occ.UnitID]; ok {
			continue
		}
		seen[occ.UnitID] = struct{}{}

		unit, ok := b.idx.Unit(occ.UnitID)
		if !ok {
			continue
		}
		text := StripMarkup(unit.Text)

		var frags []highlight.Fragment
		form := occ.Word
		if form != "" {
			frags = b.hl.Highlight(text, form)
		} else {
			frags = b.hl.HighlightAny(text, forms)
			form = firstMatch(frags)
		}
		out = append(out, Example{
			UnitID:    unit.ID,
			File:      unit.File,
			Form:      form,
			Text:      text,
			Fragments: frags,
		})
	}
	return out
}

func firstMatch(frags []highlight.Fragment) string {
	for _, f := range frags {
		if f.Match {
			return f.Text
		}
	}
	return ""
}

// PromptExamples returns the stripped texts of the distinct units where lemma
// occurs, in first-seen order. limit <= 0 means all of them.
func (b *Builder) PromptExamples(lemma string, limit int) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, occ := range b.idx.OccurrencesOfLemma(lemma) {
		if limit > 0 && len(out) >= limit {
			break
		}
		if _, ok := seen[occ.UnitID]; ok {
			continue
		}
		seen[occ.UnitID] = struct{}{}
		unit, ok := b.idx.Unit(occ.UnitID)
		if !ok {
			continue
		}
		if text := StripMarkup(unit.Text); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// Prompt returns the discovery prompt for lemma using every example.
func (b *Builder) Prompt(lemma string) string {
	return DiscoveryPrompt(lemma, b.idx.FamilyOf(lemma), b.PromptExamples(lemma, 0))
}

// CopyPrompt copies the discovery prompt for lemma to sink and reports
// whether the write succeeded.
func (b *Builder) CopyPrompt(ctx context.Context, sink clipboard.Sink, lemma string) bool {
	return clipboard.Copy(ctx, sink, b.Prompt(lemma), b.log)
}

// ExportExamples renders examples as a bulleted plain-text list.
func ExportExamples(examples []Example) string {
	texts := make([]string, 0, len(examples))
	for _, e := range examples {
		texts = append(texts, e.Text)
	}
	return Bulleted(texts)
}

// CopyAllExamples copies the uncapped example list of lemma to sink.
func (b *Builder) CopyAllExamples(ctx context.Context, sink clipboard.Sink, lemma, origin string) bool {
	return clipboard.Copy(ctx, sink, ExportExamples(b.AllExamples(lemma, origin)), b.log)
}
