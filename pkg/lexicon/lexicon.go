package lexicon

import (
	"strings"
	"sync"
)

// Occurrence records one appearance of a word form inside a text unit.
type Occurrence struct {
	Word     string `json:"word"`
	UnitID   string `json:"sentence_id"`
	Position int    `json:"position"`
	File     string `json:"file,omitempty"`
	Original string `json:"original,omitempty"`
	Lemma    string `json:"lemma,omitempty"`
}

// Family lists the distinct surface forms realizing one lemma.
type Family struct {
	Forms            []string `json:"forms"`
	TotalOccurrences int      `json:"total_occurrences,omitempty"`
	UniqueForms      int      `json:"unique_forms,omitempty"`
}

// Unit is an addressable span of source text (a paragraph or a sentence).
type Unit struct {
	ID        string   `json:"-"`
	Text      string   `json:"text"`
	File      string   `json:"file"`
	Paragraph int      `json:"paragraph"`
	Context   string   `json:"context,omitempty"`
	Classes   []string `json:"classes,omitempty"`
}

// Tables is the raw, keyed form of the corpus data as produced by the indexer.
type Tables struct {
	WordIndex   map[string][]Occurrence
	LemmaIndex  map[string][]Occurrence
	WordToLemma map[string]string
	Families    map[string]Family
	Units       map[string]Unit
}

// Stats summarizes the size of an index.
type Stats struct {
	Words  int
	Lemmas int
	Units  int
}

// Index answers lemma, family, occurrence and unit lookups over preloaded
// tables. It is never mutated after construction and is safe for concurrent use.
type Index struct {
	words    map[string][]Occurrence
	lemmas   map[string][]Occurrence
	toLemma  map[string]string
	families map[string]Family
	units    map[string]Unit

	fpOnce sync.Once
	fp     uint64
}

// Empty returns an index with no entries. Every lookup on it yields the
// documented default.
func Empty() *Index {
	return New(Tables{})
}

// New wraps the given tables. Nil maps are replaced with empty ones; unit ids
// are copied into Unit.ID.
func New(t Tables) *Index {
	idx := &Index{
		words:    t.WordIndex,
		lemmas:   t.LemmaIndex,
		toLemma:  t.WordToLemma,
		families: t.Families,
		units:    make(map[string]Unit, len(t.Units)),
	}
	if idx.words == nil {
		idx.words = map[string][]Occurrence{}
	}
	if idx.lemmas == nil {
		idx.lemmas = map[string][]Occurrence{}
	}
	if idx.toLemma == nil {
		idx.toLemma = map[string]string{}
	}
	if idx.families == nil {
		idx.families = map[string]Family{}
	}
	for id, u := range t.Units {
		u.ID = id
		idx.units[id] = u
	}
	return idx
}

// LemmaOf returns the lemma for word, or word itself when it has no mapping.
func (x *Index) LemmaOf(word string) string {
	if l, ok := x.toLemma[word]; ok && l != "" {
		return l
	}
	return word
}

// OccurrencesOfWord returns the occurrences recorded for a surface form.
func (x *Index) OccurrencesOfWord(word string) []Occurrence {
	return x.words[word]
}

// OccurrencesOfLemma returns the occurrences of every form of lemma.
func (x *Index) OccurrencesOfLemma(lemma string) []Occurrence {
	return x.lemmas[lemma]
}

// FamilyOf returns the registered forms of lemma, or [lemma] when none are
// registered.
func (x *Index) FamilyOf(lemma string) []string {
	if f, ok := x.families[lemma]; ok && len(f.Forms) > 0 {
		return f.Forms
	}
	return []string{lemma}
}

// HasFamily reports whether lemma has registered forms.
func (x *Index) HasFamily(lemma string) bool {
	return len(x.families[lemma].Forms) > 0
}

// FormsFor returns the family of word's lemma, defaulting to [word].
func (x *Index) FormsFor(word string) []string {
	lemma := x.LemmaOf(word)
	if f, ok := x.families[lemma]; ok && len(f.Forms) > 0 {
		return f.Forms
	}
	return []string{word}
}

// Known reports whether word has at least one recorded occurrence.
func (x *Index) Known(word string) bool {
	return len(x.words[word]) > 0
}

// Lookup resolves a token as it appears in running text. Tokens are indexed
// lower-cased, so the folded form is tried when the literal one is unknown.
func (x *Index) Lookup(token string) (word, lemma string, ok bool) {
	if x.Known(token) {
		return token, x.LemmaOf(token), true
	}
	lower := strings.ToLower(token)
	if lower != token && x.Known(lower) {
		return lower, x.LemmaOf(lower), true
	}
	return "", "", false
}

// Unit returns the text unit with the given id.
func (x *Index) Unit(id string) (Unit, bool) {
	u, ok := x.units[id]
	return u, ok
}

// Stats reports the number of words, lemmas and units held.
func (x *Index) Stats() Stats {
	return Stats{Words: len(x.words), Lemmas: len(x.lemmas), Units: len(x.units)}
}
