// Package analyze splits corpus text into surface tokens and attaches the
// lemma each token belongs to. Lemmas come from an external source: a
// word-to-lemma table or a morphological dictionary.
package analyze

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Token is one indexable word of a text.
type Token struct {
	Surface string // as written, e.g. "Corría"
	Word    string // lower-cased index key, e.g. "corría"
	Lemma   string // e.g. "correr"
	POS     string // primary part of speech when the source provides one
}

// Analyzer turns a text unit into its indexable tokens, in order.
type Analyzer interface {
	Analyze(text string) ([]Token, error)
}

// TableAnalyzer tokenizes on letter runs and resolves lemmas through a
// word-to-lemma table. Words missing from the table are their own lemma.
type TableAnalyzer struct {
	lemmas map[string]string
}

// NewTableAnalyzer creates a TableAnalyzer. A nil table maps every word to
// itself.
func NewTableAnalyzer(lemmas map[string]string) *TableAnalyzer {
	if lemmas == nil {
		lemmas = map[string]string{}
	}
	return &TableAnalyzer{lemmas: lemmas}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.Is(unicode.Mn, r)
}

// Analyze implements Analyzer.
func (a *TableAnalyzer) Analyze(text string) ([]Token, error) {
	text = norm.NFC.String(text)
	var out []Token
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		surface := text[start:end]
		word := strings.ToLower(surface)
		lemma := word
		if l, ok := a.lemmas[word]; ok && l != "" {
			lemma = strings.ToLower(l)
		}
		out = append(out, Token{Surface: surface, Word: word, Lemma: lemma})
		start = -1
	}
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(text))
	return out, nil
}

// LoadLemmaTable reads a word-to-lemma table. Files ending in .json hold a
// single object; anything else is read as "word<TAB>lemma" lines, with blank
// lines and lines starting with # ignored.
func LoadLemmaTable(path string) (map[string]string, error) {
	return loadTable(path, false)
}

// LoadLemmaList reads "lemma<TAB>form" lines, the layout of published
// lemmatization lists, into a word-to-lemma table.
func LoadLemmaList(path string) (map[string]string, error) {
	return loadTable(path, true)
}

func loadTable(path string, lemmaFirst bool) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lemma table: %w", err)
	}
	defer f.Close()

	table := make(map[string]string)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.NewDecoder(f).Decode(&table); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return table, nil
	}

	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		word, lemma, ok := strings.Cut(s, "\t")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected two tab-separated columns", path, line)
		}
		if lemmaFirst {
			word, lemma = lemma, word
		}
		word = strings.ToLower(strings.TrimSpace(word))
		if _, seen := table[word]; seen && lemmaFirst {
			// Ambiguous forms keep their first listed lemma.
			continue
		}
		table[word] = strings.TrimSpace(lemma)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return table, nil
}
