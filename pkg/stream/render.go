package stream

import (
	"html"
	"strings"
	"unicode"

	"github.com/japaniel/lexireader/pkg/lexicon"
)

// SpanishPunctuation is the default separator set besides whitespace.
const SpanishPunctuation = `.,;:!?¡¿"'«»()[]{}—–-…“”‘’/*`

// Token is a run of text classified as a word or a separator.
type Token struct {
	Text string
	Word bool
}

// Tokenizer splits text on whitespace and a punctuation set, keeping the
// separators so that concatenating the tokens restores the input.
type Tokenizer struct {
	punct string
}

// NewTokenizer returns a tokenizer for the given punctuation set. An empty set
// selects SpanishPunctuation.
func NewTokenizer(punct string) *Tokenizer {
	if punct == "" {
		punct = SpanishPunctuation
	}
	return &Tokenizer{punct: punct}
}

func (t *Tokenizer) separator(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(t.punct, r)
}

// Tokenize splits text into alternating word and separator runs.
func (t *Tokenizer) Tokenize(text string) []Token {
	var out []Token
	start := 0
	inWord := false
	for i, r := range text {
		word := !t.separator(r)
		if i > start && word != inWord {
			out = append(out, Token{Text: text[start:i], Word: inWord})
			start = i
		}
		inWord = word
	}
	if start < len(text) {
		out = append(out, Token{Text: text[start:], Word: inWord})
	}
	return out
}

// Span is a rendered token. Interactive spans carry the word and lemma they
// resolve to in the index.
type Span struct {
	Text        string `json:"text"`
	Word        string `json:"word,omitempty"`
	Lemma       string `json:"lemma,omitempty"`
	Interactive bool   `json:"interactive"`
}

// Renderer annotates text against an index.
type Renderer struct {
	idx *lexicon.Index
	tok *Tokenizer
}

// NewRenderer creates a Renderer. A nil tokenizer uses the Spanish set.
func NewRenderer(idx *lexicon.Index, tok *Tokenizer) *Renderer {
	if idx == nil {
		idx = lexicon.Empty()
	}
	if tok == nil {
		tok = NewTokenizer("")
	}
	return &Renderer{idx: idx, tok: tok}
}

// Render tokenizes text and marks the words known to the index.
func (r *Renderer) Render(text string) []Span {
	tokens := r.tok.Tokenize(text)
	spans := make([]Span, 0, len(tokens))
	for _, t := range tokens {
		s := Span{Text: t.Text}
		if t.Word {
			if w, l, ok := r.idx.Lookup(t.Text); ok {
				s.Word, s.Lemma, s.Interactive = w, l, true
			}
		}
		spans = append(spans, s)
	}
	return spans
}

// Plain concatenates the span texts.
func Plain(spans []Span) string {
	var b strings.Builder
	for _, s := range spans {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Interactive counts the interactive spans.
func Interactive(spans []Span) int {
	n := 0
	for _, s := range spans {
		if s.Interactive {
			n++
		}
	}
	return n
}

// HTML renders spans with interactive words wrapped in annotated spans.
// Newlines become <br>.
func HTML(spans []Span) string {
	var b strings.Builder
	for _, s := range spans {
		if !s.Interactive {
			b.WriteString(strings.ReplaceAll(html.EscapeString(s.Text), "\n", "<br>"))
			continue
		}
		b.WriteString(`<span class="word" data-word="`)
		b.WriteString(html.EscapeString(s.Word))
		b.WriteString(`" data-lemma="`)
		b.WriteString(html.EscapeString(s.Lemma))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(s.Text))
		b.WriteString(`</span>`)
	}
	return b.String()
}
