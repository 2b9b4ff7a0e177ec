// Package highlight marks whole-word occurrences of a target word inside a
// text unit. Matching ignores case; the output keeps the original casing.
package highlight

import (
	"slices"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Fragment is a piece of the input text. Match is set when the piece is an
// occurrence of the target word.
type Fragment struct {
	Text  string `json:"text"`
	Match bool   `json:"match,omitempty"`
}

// Alphabet decides which runes belong to words of the corpus language. A
// candidate match is only accepted when the runes around it are not letters.
type Alphabet interface {
	IsLetter(r rune) bool
}

// AlphabetFunc adapts a function to Alphabet.
type AlphabetFunc func(r rune) bool

// IsLetter calls f.
func (f AlphabetFunc) IsLetter(r rune) bool { return f(r) }

// Spanish accepts ASCII letters plus the accented vowels, ü and ñ.
var Spanish Alphabet = AlphabetFunc(func(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		return true
	}
	return strings.ContainsRune("áéíóúüñÁÉÍÓÚÜÑ", r)
})

// UnicodeLetters accepts any Unicode letter or combining mark.
var UnicodeLetters Alphabet = AlphabetFunc(func(r rune) bool {
	return unicode.IsLetter(r) || unicode.Is(unicode.Mn, r)
})

// Highlighter finds word occurrences using a fixed alphabet.
type Highlighter struct {
	alphabet Alphabet
}

// New returns a Highlighter for the given alphabet. A nil alphabet means
// Spanish.
func New(a Alphabet) *Highlighter {
	if a == nil {
		a = Spanish
	}
	return &Highlighter{alphabet: a}
}

// Highlight splits text into literal and matching fragments for target.
func (h *Highlighter) Highlight(text, target string) []Fragment {
	return h.HighlightAny(text, []string{target})
}

// HighlightAny is like Highlight but accepts several targets, typically all
// forms of a word family. At a given position the longest target wins.
//
// Matching runs on the NFC form of the text, but fragments are cut from the
// input itself, so Join always gives the input back. If nothing matches, the
// whole text is returned as one fragment.
func (h *Highlighter) HighlightAny(text string, targets []string) []Fragment {
	t := newTextMap(text)

	pats := make([][]rune, 0, len(targets))
	for _, target := range targets {
		if p := fold([]rune(norm.NFC.String(target))); len(p) > 0 {
			pats = append(pats, p)
		}
	}
	sort.SliceStable(pats, func(i, j int) bool { return len(pats[i]) > len(pats[j]) })

	var out []Fragment
	last := 0
	for i := 0; i < len(t.runes); {
		n := h.matchAt(t, i, pats)
		if n == 0 {
			// Rejected or no candidate: move one rune so overlapping
			// boundaries are still considered.
			i++
			continue
		}
		from, to := t.offset(i), t.offset(i+n)
		if from > last {
			out = append(out, Fragment{Text: text[last:from]})
		}
		out = append(out, Fragment{Text: text[from:to], Match: true})
		i += n
		last = to
	}

	if len(out) == 0 {
		return []Fragment{{Text: text}}
	}
	if last < len(text) {
		out = append(out, Fragment{Text: text[last:]})
	}
	return out
}

// textMap is the folded NFC form of a text with, for every rune, the
// normalization segment of the input it came from.
type textMap struct {
	runes  []rune
	seg    []int
	starts []int // byte offset of each segment, plus len(text)
}

func newTextMap(text string) textMap {
	var t textMap
	var it norm.Iter
	it.InitString(norm.NFC, text)
	for !it.Done() {
		start := it.Pos()
		chunk := string(it.Next())
		t.starts = append(t.starts, start)
		for _, r := range chunk {
			t.runes = append(t.runes, unicode.ToLower(r))
			t.seg = append(t.seg, len(t.starts)-1)
		}
	}
	t.starts = append(t.starts, len(text))
	return t
}

// aligned reports whether rune index i starts a segment.
func (t textMap) aligned(i int) bool {
	return i == 0 || i == len(t.runes) || t.seg[i-1] != t.seg[i]
}

// offset maps a segment-aligned rune index to a byte offset in the input.
func (t textMap) offset(i int) int {
	if i == len(t.runes) {
		return t.starts[len(t.starts)-1]
	}
	return t.starts[t.seg[i]]
}

// matchAt returns the length of the longest pattern occurring at i as a whole
// word, or 0.
func (h *Highlighter) matchAt(t textMap, i int, pats [][]rune) int {
	s := t.runes
	if !t.aligned(i) || (i > 0 && h.alphabet.IsLetter(s[i-1])) {
		return 0
	}
	for _, p := range pats {
		end := i + len(p)
		if end > len(s) || !slices.Equal(s[i:end], p) || !t.aligned(end) {
			continue
		}
		if end < len(s) && h.alphabet.IsLetter(s[end]) {
			continue
		}
		return len(p)
	}
	return 0
}

// Count returns the number of matching fragments.
func Count(frags []Fragment) int {
	n := 0
	for _, f := range frags {
		if f.Match {
			n++
		}
	}
	return n
}

// Join concatenates fragment texts.
func Join(frags []Fragment) string {
	var b strings.Builder
	for _, f := range frags {
		b.WriteString(f.Text)
	}
	return b.String()
}

// Markup joins fragments, wrapping matches in openTag and closeTag.
func Markup(frags []Fragment, openTag, closeTag string) string {
	var b strings.Builder
	for _, f := range frags {
		if f.Match {
			b.WriteString(openTag)
			b.WriteString(f.Text)
			b.WriteString(closeTag)
			continue
		}
		b.WriteString(f.Text)
	}
	return b.String()
}

// fold lower-cases rune by rune so indexes stay aligned with the source.
func fold(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}
