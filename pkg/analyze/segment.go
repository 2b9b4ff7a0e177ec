package analyze

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Paragraph is one <p> element (or plain-text block) of a document.
type Paragraph struct {
	Text    string
	Classes []string
}

// Paragraphs returns every <p> element of an HTML document in document
// order, including empty ones so that indexes stay stable. Documents without
// any <p> fall back to blank-line separated blocks of their text.
func Paragraphs(r io.Reader) ([]Paragraph, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var out []Paragraph
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.P {
			out = append(out, Paragraph{Text: textOf(n), Classes: classesOf(n)})
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if len(out) > 0 {
		return out, nil
	}
	for _, block := range SplitText(textOf(doc)) {
		out = append(out, Paragraph{Text: block})
	}
	return out, nil
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func classesOf(n *html.Node) []string {
	for _, a := range n.Attr {
		if a.Key == "class" {
			return strings.Fields(a.Val)
		}
	}
	return nil
}

// SplitText splits plain text into blocks separated by blank lines.
func SplitText(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		if s := strings.TrimSpace(block); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SplitSentences splits a paragraph after sentence-final punctuation.
// Japanese full-width marks always end a sentence; . ! ? and … only when
// followed by whitespace or the end of the text. Newlines also end one.
func SplitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	runes := []rune(text)
	emit := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for i, r := range runes {
		cur.WriteRune(r)
		switch r {
		case '。', '！', '？', '\n':
			emit()
		case '.', '!', '?', '…':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				emit()
			}
		}
	}
	emit()
	return out
}

var (
	// (?s) lets dot match newlines, (?i) ignores case.
	reRT = regexp.MustCompile(`(?si)<rt\b[^>]*>.*?</rt>`)
	reRP = regexp.MustCompile(`(?si)<rp\b[^>]*>.*?</rp>`)
)

// SanitizeRuby removes ruby text (<rt>) and ruby parentheses (<rp>) so that
// furigana does not end up duplicated in the extracted text ("漢字かんじ").
func SanitizeRuby(content []byte) []byte {
	if !bytes.Contains(content, []byte("<r")) && !bytes.Contains(content, []byte("<R")) {
		return content
	}
	cleaned := reRT.ReplaceAll(content, nil)
	return reRP.ReplaceAll(cleaned, nil)
}
