package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/japaniel/lexireader/pkg/lexicon"
)

// WriteDocuments renders every source file of t as a reading document in
// dir. Each unit becomes a paragraph carrying the unit id, and each stored
// occurrence is wrapped in a word span:
//
//	<span class="word" data-word="corre" data-lemma="correr"
//	      data-sentence-id="cap01.xhtml_0" data-position="2"
//	      data-file="cap01.xhtml">corre</span>
//
// It returns the number of documents written.
func WriteDocuments(dir string, t lexicon.Tables) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create %s: %w", dir, err)
	}

	byFile := make(map[string][]lexicon.Unit)
	for id, u := range t.Units {
		u.ID = id
		byFile[u.File] = append(byFile[u.File], u)
	}
	occs := make(map[string][]lexicon.Occurrence)
	for _, list := range t.WordIndex {
		for _, o := range list {
			occs[o.UnitID] = append(occs[o.UnitID], o)
		}
	}

	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, file := range files {
		units := byFile[file]
		sort.Slice(units, func(i, j int) bool {
			if units[i].Paragraph != units[j].Paragraph {
				return units[i].Paragraph < units[j].Paragraph
			}
			return unitNumber(units[i].ID) < unitNumber(units[j].ID)
		})
		doc := readingDocument(file, units, occs, t.WordToLemma)
		if err := writeHTML(filepath.Join(dir, documentName(file)), doc); err != nil {
			return 0, err
		}
	}
	return len(files), nil
}

// documentName keeps html names and appends .html to the rest.
func documentName(file string) string {
	name := filepath.Base(file)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".xhtml", ".htm":
		return name
	}
	return name + ".html"
}

// unitNumber returns the trailing number of a unit id, or -1.
func unitNumber(id string) int {
	i := strings.LastIndexByte(id, '_')
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return -1
	}
	return n
}

func readingDocument(file string, units []lexicon.Unit, occs map[string][]lexicon.Occurrence, toLemma map[string]string) *html.Node {
	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})

	root := element(atom.Html)
	doc.AppendChild(root)
	head := element(atom.Head)
	root.AppendChild(head)
	head.AppendChild(element(atom.Meta, html.Attribute{Key: "charset", Val: "utf-8"}))
	title := element(atom.Title)
	title.AppendChild(textNode(file))
	head.AppendChild(title)

	body := element(atom.Body)
	root.AppendChild(body)
	for _, u := range units {
		attrs := []html.Attribute{{Key: "id", Val: u.ID}}
		if len(u.Classes) > 0 {
			attrs = append(attrs, html.Attribute{Key: "class", Val: strings.Join(u.Classes, " ")})
		}
		p := element(atom.P, attrs...)
		annotateUnit(p, u, occs[u.ID], toLemma)
		body.AppendChild(p)
	}
	return doc
}

// annotateUnit appends the unit text to p, wrapping occurrences in position
// order. An occurrence whose surface is not found after the previous one is
// left as plain text.
func annotateUnit(p *html.Node, u lexicon.Unit, occs []lexicon.Occurrence, toLemma map[string]string) {
	sort.Slice(occs, func(i, j int) bool { return occs[i].Position < occs[j].Position })

	rest := u.Text
	for _, o := range occs {
		surface := o.Original
		if surface == "" {
			surface = o.Word
		}
		i := strings.Index(rest, surface)
		if surface == "" || i < 0 {
			continue
		}
		if i > 0 {
			p.AppendChild(textNode(rest[:i]))
		}
		lemma := o.Lemma
		if lemma == "" {
			lemma = toLemma[o.Word]
		}
		span := element(atom.Span,
			html.Attribute{Key: "class", Val: "word"},
			html.Attribute{Key: "data-word", Val: o.Word},
			html.Attribute{Key: "data-lemma", Val: lemma},
			html.Attribute{Key: "data-sentence-id", Val: u.ID},
			html.Attribute{Key: "data-position", Val: strconv.Itoa(o.Position)},
			html.Attribute{Key: "data-file", Val: u.File},
		)
		span.AppendChild(textNode(surface))
		p.AppendChild(span)
		rest = rest[i+len(surface):]
	}
	if rest != "" {
		p.AppendChild(textNode(rest))
	}
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func textNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

func writeHTML(path string, doc *html.Node) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := html.Render(f, doc); err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	return nil
}
