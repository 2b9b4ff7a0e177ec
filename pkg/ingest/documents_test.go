package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/japaniel/lexireader/pkg/lexicon"
)

func TestWriteDocumentsWrapsOccurrences(t *testing.T) {
	tables := lexicon.Tables{
		WordIndex: map[string][]lexicon.Occurrence{
			"el":    {{Word: "el", UnitID: "cap01_0", Position: 0, Original: "El", Lemma: "el"}},
			"corre": {{Word: "corre", UnitID: "cap01_0", Position: 1, Original: "corre"}},
		},
		WordToLemma: map[string]string{"corre": "correr"},
		Units: map[string]lexicon.Unit{
			"cap01_0": {Text: "El perro, corre.", File: "cap01", Paragraph: 0, Classes: []string{"centrado"}},
		},
	}
	dir := t.TempDir()
	n, err := WriteDocuments(dir, tables)
	if err != nil || n != 1 {
		t.Fatalf("write documents: %d, %v", n, err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "cap01.html"))
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	got := string(raw)
	want := `<p id="cap01_0" class="centrado">` +
		`<span class="word" data-word="el" data-lemma="el" data-sentence-id="cap01_0" data-position="0" data-file="cap01">El</span>` +
		` perro, ` +
		`<span class="word" data-word="corre" data-lemma="correr" data-sentence-id="cap01_0" data-position="1" data-file="cap01">corre</span>` +
		`.</p>`
	if !strings.Contains(got, want) {
		t.Fatalf("unexpected document:\n%s", got)
	}
}

func TestWriteDocumentsFromBuild(t *testing.T) {
	conn := setupDB(t)
	ctx := context.Background()
	if _, err := NewBuilder(conn, spanishAnalyzer()).Build(ctx, []Document{chapterDoc(t)}); err != nil {
		t.Fatal(err)
	}
	tables, err := Export(ctx, conn, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	if _, err := WriteDocuments(dir, tables); err != nil {
		t.Fatalf("write documents: %v", err)
	}
	f, err := os.Open(filepath.Join(dir, "cap01.xhtml"))
	if err != nil {
		t.Fatalf("open document: %v", err)
	}
	defer f.Close()
	doc, err := html.Parse(f)
	if err != nil {
		t.Fatalf("parse document: %v", err)
	}

	var paras []string
	spans := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			paras = append(paras, attr(n, "id")+"="+innerText(n))
		}
		if n.Type == html.ElementNode && n.Data == "span" && attr(n, "class") == "word" {
			spans++
			if attr(n, "data-file") != "cap01.xhtml" {
				t.Errorf("span without file: %v", n.Attr)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	want := []string{
		"cap01.xhtml_0=El perro corre por el parque.",
		"cap01.xhtml_2=Seguía corriendo sin parar. ¿Quién lo detendría?",
	}
	if strings.Join(paras, "|") != strings.Join(want, "|") {
		t.Errorf("paragraphs = %q", paras)
	}
	occs := 0
	for _, list := range tables.WordIndex {
		occs += len(list)
	}
	if spans != occs {
		t.Errorf("wrapped %d of %d occurrences", spans, occs)
	}
}

func TestDocumentName(t *testing.T) {
	for in, want := range map[string]string{
		"cap01.xhtml":        "cap01.xhtml",
		"intro.HTM":          "intro.HTM",
		"notas.txt":          "notas.txt.html",
		"example.com_a_b":    "example.com_a_b.html",
		"../fuera/cap.xhtml": "cap.xhtml",
	} {
		if got := documentName(in); got != want {
			t.Errorf("documentName(%q) = %q, want %q", in, got, want)
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
