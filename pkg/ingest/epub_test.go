package ingest

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const epubContainerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const epubPackageXML = `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Cuentos</dc:title>
    <dc:language> es </dc:language>
  </metadata>
  <manifest>
    <item id="estilo" href="css/estilo.css" media-type="text/css"/>
    <item id="c1" href="texto/cap%2001.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="texto/cap02.xhtml" media-type="application/xhtml+xml"/>
    <item id="portada" href="portada.jpg" media-type="image/jpeg"/>
  </manifest>
  <spine>
    <itemref idref="c2"/>
    <itemref idref="portada"/>
    <itemref idref="c1"/>
    <itemref idref="desconocido"/>
  </spine>
</package>`

func writeEPUB(t *testing.T, files map[string]string) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "libro.epub")
	f, err := os.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for path, body := range files {
		w, err := zw.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return name
}

func TestReadEPUBFollowsSpine(t *testing.T) {
	name := writeEPUB(t, map[string]string{
		"mimetype":                 "application/epub+zip",
		"META-INF/container.xml":   epubContainerXML,
		"OEBPS/content.opf":        epubPackageXML,
		"OEBPS/css/estilo.css":     "p {}",
		"OEBPS/texto/cap 01.xhtml": "<html><body><p>El perro corre.</p></body></html>",
		"OEBPS/texto/cap02.xhtml":  "<html><body><p>Seguía corriendo.</p><p>Fin.</p></body></html>",
	})

	docs, err := ReadEPUB(name)
	if err != nil {
		t.Fatalf("read epub: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %+v", docs)
	}
	if docs[0].File != "cap02.xhtml" || docs[1].File != "cap 01.xhtml" {
		t.Errorf("documents out of spine order: %q, %q", docs[0].File, docs[1].File)
	}
	if docs[0].Language != "es" || docs[0].Title != "cap02" || docs[0].Plain {
		t.Errorf("unexpected document %+v", docs[0])
	}

	segs, err := Split(docs[0], ByParagraph)
	if err != nil {
		t.Fatal(err)
	}
	if len(segs) != 2 || segs[1].ID != "cap02.xhtml_1" || segs[1].Text != "Fin." {
		t.Errorf("unexpected units %+v", segs)
	}
}

func TestReadEPUBWithoutDocuments(t *testing.T) {
	name := writeEPUB(t, map[string]string{
		"META-INF/container.xml": epubContainerXML,
		"OEBPS/content.opf": `<package><manifest>
			<item id="portada" href="portada.jpg" media-type="image/jpeg"/>
		</manifest><spine><itemref idref="portada"/></spine></package>`,
	})
	if _, err := ReadEPUB(name); !errors.Is(err, ErrNoSpine) {
		t.Fatalf("expected ErrNoSpine, got %v", err)
	}
}

func TestReadEPUBMissingChapter(t *testing.T) {
	name := writeEPUB(t, map[string]string{
		"META-INF/container.xml": epubContainerXML,
		"OEBPS/content.opf":      epubPackageXML,
	})
	if _, err := ReadEPUB(name); err == nil {
		t.Fatal("expected an error for a chapter missing from the archive")
	}
}

func TestReadPathExpandsEPUB(t *testing.T) {
	name := writeEPUB(t, map[string]string{
		"META-INF/container.xml":   epubContainerXML,
		"OEBPS/content.opf":        epubPackageXML,
		"OEBPS/texto/cap 01.xhtml": "<p>Uno.</p>",
		"OEBPS/texto/cap02.xhtml":  "<p>Dos.</p>",
	})
	if err := os.WriteFile(filepath.Join(filepath.Dir(name), "notas.txt"), []byte("Hola."), 0o644); err != nil {
		t.Fatal(err)
	}

	docs, err := ReadPath(filepath.Dir(name))
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 3 || docs[0].File != "cap02.xhtml" || docs[2].File != "notas.txt" {
		t.Fatalf("unexpected documents %+v", docs)
	}
}
