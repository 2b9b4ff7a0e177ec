package analyze

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

const lemmaList = "correr\tcorre\ncorrer\tcorriendo\nseguir\tseguía\n"

func gzipped(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func tarball(t *testing.T, name string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: "README.md", Mode: 0o644, Size: 2, Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	tw.Write([]byte("hi"))
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(data)), Typeflag: tar.TypeReg}); err != nil {
		t.Fatal(err)
	}
	tw.Write(data)
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return gzipped(t, buf.Bytes())
}

func TestEnsureLemmaTableDownloads(t *testing.T) {
	files := map[string][]byte{
		"/lemmatization-es.txt":    []byte(lemmaList),
		"/lemmatization-es.txt.gz": gzipped(t, []byte(lemmaList)),
		"/lemmatization-es.tgz":    tarball(t, "lists/lemmatization-es.txt", []byte(lemmaList)),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	defer srv.Close()

	for urlPath := range files {
		t.Run(urlPath, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "lemmas.tsv")
			if err := EnsureLemmaTable(context.Background(), srv.Client(), dest, srv.URL+urlPath, nil); err != nil {
				t.Fatalf("ensure: %v", err)
			}
			table, err := LoadLemmaList(dest)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if table["corriendo"] != "correr" || table["seguía"] != "seguir" || len(table) != 3 {
				t.Fatalf("unexpected table %v", table)
			}
		})
	}
}

func TestEnsureLemmaTableKeepsExistingFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "lemmas.tsv")
	if err := os.WriteFile(dest, []byte("corre\tcorrer\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// No url: an existing file needs no download.
	if err := EnsureLemmaTable(context.Background(), nil, dest, "", nil); err != nil {
		t.Fatalf("EnsureLemmaTable failed with local file: %v", err)
	}
}

func TestEnsureLemmaTableMissingFails(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "lemmas.tsv")
	if err := EnsureLemmaTable(context.Background(), srv.Client(), dest, srv.URL+"/nope.txt", nil); err == nil {
		t.Fatal("expected error for 404")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("no file should be left behind, stat: %v", err)
	}
}

func TestLoadLemmaListKeepsFirstLemma(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	if err := os.WriteFile(path, []byte("\ufeffir\tfue\nser\tfue\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	table, err := LoadLemmaList(path)
	if err != nil {
		t.Fatal(err)
	}
	if table["fue"] != "ir" {
		t.Fatalf("expected first listed lemma, got %q", table["fue"])
	}
}
