package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"

	"github.com/japaniel/lexireader/pkg/analyze"
)

// MaxBodySize caps how much of a fetched page is read.
const MaxBodySize = 10 * 1024 * 1024

// ErrTooLarge is returned for pages over MaxBodySize.
var ErrTooLarge = errors.New("document exceeds size limit")

// Fetcher downloads web articles and reduces them to their readable content.
type Fetcher struct {
	HTTP *http.Client
}

// NewFetcher returns a Fetcher with a 30 second timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{HTTP: &http.Client{Timeout: 30 * time.Second}}
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9,en;q=0.8")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// Fetch downloads rawURL and returns its article as a document named file.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, file string) (Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Document{}, fmt.Errorf("parse url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Document{}, err
	}
	setBrowserHeaders(req)

	resp, err := f.HTTP.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	if resp.ContentLength > MaxBodySize {
		return Document{}, ErrTooLarge
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return Document{}, fmt.Errorf("read body: %w", err)
	}
	if len(body) > MaxBodySize {
		return Document{}, ErrTooLarge
	}
	return Readable(body, u, file)
}

// FetchAll downloads urls with at most limit requests in flight and returns
// the documents in the order of urls. name maps each url to its file name.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string, limit int, name func(string) string) ([]Document, error) {
	docs := make([]Document, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, raw := range urls {
		g.Go(func() error {
			doc, err := f.Fetch(gctx, raw, name(raw))
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Readable extracts the main article of an HTML page. Ruby annotations are
// dropped first so readings do not end up in the text.
func Readable(page []byte, pageURL *url.URL, file string) (Document, error) {
	article, err := readability.FromReader(bytes.NewReader(analyze.SanitizeRuby(page)), pageURL)
	if err != nil {
		return Document{}, fmt.Errorf("extract article: %w", err)
	}
	return Document{
		File:  file,
		Title: article.Title,
		Body:  []byte(article.Content),
	}, nil
}

// ReadFile loads a local document. .txt files are plain text; anything else
// is parsed as XHTML. The file name becomes the document's file.
func ReadFile(path string) (Document, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	name := filepath.Base(path)
	return Document{
		File:  name,
		Title: strings.TrimSuffix(name, filepath.Ext(name)),
		Body:  body,
		Plain: strings.EqualFold(filepath.Ext(name), ".txt"),
	}, nil
}

// ReadPath loads the documents at p: every document of a directory, the
// spine of an .epub, or a single file.
func ReadPath(p string) ([]Document, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return ReadDir(p)
	}
	if strings.EqualFold(filepath.Ext(p), ".epub") {
		return ReadEPUB(p)
	}
	doc, err := ReadFile(p)
	if err != nil {
		return nil, err
	}
	return []Document{doc}, nil
}

// ReadDir loads every .xhtml, .html, .txt and .epub file in dir, sorted by
// name. EPUBs contribute their documents in reading order.
func ReadDir(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var docs []Document
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := filepath.Join(dir, e.Name())
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".xhtml", ".html", ".htm", ".txt":
		case ".epub":
			book, err := ReadEPUB(name)
			if err != nil {
				return nil, err
			}
			docs = append(docs, book...)
			continue
		default:
			continue
		}
		doc, err := ReadFile(name)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
