package analyze

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EnsureLemmaTable makes sure a lemma table exists at path, downloading it
// from url when it does not. Gzip files are decompressed; tarballs yield
// their first .txt, .tsv or .json member.
func EnsureLemmaTable(ctx context.Context, client *http.Client, path, url string, log *slog.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if url == "" {
		return fmt.Errorf("lemma table %s missing and no download url set", path)
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	log.Info("downloading lemma table", slog.String("url", url), slog.String("path", path))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "lexireader-cli")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download lemma table: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download lemma table: %s", resp.Status)
	}

	body, err := unpack(resp.Body, url)
	if err != nil {
		return err
	}

	// Write next to the destination so the rename stays on one filesystem.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".lemmas-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("write lemma table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func unpack(r io.Reader, url string) (io.Reader, error) {
	name := strings.ToLower(url)
	switch {
	case strings.HasSuffix(name, ".tgz"), strings.HasSuffix(name, ".tar.gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		tr := tar.NewReader(gz)
		for {
			hdr, err := tr.Next()
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("no lemma table found in archive")
			}
			if err != nil {
				return nil, fmt.Errorf("read tar archive: %w", err)
			}
			if hdr.Typeflag != tar.TypeReg {
				continue
			}
			switch strings.ToLower(filepath.Ext(hdr.Name)) {
			case ".txt", ".tsv", ".json":
				return tr, nil
			}
		}
	case strings.HasSuffix(name, ".gz"):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return gz, nil
	default:
		return r, nil
	}
}
