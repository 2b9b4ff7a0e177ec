package ingest

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// ErrNoSpine is returned for EPUBs whose package lists no readable documents.
var ErrNoSpine = errors.New("epub has no documents in its spine")

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Title    string `xml:"metadata>title"`
	Language string `xml:"metadata>language"`
	Manifest []struct {
		ID        string `xml:"id,attr"`
		Href      string `xml:"href,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

// ReadEPUB returns the XHTML documents of an EPUB in reading (spine) order.
// Each document is named after its base file name, which prefixes its unit
// ids. Images, styles and navigation files are left out.
func ReadEPUB(filename string) ([]Document, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	defer zr.Close()
	return readEPUB(&zr.Reader)
}

func readEPUB(zr *zip.Reader) ([]Document, error) {
	var container epubContainer
	if err := readXML(zr, "META-INF/container.xml", &container); err != nil {
		return nil, err
	}
	if len(container.Rootfiles) == 0 || container.Rootfiles[0].FullPath == "" {
		return nil, errors.New("epub container names no package file")
	}
	opfPath := container.Rootfiles[0].FullPath

	var pkg epubPackage
	if err := readXML(zr, opfPath, &pkg); err != nil {
		return nil, err
	}

	type item struct{ href, mediaType string }
	manifest := make(map[string]item, len(pkg.Manifest))
	for _, it := range pkg.Manifest {
		manifest[it.ID] = item{href: it.Href, mediaType: it.MediaType}
	}

	base := path.Dir(opfPath)
	var docs []Document
	for _, ref := range pkg.Spine {
		it, ok := manifest[ref.IDRef]
		if !ok {
			continue
		}
		switch it.mediaType {
		case "application/xhtml+xml", "text/html":
		default:
			continue
		}
		href := it.href
		if u, err := url.PathUnescape(href); err == nil {
			href = u
		}
		body, err := readZipFile(zr, path.Join(base, href))
		if err != nil {
			return nil, err
		}
		file := path.Base(href)
		docs = append(docs, Document{
			File:     file,
			Title:    strings.TrimSuffix(file, path.Ext(file)),
			Language: strings.TrimSpace(pkg.Language),
			Body:     body,
		})
	}
	if len(docs) == 0 {
		return nil, ErrNoSpine
	}
	return docs, nil
}

func readXML(zr *zip.Reader, name string, dst any) error {
	data, err := readZipFile(zr, name)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("epub entry %s: %w", name, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
