package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/japaniel/lexireader/pkg/analyze"
	"github.com/japaniel/lexireader/pkg/config"
	"github.com/japaniel/lexireader/pkg/db"
	"github.com/japaniel/lexireader/pkg/ingest"
	"github.com/japaniel/lexireader/pkg/lexicon"
)

func runBuild(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	configPath := configFlag(fs)
	out := fs.String("out", "", "directory to export the JSON tables to (default data.dir)")
	mode := fs.String("mode", "", "unit granularity: paragraph or sentence (default ingest.mode)")
	htmlDir := fs.String("html", "", "also write annotated reading documents to this directory")
	var urls []string
	fs.Func("url", "web article to fetch and index (repeatable)", func(s string) error {
		urls = append(urls, s)
		return nil
	})
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: lexireader build [flags] <file, dir or epub>...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 && len(urls) == 0 {
		fs.Usage()
		return fmt.Errorf("nothing to build")
	}

	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	if *mode != "" {
		e.cfg.Ingest.Mode = *mode
	}
	if *out == "" {
		*out = e.cfg.Data.Dir
	}

	analyzer, err := newAnalyzer(ctx, e.cfg.Ingest, e.log)
	if err != nil {
		return err
	}

	var docs []ingest.Document
	for _, path := range fs.Args() {
		found, err := ingest.ReadPath(path)
		if err != nil {
			return err
		}
		docs = append(docs, found...)
	}

	if len(urls) > 0 {
		fetched, err := ingest.NewFetcher().FetchAll(ctx, urls, e.cfg.Ingest.Workers, articleName)
		if err != nil {
			return err
		}
		for i, doc := range fetched {
			e.log.Info("fetched article", slog.String("url", urls[i]), slog.String("title", doc.Title))
		}
		docs = append(docs, fetched...)
	}

	conn, err := db.Open(e.cfg.Data.DBPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	b := ingest.NewBuilder(conn, analyzer)
	b.Mode = ingest.Mode(e.cfg.Ingest.Mode)
	b.Workers = e.cfg.Ingest.Workers
	b.BatchSize = e.cfg.Ingest.BatchSize
	b.Logger = e.log
	b.OnProgress = func(file string, current, total int) {
		if current == total || current%500 == 0 {
			e.log.Info("progress", slog.String("file", file), slog.Int("units", current), slog.Int("total", total))
		}
	}

	rep, err := b.Build(ctx, docs)
	if err != nil {
		return err
	}
	tables, err := ingest.Export(ctx, conn, *out)
	if err != nil {
		return err
	}
	if *htmlDir != "" {
		n, err := ingest.WriteDocuments(*htmlDir, tables)
		if err != nil {
			return err
		}
		e.log.Info("wrote reading documents", slog.String("dir", *htmlDir), slog.Int("documents", n))
	}
	st := lexicon.New(tables).Stats()
	fmt.Printf("Stored %d units and %d occurrences from %d documents.\n", rep.Units, rep.Occurrences, rep.Documents)
	fmt.Printf("Corpus: %d words, %d lemmas, %d units (tables in %s).\n", st.Words, st.Lemmas, st.Units, *out)
	return nil
}

func newAnalyzer(ctx context.Context, cfg config.IngestConfig, log *slog.Logger) (analyze.Analyzer, error) {
	if cfg.Analyzer == "kagome" {
		return analyze.NewKagomeAnalyzer()
	}
	if cfg.LemmaTable == "" {
		log.Warn("no lemma table configured, every word is its own lemma")
		return analyze.NewTableAnalyzer(nil), nil
	}
	if err := analyze.EnsureLemmaTable(ctx, nil, cfg.LemmaTable, cfg.LemmaTableURL, log); err != nil {
		return nil, err
	}
	load := analyze.LoadLemmaTable
	if cfg.LemmaFirst {
		load = analyze.LoadLemmaList
	}
	lemmas, err := load(cfg.LemmaTable)
	if err != nil {
		return nil, err
	}
	log.Info("loaded lemma table", slog.String("path", cfg.LemmaTable), slog.Int("entries", len(lemmas)))
	return analyze.NewTableAnalyzer(lemmas), nil
}

// articleName turns a URL into a file name usable in unit ids.
func articleName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.NewReplacer("/", "_", ":", "_").Replace(raw)
	}
	name := u.Host + strings.TrimSuffix(u.Path, "/")
	return strings.NewReplacer("/", "_", ":", "_").Replace(name)
}

func runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	configPath := configFlag(fs)
	dir := fs.String("dir", "", "directory holding the JSON tables (default data.dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	if *dir == "" {
		*dir = e.cfg.Data.Dir
	}

	tables, err := lexicon.ReadDir(*dir)
	if err != nil {
		return err
	}
	conn, err := db.Open(e.cfg.Data.DBPath)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.ImportTables(ctx, conn, tables); err != nil {
		return err
	}
	st := lexicon.New(tables).Stats()
	fmt.Printf("Imported %d words, %d lemmas and %d units into %s.\n", st.Words, st.Lemmas, st.Units, e.cfg.Data.DBPath)
	return nil
}
