package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/japaniel/lexireader/pkg/config"
	"github.com/japaniel/lexireader/pkg/db"
	"github.com/japaniel/lexireader/pkg/lexicon"
	"github.com/japaniel/lexireader/pkg/logging"
)

const usage = `usage: lexireader <command> [flags]

commands:
  build   index XHTML/text files and web articles into the corpus
  import  load JSON index tables into the corpus database
  lookup  show the word panel for a word
  prompt  print (or copy) the discovery prompt for a lemma
  serve   run the tutor chat server
  chat    talk to the tutor about a word

Run "lexireader <command> -h" for the flags of a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "build":
		err = runBuild(ctx, args)
	case "import":
		err = runImport(ctx, args)
	case "lookup":
		err = runLookup(ctx, args)
	case "prompt":
		err = runPrompt(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	case "chat":
		err = runChat(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "lexireader %s: %v\n", os.Args[1], err)
		stop()
		os.Exit(1)
	}
}

// env is what every command starts from.
type env struct {
	cfg *config.Config
	log *slog.Logger
}

// configFlag registers -config on fs.
func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "path to the YAML config (default $CONFIG_PATH or ./config.yaml)")
}

func setup(configPath string) (*env, error) {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: logging.NewLogger(cfg.Log)}, nil
}

// corpus returns where the index is loaded from: the database when one
// exists, the JSON tables otherwise. The returned func releases the database.
func (e *env) corpus() (lexicon.Source, func(), error) {
	if _, err := os.Stat(e.cfg.Data.DBPath); err == nil {
		conn, err := db.Open(e.cfg.Data.DBPath)
		if err != nil {
			return nil, nil, err
		}
		e.log.Debug("loading corpus from database", slog.String("path", e.cfg.Data.DBPath))
		return db.CorpusSource{DB: conn}, func() { conn.Close() }, nil
	}
	e.log.Debug("loading corpus from tables", slog.String("dir", e.cfg.Data.Dir))
	return lexicon.DirSource(e.cfg.Data.Dir), func() {}, nil
}

// loadIndex loads the corpus synchronously.
func (e *env) loadIndex(ctx context.Context) (*lexicon.Index, error) {
	src, closeSrc, err := e.corpus()
	if err != nil {
		return nil, err
	}
	defer closeSrc()
	return lexicon.Load(ctx, src, e.log), nil
}
