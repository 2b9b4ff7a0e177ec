package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/japaniel/lexireader/pkg/annotate"
	"github.com/japaniel/lexireader/pkg/clipboard"
	"github.com/japaniel/lexireader/pkg/highlight"
)

func runLookup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	configPath := configFlag(fs)
	unit := fs.String("unit", "", "unit the word was selected in; it is left out of the examples")
	asJSON := fs.Bool("json", false, "print the panel as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: lexireader lookup [flags] <word>")
	}
	word := strings.ToLower(fs.Arg(0))

	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	idx, err := e.loadIndex(ctx)
	if err != nil {
		return err
	}
	if !idx.Known(word) {
		return fmt.Errorf("%q does not occur in the corpus", word)
	}

	b := annotate.NewBuilder(idx, highlight.New(nil), e.cfg.Panel.Annotate(), e.log)
	panel := b.Build(word, "", *unit)
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(panel)
	}
	printPanel(os.Stdout, panel)
	return nil
}

func printPanel(w io.Writer, p annotate.Panel) {
	fmt.Fprintf(w, "%s → %s  [%s]\n", p.Word, p.Lemma, p.Tier)
	fmt.Fprintf(w, "Formas: %s\n", strings.Join(p.Forms, ", "))
	fmt.Fprintf(w, "Frecuencia: %d (palabra), %d (familia)\n", p.WordFrequency, p.FamilyFrequency)
	section := func(title string, examples []annotate.Example) {
		if len(examples) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s:\n", title)
		for _, ex := range examples {
			fmt.Fprintf(w, "%s%s  (%s)\n", annotate.Bullet, highlight.Markup(ex.Fragments, "*", "*"), ex.UnitID)
		}
	}
	section("Ejemplos de la familia", p.FamilyExamples)
	section("Ejemplos de esta forma", p.FormExamples)
}

func runPrompt(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("prompt", flag.ContinueOnError)
	configPath := configFlag(fs)
	copyPrompt := fs.Bool("copy", false, "copy the prompt to the clipboard instead of printing it")
	examples := fs.Bool("examples", false, "print (or copy) every example of the lemma instead of the prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: lexireader prompt [flags] <lemma>")
	}
	lemma := strings.ToLower(fs.Arg(0))

	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	idx, err := e.loadIndex(ctx)
	if err != nil {
		return err
	}
	b := annotate.NewBuilder(idx, highlight.New(nil), e.cfg.Panel.Annotate(), e.log)

	if *copyPrompt {
		sink := clipboard.Default(os.Stdout)
		var ok bool
		if *examples {
			ok = b.CopyAllExamples(ctx, sink, lemma, "")
		} else {
			ok = b.CopyPrompt(ctx, sink, lemma)
		}
		if !ok {
			return fmt.Errorf("could not copy to the clipboard")
		}
		fmt.Fprintln(os.Stderr, "Copiado.")
		return nil
	}

	if *examples {
		fmt.Println(annotate.ExportExamples(b.AllExamples(lemma, "")))
		return nil
	}
	fmt.Println(b.Prompt(lemma))
	return nil
}
