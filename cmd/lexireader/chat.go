package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/japaniel/lexireader/pkg/chat"
	"github.com/japaniel/lexireader/pkg/clipboard"
	"github.com/japaniel/lexireader/pkg/highlight"
	"github.com/japaniel/lexireader/pkg/lexicon"
	"github.com/japaniel/lexireader/pkg/session"
	"github.com/japaniel/lexireader/pkg/stream"
)

const chatHelp = `/palabra <word>  switch to another word
/copiar          copy the discovery prompt
/ejemplos        copy every example of the word
/cerrar          close the dialog and keep the word
/salir           quit
`

// printer writes a streamed reply as it grows.
type printer struct {
	w       io.Writer
	printed int
}

func (p *printer) state(s stream.State) {
	if s == stream.Sending {
		p.printed = 0
	}
}

func (p *printer) render(spans []stream.Span) {
	text := stream.Plain(spans)
	if len(text) > p.printed {
		fmt.Fprint(p.w, text[p.printed:])
		p.printed = len(text)
	}
}

func (p *printer) complete(reply chat.Message) {
	fmt.Fprintln(p.w)
}

func (p *printer) notice(msg string, err error) {
	fmt.Fprintf(p.w, "\n[%s]\n", msg)
}

func runChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	configPath := configFlag(fs)
	unit := fs.String("unit", "", "unit the word was selected in")
	serverURL := fs.String("server", "", "chat server URL (default stream.server_url)")
	model := fs.String("model", "", "model to ask for (default: the server's)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: lexireader chat [flags] <word>")
	}

	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	if *serverURL != "" {
		e.cfg.Stream.ServerURL = *serverURL
	}
	if *model != "" {
		e.cfg.Stream.Model = *model
	}

	src, closeSrc, err := e.corpus()
	if err != nil {
		return err
	}
	defer closeSrc()
	loader := lexicon.NewLoader(e.log)
	loader.Start(ctx, src)

	out := &printer{w: os.Stdout}
	reader := session.New(loader, chat.NewClient(e.cfg.Stream.ServerURL), session.Options{
		Highlighter: highlight.New(nil),
		Panel:       e.cfg.Panel.Annotate(),
		Dialog: stream.Options{
			Model:       e.cfg.Stream.Model,
			IdleTimeout: e.cfg.Stream.IdleTimeout,
			Hooks: stream.Hooks{
				OnState:    out.state,
				OnRender:   out.render,
				OnComplete: out.complete,
				OnError:    out.notice,
			},
		},
		Clipboard: clipboard.Default(os.Stdout),
		Logger:    e.log,
	})
	if err := reader.Wire(ctx); err != nil {
		return err
	}
	defer reader.ClosePanel()

	open := func(word string) error {
		panel, err := reader.Select(strings.ToLower(word), "", *unit)
		if err != nil {
			return fmt.Errorf("%q: %w", word, err)
		}
		printPanel(os.Stdout, panel)
		fmt.Printf("\n> %s\n", stream.Opener(panel.Word))
		_, err = reader.OpenDialog(ctx)
		return err
	}
	if err := open(fs.Arg(0)); err != nil && !errors.Is(err, stream.ErrSuperseded) {
		if errors.Is(err, session.ErrUnknownWord) {
			return err
		}
		e.log.Warn("opening turn failed", slog.Any("error", err))
	}

	fmt.Print("\n" + chatHelp)
	closed := false
	in := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		switch {
		case line == "":
			continue
		case line == "/salir":
			return nil
		case line == "/cerrar":
			reader.CloseDialog()
			closed = true
			fmt.Println("Diálogo cerrado. Escribe para volver a abrirlo.")
			continue
		case line == "/copiar":
			reportCopy(reader.CopyPrompt(ctx))
			continue
		case line == "/ejemplos":
			reportCopy(reader.CopyAllExamples(ctx))
			continue
		case strings.HasPrefix(line, "/palabra "):
			if err := open(strings.TrimSpace(strings.TrimPrefix(line, "/palabra "))); err != nil {
				fmt.Println(err)
			}
			closed = false
			continue
		case strings.HasPrefix(line, "/"):
			fmt.Print(chatHelp)
			continue
		}

		if closed {
			// Reopening the same word keeps the conversation.
			if _, err := reader.OpenDialog(ctx); err != nil {
				fmt.Println(err)
				continue
			}
			closed = false
		}
		if _, err := reader.Send(ctx, line); err != nil {
			switch {
			case errors.Is(err, stream.ErrTurnInFlight):
				fmt.Println("Espera a que termine la respuesta.")
			case errors.Is(err, stream.ErrNoWord):
				if sel, ok := reader.Selection(); ok {
					_ = open(sel.Word)
				}
			case ctx.Err() != nil:
				return nil
			}
		}
	}
}

func reportCopy(ok bool) {
	if ok {
		fmt.Println("Copiado.")
		return
	}
	fmt.Println("No se pudo copiar.")
}
