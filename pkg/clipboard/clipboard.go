// Package clipboard delivers exported text (discovery prompts, example lists)
// to the user's clipboard, falling back to other sinks when the system
// clipboard is unavailable.
package clipboard

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/atotto/clipboard"
)

// ErrUnavailable is returned when a sink cannot be used on this host.
var ErrUnavailable = errors.New("clipboard unavailable")

// Sink accepts UTF-8 text.
type Sink interface {
	Write(ctx context.Context, text string) error
}

// System writes to the operating system clipboard.
type System struct{}

// Write implements Sink.
func (System) Write(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if clipboard.Unsupported {
		return ErrUnavailable
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("system clipboard: %w", err)
	}
	return nil
}

// OSC52 asks the terminal to set its clipboard using the OSC 52 escape
// sequence. It works over SSH where no local clipboard tool exists.
type OSC52 struct {
	W io.Writer
}

// Write implements Sink.
func (o OSC52) Write(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.W == nil {
		return ErrUnavailable
	}
	seq := "\x1b]52;c;" + base64.StdEncoding.EncodeToString([]byte(text)) + "\a"
	if _, err := io.WriteString(o.W, seq); err != nil {
		return fmt.Errorf("osc52: %w", err)
	}
	return nil
}

// File writes the text to a file, replacing its contents.
type File struct {
	Path string
}

// Write implements Sink.
func (f File) Write(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.Path == "" {
		return ErrUnavailable
	}
	return os.WriteFile(f.Path, []byte(text), 0o644)
}

type chain struct {
	sinks []Sink
}

// WithFallback returns a sink that tries each sink in order and succeeds on
// the first one that accepts the text.
func WithFallback(primary Sink, fallbacks ...Sink) Sink {
	return &chain{sinks: append([]Sink{primary}, fallbacks...)}
}

func (c *chain) Write(ctx context.Context, text string) error {
	var errs []error
	for _, s := range c.sinks {
		if s == nil {
			continue
		}
		err := s.Write(ctx, text)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return ErrUnavailable
	}
	return errors.Join(errs...)
}

// Copy writes text to sink and reports whether it succeeded. Failures are
// logged, not returned; callers show a transient notice based on the result.
func Copy(ctx context.Context, sink Sink, text string, log *slog.Logger) bool {
	if sink == nil {
		return false
	}
	if err := sink.Write(ctx, text); err != nil {
		if log == nil {
			log = slog.Default()
		}
		log.Warn("clipboard write failed", slog.Any("error", err))
		return false
	}
	return true
}

// Default returns the system clipboard with an OSC 52 fallback on w.
func Default(w io.Writer) Sink {
	return WithFallback(System{}, OSC52{W: w})
}
