// Package stream turns a chat reply arriving in chunks into annotated,
// interactive text and tracks the lifecycle of each conversational turn.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/japaniel/lexireader/pkg/chat"
)

// maxLineSize caps one chunk line. Longer lines are dropped as malformed.
const maxLineSize = 1 << 20

// Event is one decoded chunk of a reply.
type Event struct {
	Content string
	Done    bool
}

type payload struct {
	Message *struct {
		Content *string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Decoder reads "data: " prefixed lines and yields events. Lines without the
// prefix and payloads of any other shape are skipped.
type Decoder struct {
	r       *bufio.Reader
	line    []byte
	log     *slog.Logger
	skipped int
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024), log: slog.Default()}
}

// WithLogger sets the logger used to report skipped chunks.
func (d *Decoder) WithLogger(log *slog.Logger) *Decoder {
	if log != nil {
		d.log = log
	}
	return d
}

// Skipped returns the number of malformed chunks dropped so far.
func (d *Decoder) Skipped() int { return d.skipped }

// Next returns the next event, or io.EOF when the stream ends.
func (d *Decoder) Next() (Event, error) {
	prefix := []byte(chat.DataPrefix)
	for {
		line, size, err := d.readLine()
		if err != nil {
			return Event{}, err
		}
		if size > maxLineSize {
			d.skip("line too long", size)
			continue
		}
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			continue
		}
		if !bytes.HasPrefix(line, prefix) {
			d.skip("missing data prefix", len(line))
			continue
		}
		ev, ok := decodePayload(line[len(prefix):])
		if !ok {
			d.skip("unrecognized payload", len(line))
			continue
		}
		return ev, nil
	}
}

// readLine returns the next line without its newline and the line's full
// size. Lines over maxLineSize are read to their end but not kept.
func (d *Decoder) readLine() ([]byte, int, error) {
	d.line = d.line[:0]
	size := 0
	for {
		chunk, err := d.r.ReadSlice('\n')
		size += len(chunk)
		if size <= maxLineSize+1 {
			d.line = append(d.line, chunk...)
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if size == 0 {
				return nil, 0, io.EOF
			}
			return d.line, size, nil
		case err != nil:
			return nil, 0, err
		}
		d.line = bytes.TrimSuffix(d.line, []byte("\n"))
		return d.line, size - 1, nil
	}
}

func (d *Decoder) skip(reason string, size int) {
	d.skipped++
	d.log.Debug("skipping stream chunk", slog.String("reason", reason), slog.Int("bytes", size))
}

func decodePayload(b []byte) (Event, bool) {
	var p payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Event{}, false
	}
	var ev Event
	if p.Message != nil && p.Message.Content != nil {
		ev.Content = *p.Message.Content
	}
	ev.Done = p.Done
	if !ev.Done && (p.Message == nil || p.Message.Content == nil) {
		return Event{}, false
	}
	return ev, true
}
