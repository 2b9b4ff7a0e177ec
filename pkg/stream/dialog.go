package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/japaniel/lexireader/pkg/chat"
)

// Transport opens the reply stream for one request. *chat.Client satisfies it.
type Transport interface {
	Stream(ctx context.Context, word string, req chat.Request) (io.ReadCloser, error)
}

// ErrorMessage is appended to the transcript when a turn fails.
const ErrorMessage = "Lo siento, ha ocurrido un error al conectar con el asistente. Inténtalo de nuevo."

// RoleNotice marks transcript entries that never reach the conversation.
const RoleNotice = "notice"

// DefaultIdleTimeout bounds the wait for the reply to start and the silence
// between two chunks.
const DefaultIdleTimeout = 60 * time.Second

const openerTemplate = `Hola, quiero entender la palabra "%s".`

var (
	ErrTurnInFlight = errors.New("a reply is still in flight")
	ErrNoWord       = errors.New("dialog has no word")
	ErrIncomplete   = errors.New("stream ended before the final chunk")
	ErrIdleTimeout  = errors.New("stream stalled past the idle timeout")
	ErrSuperseded   = errors.New("turn was closed or replaced")
)

// Opener returns the scripted first message for a freshly opened dialog.
func Opener(word string) string {
	return fmt.Sprintf(openerTemplate, word)
}

// Hooks receive dialog updates. They run with the dialog locked and must not
// call back into it. Nil hooks are skipped.
type Hooks struct {
	OnState    func(State)
	OnRender   func(spans []Span)
	OnComplete func(reply chat.Message)
	OnError    func(notice string, err error)
}

// Options configures a Dialog.
type Options struct {
	Model string
	// IdleTimeout of zero uses DefaultIdleTimeout; negative disables it.
	IdleTimeout time.Duration
	Hooks       Hooks
	Logger      *slog.Logger
}

// Dialog is a conversation about one word. At most one turn is in flight.
type Dialog struct {
	transport Transport
	renderer  *Renderer
	opts      Options
	log       *slog.Logger

	mu         sync.Mutex
	word       string
	conv       *Conversation
	transcript []chat.Message
	state      State
	gen        uint64
	cancel     context.CancelFunc
}

// NewDialog creates an idle dialog with no word.
func NewDialog(t Transport, r *Renderer, opts Options) *Dialog {
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if r == nil {
		r = NewRenderer(nil, nil)
	}
	return &Dialog{
		transport: t,
		renderer:  r,
		opts:      opts,
		log:       log,
		conv:      &Conversation{},
	}
}

// Open points the dialog at word and sends the scripted opener. Opening a
// different word cancels any turn in flight and starts a new conversation.
// Reopening the current word with history already present sends nothing and
// returns the zero Message.
func (d *Dialog) Open(ctx context.Context, word string) (chat.Message, error) {
	d.mu.Lock()
	if d.word != word {
		d.stopLocked()
		d.word = word
		d.conv = &Conversation{}
		d.transcript = nil
	} else if d.conv.Len() > 0 {
		d.mu.Unlock()
		return chat.Message{}, nil
	}
	d.mu.Unlock()
	return d.Send(ctx, Opener(word))
}

// Close cancels the turn in flight, if any. The conversation is kept so that
// reopening on the same word continues it.
func (d *Dialog) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *Dialog) stopLocked() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.gen++
	d.setStateLocked(Idle)
}

// Send submits message and blocks until the reply completes or fails. It
// returns ErrTurnInFlight without side effects while another turn is busy.
func (d *Dialog) Send(ctx context.Context, message string) (chat.Message, error) {
	d.mu.Lock()
	if d.word == "" {
		d.mu.Unlock()
		return chat.Message{}, ErrNoWord
	}
	if d.state.Busy() {
		d.mu.Unlock()
		return chat.Message{}, ErrTurnInFlight
	}
	user := chat.Message{Role: chat.RoleUser, Content: message}
	req := chat.Request{Message: message, History: d.conv.Messages(), Model: d.opts.Model}
	turnCtx, cancel := context.WithCancel(ctx)
	d.gen++
	gen, word, conv := d.gen, d.word, d.conv
	d.cancel = cancel
	d.transcript = append(d.transcript, user)
	d.setStateLocked(Sending)
	d.mu.Unlock()
	defer cancel()

	reply, err := d.run(turnCtx, gen, word, req)

	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		return chat.Message{}, ErrSuperseded
	}
	d.cancel = nil
	if err != nil {
		d.log.Warn("chat turn failed", slog.String("word", word), slog.Any("error", err))
		d.transcript = append(d.transcript, chat.Message{Role: RoleNotice, Content: ErrorMessage})
		d.setStateLocked(Error)
		if h := d.opts.Hooks.OnError; h != nil {
			h(ErrorMessage, err)
		}
		return chat.Message{}, err
	}
	conv.Append(user, reply)
	d.transcript = append(d.transcript, reply)
	d.setStateLocked(Complete)
	if h := d.opts.Hooks.OnComplete; h != nil {
		h(reply)
	}
	return reply, nil
}

// run streams one reply. The idle timer covers the wait for the response
// headers as well as the gaps between chunks.
func (d *Dialog) run(ctx context.Context, gen uint64, word string, req chat.Request) (chat.Message, error) {
	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()

	var timedOut atomic.Bool
	touch := func() {}
	if idle := d.opts.IdleTimeout; idle > 0 {
		timer := time.AfterFunc(idle, func() {
			timedOut.Store(true)
			stopStream()
		})
		defer timer.Stop()
		touch = func() { timer.Reset(idle) }
	}

	body, err := d.transport.Stream(streamCtx, word, req)
	if err != nil {
		if timedOut.Load() {
			return chat.Message{}, ErrIdleTimeout
		}
		return chat.Message{}, err
	}
	defer body.Close()
	stop := context.AfterFunc(streamCtx, func() { body.Close() })
	defer stop()

	if timedOut.Load() {
		return chat.Message{}, ErrIdleTimeout
	}
	if !d.advance(gen, Streaming) {
		return chat.Message{}, ErrSuperseded
	}
	touch()
	return d.consume(ctx, gen, body, touch, &timedOut)
}

func (d *Dialog) consume(ctx context.Context, gen uint64, body io.Reader, touch func(), timedOut *atomic.Bool) (chat.Message, error) {
	dec := NewDecoder(body).WithLogger(d.log)
	var acc strings.Builder
	for {
		ev, err := dec.Next()
		if err != nil {
			switch {
			case timedOut.Load():
				return chat.Message{}, ErrIdleTimeout
			case ctx.Err() != nil:
				return chat.Message{}, ctx.Err()
			case errors.Is(err, io.EOF):
				return chat.Message{}, ErrIncomplete
			default:
				return chat.Message{}, fmt.Errorf("read reply stream: %w", err)
			}
		}
		touch()
		if ev.Content != "" {
			acc.WriteString(ev.Content)
			d.render(gen, acc.String())
		}
		if ev.Done {
			return chat.Message{Role: chat.RoleAssistant, Content: acc.String()}, nil
		}
	}
}

// render re-renders the whole accumulator; partial words may change
// interactivity once completed.
func (d *Dialog) render(gen uint64, text string) {
	spans := d.renderer.Render(text)
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		return
	}
	if h := d.opts.Hooks.OnRender; h != nil {
		h(spans)
	}
}

func (d *Dialog) advance(gen uint64, to State) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		return false
	}
	d.setStateLocked(to)
	return true
}

func (d *Dialog) setStateLocked(to State) {
	if d.state == to {
		return
	}
	if !canTransition(d.state, to) {
		d.log.Debug("ignoring state transition", slog.String("from", d.state.String()), slog.String("to", to.String()))
		return
	}
	d.state = to
	if h := d.opts.Hooks.OnState; h != nil {
		h(to)
	}
}

// State returns the state of the current turn.
func (d *Dialog) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Word returns the word the dialog is about.
func (d *Dialog) Word() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.word
}

// History returns the completed exchanges sent as context with each request.
func (d *Dialog) History() []chat.Message {
	d.mu.Lock()
	conv := d.conv
	d.mu.Unlock()
	return conv.Messages()
}

// Transcript returns what the reader sees: sent messages, replies and error
// notices.
func (d *Dialog) Transcript() []chat.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]chat.Message, len(d.transcript))
	copy(out, d.transcript)
	return out
}
