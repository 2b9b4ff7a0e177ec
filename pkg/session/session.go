// Package session ties a reader's interactions together: the selected word,
// its panel, and the dialog about it. State changes are published as events.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/japaniel/lexireader/pkg/annotate"
	"github.com/japaniel/lexireader/pkg/chat"
	"github.com/japaniel/lexireader/pkg/clipboard"
	"github.com/japaniel/lexireader/pkg/highlight"
	"github.com/japaniel/lexireader/pkg/lexicon"
	"github.com/japaniel/lexireader/pkg/stream"
)

var (
	ErrUnknownWord = errors.New("word is not in the corpus")
	ErrNoSelection = errors.New("no word selected")
	ErrNotReady    = errors.New("index not loaded yet")
)

// Selection is the active (word, lemma, origin unit) triple.
type Selection struct {
	Word   string `json:"word"`
	Lemma  string `json:"lemma"`
	UnitID string `json:"unit_id"`
}

// EventKind names a published transition.
type EventKind int

const (
	PanelOpened EventKind = iota + 1
	PanelClosed
	SelectionCleared
	DialogOpened
	DialogClosed
	ReplyCompleted
	Ready
)

func (k EventKind) String() string {
	switch k {
	case PanelOpened:
		return "panel_opened"
	case PanelClosed:
		return "panel_closed"
	case SelectionCleared:
		return "selection_cleared"
	case DialogOpened:
		return "dialog_opened"
	case DialogClosed:
		return "dialog_closed"
	case ReplyCompleted:
		return "reply_completed"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers.
type Event struct {
	Kind      EventKind
	Selection Selection
	Panel     *annotate.Panel
	Reply     *chat.Message
}

// Options configures a Reader.
type Options struct {
	Highlighter *highlight.Highlighter
	Panel       annotate.Config
	Tokenizer   *stream.Tokenizer
	Dialog      stream.Options
	Clipboard   clipboard.Sink
	Logger      *slog.Logger
}

// Reader owns the selection and the dialog of one reading session. All
// methods are safe for concurrent use.
type Reader struct {
	loader    *lexicon.Loader
	transport stream.Transport
	opts      Options
	log       *slog.Logger

	mu         sync.Mutex
	builder    *annotate.Builder
	dialog     *stream.Dialog
	sel        *Selection
	dialogOpen bool

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New creates a Reader. Until Wire returns, lookups see an empty index.
func New(loader *lexicon.Loader, transport stream.Transport, opts Options) *Reader {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.System{}
	}
	r := &Reader{
		loader:    loader,
		transport: transport,
		opts:      opts,
		log:       log,
		subs:      make(map[int]chan Event),
	}
	r.builder = annotate.NewBuilder(loader.Index(), opts.Highlighter, opts.Panel, log)
	return r
}

// Wire waits for the index and connects the panel builder and dialog to it.
func (r *Reader) Wire(ctx context.Context) error {
	idx, err := r.loader.Wait(ctx)
	if err != nil {
		return err
	}
	dopts := r.opts.Dialog
	if dopts.Logger == nil {
		dopts.Logger = r.log
	}
	onComplete := dopts.Hooks.OnComplete
	dopts.Hooks.OnComplete = func(reply chat.Message) {
		if onComplete != nil {
			onComplete(reply)
		}
		r.publish(Event{Kind: ReplyCompleted, Reply: &reply})
	}

	r.mu.Lock()
	r.builder = annotate.NewBuilder(idx, r.opts.Highlighter, r.opts.Panel, r.log)
	r.dialog = stream.NewDialog(r.transport, stream.NewRenderer(idx, r.opts.Tokenizer), dopts)
	r.mu.Unlock()

	r.publish(Event{Kind: Ready})
	return nil
}

// Select makes word the active selection and returns its panel. Words absent
// from the index are rejected and the current state is left untouched.
func (r *Reader) Select(word, lemma, unitID string) (annotate.Panel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.builder.Index().Known(word) {
		return annotate.Panel{}, ErrUnknownWord
	}
	panel := r.builder.Build(word, lemma, unitID)
	sel := Selection{Word: word, Lemma: panel.Lemma, UnitID: unitID}
	r.sel = &sel
	r.log.Debug("word selected", slog.String("word", word), slog.String("unit", unitID))
	r.publish(Event{Kind: PanelOpened, Selection: sel, Panel: &panel})
	return panel, nil
}

// Selection returns the active selection.
func (r *Reader) Selection() (Selection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sel == nil {
		return Selection{}, false
	}
	return *r.sel, true
}

// Deselect clears the selection, as on an outside click.
func (r *Reader) Deselect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clearLocked()
}

// ClosePanel clears the selection and closes the dialog along with any reply
// in flight.
func (r *Reader) ClosePanel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeDialogLocked()
	if r.sel != nil {
		r.publish(Event{Kind: PanelClosed, Selection: *r.sel})
	}
	r.clearLocked()
}

func (r *Reader) clearLocked() {
	if r.sel == nil {
		return
	}
	sel := *r.sel
	r.sel = nil
	r.publish(Event{Kind: SelectionCleared, Selection: sel})
}

// OpenDialog opens the dialog about the selected word and blocks until the
// opener's reply completes.
func (r *Reader) OpenDialog(ctx context.Context) (chat.Message, error) {
	r.mu.Lock()
	if r.dialog == nil {
		r.mu.Unlock()
		return chat.Message{}, ErrNotReady
	}
	if r.sel == nil {
		r.mu.Unlock()
		return chat.Message{}, ErrNoSelection
	}
	sel, d := *r.sel, r.dialog
	r.dialogOpen = true
	r.publish(Event{Kind: DialogOpened, Selection: sel})
	r.mu.Unlock()

	return d.Open(ctx, sel.Word)
}

// Send posts a message in the open dialog.
func (r *Reader) Send(ctx context.Context, message string) (chat.Message, error) {
	r.mu.Lock()
	d := r.dialog
	r.mu.Unlock()
	if d == nil {
		return chat.Message{}, ErrNotReady
	}
	return d.Send(ctx, message)
}

// CloseDialog discards any reply in flight. The selection stays.
func (r *Reader) CloseDialog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeDialogLocked()
}

func (r *Reader) closeDialogLocked() {
	if r.dialog == nil || !r.dialogOpen {
		return
	}
	r.dialog.Close()
	r.dialogOpen = false
	var sel Selection
	if r.sel != nil {
		sel = *r.sel
	}
	r.publish(Event{Kind: DialogClosed, Selection: sel})
}

// Dialog returns the dialog, or nil before Wire.
func (r *Reader) Dialog() *stream.Dialog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dialog
}

// CopyPrompt copies the discovery prompt of the selected lemma.
func (r *Reader) CopyPrompt(ctx context.Context) bool {
	r.mu.Lock()
	sel, b := r.sel, r.builder
	r.mu.Unlock()
	if sel == nil {
		return false
	}
	return b.CopyPrompt(ctx, r.opts.Clipboard, sel.Lemma)
}

// CopyAllExamples copies every example of the selected lemma.
func (r *Reader) CopyAllExamples(ctx context.Context) bool {
	r.mu.Lock()
	sel, b := r.sel, r.builder
	r.mu.Unlock()
	if sel == nil {
		return false
	}
	return b.CopyAllExamples(ctx, r.opts.Clipboard, sel.Lemma, sel.UnitID)
}

// Subscribe registers for events. Deliveries never block; a subscriber whose
// buffer is full misses events. The returned func unsubscribes.
func (r *Reader) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	r.subMu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
}

func (r *Reader) publish(ev Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			r.log.Warn("dropping session event", slog.String("kind", ev.Kind.String()))
		}
	}
}
