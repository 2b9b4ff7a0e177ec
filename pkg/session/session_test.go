package session

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/lexireader/pkg/chat"
	"github.com/japaniel/lexireader/pkg/lexicon"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func tables() lexicon.Tables {
	return lexicon.Tables{
		WordIndex: map[string][]lexicon.Occurrence{
			"corre":     {{UnitID: "T1", Word: "corre"}},
			"corriendo": {{UnitID: "T2", Word: "corriendo"}},
		},
		LemmaIndex: map[string][]lexicon.Occurrence{
			"correr": {{UnitID: "T1", Word: "corre"}, {UnitID: "T2", Word: "corriendo"}},
		},
		WordToLemma: map[string]string{"corre": "correr", "corriendo": "correr"},
		Units: map[string]lexicon.Unit{
			"T1": {Text: "El perro corre."},
			"T2": {Text: "Seguía corriendo sin parar."},
		},
	}
}

type replyTransport struct{ reply string }

func (t replyTransport) Stream(_ context.Context, _ string, _ chat.Request) (io.ReadCloser, error) {
	s := `data: {"message":{"role":"assistant","content":"` + t.reply + `"},"done":false}` + "\n" +
		`data: {"done":true}` + "\n"
	return io.NopCloser(strings.NewReader(s)), nil
}

type memSink struct{ text string }

func (m *memSink) Write(_ context.Context, text string) error {
	m.text = text
	return nil
}

func newReader(t *testing.T, sink *memSink) *Reader {
	t.Helper()
	loader := lexicon.NewLoader(quiet())
	loader.Start(context.Background(), lexicon.SourceFunc(func(context.Context) (lexicon.Tables, error) {
		return tables(), nil
	}))
	opts := Options{Logger: quiet()}
	if sink != nil {
		opts.Clipboard = sink
	}
	r := New(loader, replyTransport{reply: "¿Qué crees que significa?"}, opts)
	require.NoError(t, r.Wire(context.Background()))
	return r
}

func drain(ch <-chan Event) []EventKind {
	var kinds []EventKind
	for {
		select {
		case ev := <-ch:
			kinds = append(kinds, ev.Kind)
		default:
			return kinds
		}
	}
}

func TestSelectUnknownWordRejected(t *testing.T) {
	r := newReader(t, nil)
	_, err := r.Select("corre", "", "T1")
	require.NoError(t, err)

	_, err = r.Select("volar", "", "T1")
	assert.ErrorIs(t, err, ErrUnknownWord)

	sel, ok := r.Selection()
	require.True(t, ok)
	assert.Equal(t, Selection{Word: "corre", Lemma: "correr", UnitID: "T1"}, sel)
}

func TestSelectBeforeWireSeesEmptyIndex(t *testing.T) {
	loader := lexicon.NewLoader(quiet())
	r := New(loader, replyTransport{}, Options{Logger: quiet()})

	_, err := r.Select("corre", "", "T1")
	assert.ErrorIs(t, err, ErrUnknownWord)
	_, err = r.OpenDialog(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestPanelAndDialogLifecycle(t *testing.T) {
	r := newReader(t, nil)
	events, unsubscribe := r.Subscribe(16)
	defer unsubscribe()

	panel, err := r.Select("corre", "", "T1")
	require.NoError(t, err)
	assert.Equal(t, 2, panel.FamilyFrequency)

	reply, err := r.OpenDialog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "¿Qué crees que significa?", reply.Content)

	r.ClosePanel()
	_, ok := r.Selection()
	assert.False(t, ok)

	assert.Equal(t, []EventKind{
		PanelOpened, DialogOpened, ReplyCompleted, DialogClosed, PanelClosed, SelectionCleared,
	}, drain(events))
}

func TestOpenDialogRequiresSelection(t *testing.T) {
	r := newReader(t, nil)
	_, err := r.OpenDialog(context.Background())
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestCloseDialogKeepsSelection(t *testing.T) {
	r := newReader(t, nil)
	_, err := r.Select("corriendo", "", "T2")
	require.NoError(t, err)
	_, err = r.OpenDialog(context.Background())
	require.NoError(t, err)

	r.CloseDialog()
	sel, ok := r.Selection()
	require.True(t, ok)
	assert.Equal(t, "corriendo", sel.Word)
}

func TestCopyFromSelection(t *testing.T) {
	sink := &memSink{}
	r := newReader(t, sink)

	assert.False(t, r.CopyPrompt(context.Background()), "nothing selected")

	_, err := r.Select("corre", "", "T1")
	require.NoError(t, err)
	require.True(t, r.CopyAllExamples(context.Background()))
	assert.Equal(t, "• Seguía corriendo sin parar.", sink.text)

	require.True(t, r.CopyPrompt(context.Background()))
	assert.Contains(t, sink.text, `"correr"`)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	r := newReader(t, nil)
	ch, unsubscribe := r.Subscribe(1)
	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
}
