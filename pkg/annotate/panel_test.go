package annotate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/lexireader/pkg/highlight"
	"github.com/japaniel/lexireader/pkg/lexicon"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func correrIndex() *lexicon.Index {
	return lexicon.New(lexicon.Tables{
		WordIndex: map[string][]lexicon.Occurrence{
			"corre":     {{UnitID: "T1"}},
			"corriendo": {{UnitID: "T2"}},
		},
		LemmaIndex: map[string][]lexicon.Occurrence{
			"correr": {
				{UnitID: "T1", Word: "corre"},
				{UnitID: "T2", Word: "corriendo"},
			},
		},
		WordToLemma: map[string]string{"corre": "correr", "corriendo": "correr"},
		Families: map[string]lexicon.Family{
			"correr": {Forms: []string{"correr", "corre", "corriendo"}},
		},
		Units: map[string]lexicon.Unit{
			"T1": {Text: "El perro corre.", File: "cap01.xhtml"},
			"T2": {Text: "Seguía corriendo sin parar.", File: "cap01.xhtml"},
		},
	})
}

func TestTierBoundaries(t *testing.T) {
	cfg := DefaultConfig()
	cases := map[int]Tier{0: TierLow, 5: TierLow, 6: TierMedium, 20: TierMedium, 21: TierHigh}
	for count, want := range cases {
		assert.Equal(t, want, cfg.Tier(count), "count %d", count)
	}
}

func TestBuildScenario(t *testing.T) {
	b := NewBuilder(correrIndex(), nil, DefaultConfig(), quiet())

	p := b.Build("corre", "", "T1")

	assert.Equal(t, "correr", p.Lemma)
	assert.Equal(t, 2, p.FamilyFrequency)
	assert.Equal(t, 1, p.WordFrequency)
	assert.Equal(t, TierLow, p.Tier)
	assert.Equal(t, []string{"correr", "corre", "corriendo"}, p.Forms)

	require.Len(t, p.FamilyExamples, 1)
	ex := p.FamilyExamples[0]
	assert.Equal(t, "T2", ex.UnitID)
	assert.Equal(t, "corriendo", ex.Form)
	assert.Equal(t, []highlight.Fragment{
		{Text: "Seguía "},
		{Text: "corriendo", Match: true},
		{Text: " sin parar."},
	}, ex.Fragments)

	assert.Empty(t, p.FormExamples, "the only unit with 'corre' is the origin")
}

func bigIndex(units int) *lexicon.Index {
	t := lexicon.Tables{
		WordIndex:   map[string][]lexicon.Occurrence{},
		LemmaIndex:  map[string][]lexicon.Occurrence{},
		WordToLemma: map[string]string{"casa": "casa", "casas": "casa"},
		Families:    map[string]lexicon.Family{"casa": {Forms: []string{"casa", "casas"}}},
		Units:       map[string]lexicon.Unit{},
	}
	for i := 0; i < units; i++ {
		id := fmt.Sprintf("u%d", i)
		form := "casa"
		if i%2 == 1 {
			form = "casas"
		}
		t.Units[id] = lexicon.Unit{Text: fmt.Sprintf("<p>Una <i>%s</i> número %d.</p>", form, i)}
		occ := lexicon.Occurrence{UnitID: id, Word: form}
		t.WordIndex[form] = append(t.WordIndex[form], occ)
		// Every unit is listed twice to exercise deduplication.
		t.LemmaIndex["casa"] = append(t.LemmaIndex["casa"], occ, occ)
	}
	// An occurrence pointing at a unit that was never loaded.
	t.LemmaIndex["casa"] = append([]lexicon.Occurrence{{UnitID: "missing", Word: "casa"}}, t.LemmaIndex["casa"]...)
	return lexicon.New(t)
}

func TestExamplesCappedDedupedAndExcludeOrigin(t *testing.T) {
	b := NewBuilder(bigIndex(30), nil, DefaultConfig(), quiet())

	p := b.Build("casa", "casa", "u0")

	assert.Equal(t, 61, p.FamilyFrequency)
	assert.Equal(t, TierHigh, p.Tier)
	require.Len(t, p.FamilyExamples, 8)
	require.Len(t, p.FormExamples, 5)

	seen := map[string]bool{}
	for _, ex := range p.FamilyExamples {
		assert.NotEqual(t, "u0", ex.UnitID)
		assert.NotEqual(t, "missing", ex.UnitID)
		assert.False(t, seen[ex.UnitID], "duplicate unit %s", ex.UnitID)
		seen[ex.UnitID] = true
		assert.Equal(t, 1, highlight.Count(ex.Fragments))
		assert.NotContains(t, ex.Text, "<i>")
	}
	assert.Equal(t, "u1", p.FamilyExamples[0].UnitID, "first-seen order")
	assert.Equal(t, "casas", p.FamilyExamples[0].Form)

	for _, ex := range p.FormExamples {
		assert.Equal(t, "casa", ex.Form)
		assert.NotEqual(t, "u0", ex.UnitID)
	}
}

func TestAllExamplesUncapped(t *testing.T) {
	b := NewBuilder(bigIndex(30), nil, DefaultConfig(), quiet())

	all := b.AllExamples("casa", "u0")
	assert.Len(t, all, 29)

	export := ExportExamples(all)
	assert.Equal(t, 29, strings.Count(export, Bullet))
}

func TestBuildUnknownWord(t *testing.T) {
	b := NewBuilder(lexicon.Empty(), nil, DefaultConfig(), quiet())

	p := b.Build("nada", "", "T1")
	assert.Equal(t, "nada", p.Lemma)
	assert.Equal(t, []string{"nada"}, p.Forms)
	assert.Zero(t, p.FamilyFrequency)
	assert.Equal(t, TierLow, p.Tier)
	assert.Empty(t, p.FamilyExamples)
}

func TestDiscoveryPrompt(t *testing.T) {
	b := NewBuilder(correrIndex(), nil, DefaultConfig(), quiet())

	prompt := b.Prompt("correr")
	assert.Contains(t, prompt, `la palabra "correr" y sus formas (correr, corre, corriendo)`)
	assert.Contains(t, prompt, "• El perro corre.\n• Seguía corriendo sin parar.")
	assert.True(t, strings.HasSuffix(prompt, `significa esta palabra "correr".`))
}

func TestStripMarkup(t *testing.T) {
	assert.Equal(t, "Hola mundo & más", StripMarkup(`<p class="x">Hola <b>mundo</b> &amp; más</p>`))
	assert.Equal(t, "sin marcas", StripMarkup("  sin marcas "))
}

type recordingSink struct {
	text string
	err  error
}

func (r *recordingSink) Write(_ context.Context, text string) error {
	if r.err != nil {
		return r.err
	}
	r.text = text
	return nil
}

func TestCopyPromptAndExamples(t *testing.T) {
	b := NewBuilder(correrIndex(), nil, DefaultConfig(), quiet())

	sink := &recordingSink{}
	require.True(t, b.CopyPrompt(context.Background(), sink, "correr"))
	assert.Contains(t, sink.text, "correr")

	require.True(t, b.CopyAllExamples(context.Background(), sink, "correr", "T1"))
	assert.Equal(t, "• Seguía corriendo sin parar.", sink.text)

	failing := &recordingSink{err: errors.New("denied")}
	assert.False(t, b.CopyPrompt(context.Background(), failing, "correr"))
}
