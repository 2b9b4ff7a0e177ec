package analyze

import (
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// KagomeAnalyzer tokenizes Japanese text with the IPA dictionary and uses the
// dictionary base form as the lemma.
type KagomeAnalyzer struct {
	t *tokenizer.Tokenizer
}

// NewKagomeAnalyzer creates a KagomeAnalyzer.
func NewKagomeAnalyzer() (*KagomeAnalyzer, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &KagomeAnalyzer{t: t}, nil
}

// skipPOS lists the parts of speech that are never indexed: symbols,
// particles and auxiliaries.
var skipPOS = map[string]bool{
	"記号":   true,
	"補助記号": true,
	"助詞":   true,
	"助動詞":  true,
}

// Analyze implements Analyzer.
func (a *KagomeAnalyzer) Analyze(text string) ([]Token, error) {
	var out []Token
	for _, tok := range a.t.Tokenize(text) {
		if tok.Class == tokenizer.DUMMY || strings.TrimSpace(tok.Surface) == "" {
			continue
		}
		// IPA features: 0 POS, 1-3 sub-POS, 4-5 conjugation, 6 base form,
		// 7-8 reading.
		features := tok.Features()
		pos := ""
		if len(features) > 0 {
			pos = features[0]
		}
		if skipPOS[pos] {
			continue
		}
		if len(features) > 1 && features[1] == "数" {
			continue
		}
		lemma := tok.Surface
		if len(features) > 6 && features[6] != "*" {
			lemma = features[6]
		}
		out = append(out, Token{
			Surface: tok.Surface,
			Word:    strings.ToLower(tok.Surface),
			Lemma:   lemma,
			POS:     pos,
		})
	}
	return out, nil
}
