package annotate

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// discoveryTemplate asks the assistant to let the learner infer the meaning.
// Substitutions: lemma, comma-joined forms, bulleted examples.
const discoveryTemplate = `Soy estudiante de español y estoy aprendiendo por inmersión total. Estoy tratando de entender intuitivamente la palabra "%[1]s" y sus formas (%[2]s) sin recibir definiciones directas en inglés.

Aquí tienes ejemplos de cómo se usa esta palabra en contexto:

%[3]s

Responde SOLAMENTE en español, usando un español sencillo. Aunque puedes ayudarme con explicaciones directas si es necesario, prefiero liderar el descubrimiento. No respondas a estas instrucciones - simplemente pregúntame directamente qué pienso que significa esta palabra "%[1]s".`

// Bullet prefixes each example in exported lists.
const Bullet = "• "

// DiscoveryPrompt fills the discovery template.
func DiscoveryPrompt(lemma string, forms, examples []string) string {
	return fmt.Sprintf(discoveryTemplate, lemma, strings.Join(forms, ", "), Bulleted(examples))
}

// Bulleted joins texts one per line, each with a bullet.
func Bulleted(texts []string) string {
	lines := make([]string, 0, len(texts))
	for _, t := range texts {
		lines = append(lines, Bullet+t)
	}
	return strings.Join(lines, "\n")
}

// StripMarkup removes HTML tags and decodes entities, returning trimmed text.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way keep what was read.
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
