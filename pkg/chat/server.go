package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"

	"github.com/japaniel/lexireader/pkg/annotate"
	"github.com/japaniel/lexireader/pkg/lexicon"
)

// MaxContextExamples bounds the examples placed in the system prompt.
const MaxContextExamples = 10

// Backend streams a model's chat response. *api.Client satisfies it.
type Backend interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

// NewOllamaBackend returns an Ollama client. An empty host falls back to
// OLLAMA_HOST.
func NewOllamaBackend(host string) (*api.Client, error) {
	base := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("parse ollama host: %w", err)
		}
		base = u
	}
	return api.NewClient(base, &http.Client{}), nil
}

// WordContext is what the assistant is told about a word.
type WordContext struct {
	Word             string   `json:"word"`
	Lemma            string   `json:"lemma"`
	Forms            []string `json:"word_forms"`
	Examples         []string `json:"examples"`
	TotalOccurrences int      `json:"total_occurrences"`
}

// Server serves the chat endpoints and the word panel over HTTP.
type Server struct {
	builder      *annotate.Builder
	backend      Backend
	defaultModel string
	models       []string
	cache        ContextCache
	log          *slog.Logger
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// DefaultModel is used when a request names no model.
	DefaultModel string
	// AllowedModels restricts the models a request may name. Empty allows
	// only DefaultModel.
	AllowedModels []string
	// Cache, when set, keeps built word contexts across requests.
	Cache  ContextCache
	Logger *slog.Logger
}

// NewServer creates a Server.
func NewServer(builder *annotate.Builder, backend Backend, opts ServerOptions) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	models := opts.AllowedModels
	if len(models) == 0 {
		models = []string{opts.DefaultModel}
	}
	return &Server{
		builder:      builder,
		backend:      backend,
		defaultModel: opts.DefaultModel,
		models:       models,
		cache:        opts.Cache,
		log:          log,
	}
}

// Routes registers the handlers on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/word/{word}", s.handleWordChat)
	mux.HandleFunc("POST /chat/stream", s.handleChat)
	mux.HandleFunc("GET /panel", s.handlePanel)
	mux.HandleFunc("GET /prompt/{lemma}", s.handlePrompt)
	return mux
}

// Context builds the assistant context for word, or ErrUnknownWord when its
// lemma has no occurrences.
func (s *Server) Context(word string) (WordContext, error) {
	idx := s.builder.Index()
	lemma := idx.LemmaOf(word)
	occs := idx.OccurrencesOfLemma(lemma)
	if len(occs) == 0 {
		return WordContext{}, ErrUnknownWord
	}
	forms := []string{word}
	if idx.HasFamily(lemma) {
		forms = idx.FamilyOf(lemma)
	}
	return WordContext{
		Word:             word,
		Lemma:            lemma,
		Forms:            forms,
		Examples:         s.builder.PromptExamples(lemma, MaxContextExamples),
		TotalOccurrences: len(occs),
	}, nil
}

// cachedContext is Context behind the server's cache. Entries are keyed by
// the index fingerprint so a rebuilt corpus never sees stale contexts. Cache
// failures are logged and the context is rebuilt.
func (s *Server) cachedContext(ctx context.Context, word string) (WordContext, error) {
	if s.cache == nil {
		return s.Context(word)
	}
	key := ContextKey(s.builder.Index(), word)
	wc, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("context cache get", slog.String("word", word), slog.Any("error", err))
	}
	if ok {
		return wc, nil
	}
	wc, err = s.Context(word)
	if err != nil {
		return wc, err
	}
	if err := s.cache.Set(ctx, key, wc); err != nil {
		s.log.Warn("context cache set", slog.String("word", word), slog.Any("error", err))
	}
	return wc, nil
}

// ContextKey is the cache key of word's context in idx.
func ContextKey(idx *lexicon.Index, word string) string {
	return fmt.Sprintf("%016x:%s", idx.Fingerprint(), word)
}

// SystemPrompt renders the discovery prompt for a word context.
func SystemPrompt(wc WordContext) string {
	forms := wc.Forms
	if len(forms) <= 1 {
		forms = []string{wc.Word}
	}
	return annotate.DiscoveryPrompt(wc.Lemma, forms, wc.Examples)
}

func (s *Server) handleWordChat(w http.ResponseWriter, r *http.Request) {
	word := r.PathValue("word")
	req, model, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	wc, err := s.cachedContext(r.Context(), word)
	if err != nil {
		http.Error(w, fmt.Sprintf("Word '%s' not found", word), http.StatusNotFound)
		return
	}

	msgs := []api.Message{{Role: RoleSystem, Content: SystemPrompt(wc)}}
	msgs = append(msgs, toAPI(req.History)...)
	msgs = append(msgs, api.Message{Role: RoleUser, Content: req.Message})

	s.log.Info("word chat",
		slog.String("word", word),
		slog.String("lemma", wc.Lemma),
		slog.Int("history", len(req.History)),
		slog.String("model", model),
	)
	s.stream(w, r, model, msgs)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, model, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	s.stream(w, r, model, []api.Message{{Role: RoleUser, Content: req.Message}})
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (Request, string, bool) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return req, "", false
	}
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}
	if !slices.Contains(s.models, model) {
		http.Error(w, fmt.Sprintf("model %q is not allowed", model), http.StatusBadRequest)
		return req, "", false
	}
	for _, m := range req.History {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			http.Error(w, fmt.Sprintf("invalid history role %q", m.Role), http.StatusBadRequest)
			return req, "", false
		}
	}
	return req, model, true
}

// stream relays backend chunks as "data: <json>\n\n" lines.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, model string, msgs []api.Message) {
	flusher, _ := w.(http.Flusher)
	streaming := true
	started := false

	err := s.backend.Chat(r.Context(), &api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &streaming,
	}, func(resp api.ChatResponse) error {
		b, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			started = true
		}
		if _, err := fmt.Fprintf(w, "%s%s\n\n", DataPrefix, b); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		s.log.Debug("chat stream canceled by client")
		return
	}
	s.log.Error("chat backend failed", slog.Any("error", err), slog.Bool("partial", started))
	if !started {
		http.Error(w, "chat backend unavailable", http.StatusBadGateway)
	}
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	word := q.Get("word")
	if word == "" {
		http.Error(w, "word is required", http.StatusBadRequest)
		return
	}
	panel := s.builder.Build(word, q.Get("lemma"), q.Get("unit"))
	writeJSON(w, panel)
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, s.builder.Prompt(r.PathValue("lemma")))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("encode response", slog.Any("error", err))
	}
}

func toAPI(msgs []Message) []api.Message {
	out := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, api.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
