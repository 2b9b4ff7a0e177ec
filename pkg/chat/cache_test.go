package chat_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/lexireader/pkg/annotate"
	"github.com/japaniel/lexireader/pkg/chat"
	"github.com/japaniel/lexireader/pkg/lexicon"
)

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisContextCacheRoundTrip(t *testing.T) {
	client, mr := setupRedis(t)
	cache := chat.NewRedisContextCache(client, time.Minute)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "corre")
	require.NoError(t, err)
	assert.False(t, ok)

	want := chat.WordContext{Word: "corre", Lemma: "correr", Forms: []string{"corre", "corriendo"}, TotalOccurrences: 2}
	require.NoError(t, cache.Set(ctx, "corre", want))

	got, ok, err := cache.Get(ctx, "corre")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.Get(ctx, "corre")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisContextCacheCorruptEntry(t *testing.T) {
	client, mr := setupRedis(t)
	require.NoError(t, mr.Set("lexireader:context:corre", "{not json"))

	_, ok, err := chat.NewRedisContextCache(client, 0).Get(context.Background(), "corre")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestWordChatFillsContextCache(t *testing.T) {
	client, mr := setupRedis(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder := annotate.NewBuilder(testIndex(), nil, annotate.DefaultConfig(), log)
	srv := chat.NewServer(builder, &fakeBackend{chunks: []string{"Hola"}}, chat.ServerOptions{
		DefaultModel: "gpt-oss:20b",
		Cache:        chat.NewRedisContextCache(client, time.Minute),
		Logger:       log,
	})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	body, err := chat.NewClient(ts.URL).Stream(context.Background(), "corre", chat.Request{Message: "hola"})
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, body)
	body.Close()

	assert.True(t, mr.Exists("lexireader:context:"+chat.ContextKey(testIndex(), "corre")))

	// A cached context is served even for words the index does not know.
	require.NoError(t, chat.NewRedisContextCache(client, time.Minute).Set(context.Background(), chat.ContextKey(testIndex(), "fantasma"),
		chat.WordContext{Word: "fantasma", Lemma: "fantasma", Forms: []string{"fantasma"}, TotalOccurrences: 1}))
	body, err = chat.NewClient(ts.URL).Stream(context.Background(), "fantasma", chat.Request{Message: "hola"})
	require.NoError(t, err)
	body.Close()
}

func TestWordChatIgnoresContextsOfOtherCorpus(t *testing.T) {
	client, _ := setupRedis(t)
	cache := chat.NewRedisContextCache(client, time.Minute)
	// Entry left behind by an earlier build of the corpus.
	require.NoError(t, cache.Set(context.Background(), chat.ContextKey(lexicon.Empty(), "corre"),
		chat.WordContext{Word: "corre", Lemma: "viejo", Forms: []string{"corre"}, TotalOccurrences: 1}))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := &fakeBackend{chunks: []string{"Hola"}}
	srv := chat.NewServer(annotate.NewBuilder(testIndex(), nil, annotate.DefaultConfig(), log), backend,
		chat.ServerOptions{DefaultModel: "gpt-oss:20b", Cache: cache, Logger: log})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	body, err := chat.NewClient(ts.URL).Stream(context.Background(), "corre", chat.Request{Message: "hola"})
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, body)
	body.Close()

	require.NotNil(t, backend.got)
	assert.Contains(t, backend.got.Messages[0].Content, `"correr"`)
	assert.NotContains(t, backend.got.Messages[0].Content, "viejo")
}

func TestWordChatIgnoresCacheOutage(t *testing.T) {
	client, mr := setupRedis(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	builder := annotate.NewBuilder(testIndex(), nil, annotate.DefaultConfig(), log)
	srv := chat.NewServer(builder, &fakeBackend{chunks: []string{"Hola"}}, chat.ServerOptions{
		DefaultModel: "gpt-oss:20b",
		Cache:        chat.NewRedisContextCache(client, time.Minute),
		Logger:       log,
	})
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	mr.Close()

	body, err := chat.NewClient(ts.URL).Stream(context.Background(), "corre", chat.Request{Message: "hola"})
	require.NoError(t, err)
	body.Close()
}
