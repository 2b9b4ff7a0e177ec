package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/japaniel/lexireader/pkg/annotate"
	"github.com/japaniel/lexireader/pkg/chat"
	"github.com/japaniel/lexireader/pkg/highlight"
	"github.com/japaniel/lexireader/pkg/lexicon"
)

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := configFlag(fs)
	addr := fs.String("addr", "", "listen address (default server.addr)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := setup(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		e.cfg.Server.Addr = *addr
	}

	backend, err := chat.NewOllamaBackend(e.cfg.Ollama.Host)
	if err != nil {
		return err
	}

	src, closeSrc, err := e.corpus()
	if err != nil {
		return err
	}
	defer closeSrc()
	loader := lexicon.NewLoader(e.log)
	loader.Start(ctx, src)
	idx, err := loader.Wait(ctx)
	if err != nil {
		return err
	}

	var cache chat.ContextCache
	if e.cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     e.cfg.Redis.Addr,
			Password: e.cfg.Redis.Password,
			DB:       e.cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		cache = chat.NewRedisContextCache(client, e.cfg.Redis.TTL)
		e.log.Info("context cache enabled", slog.String("redis", e.cfg.Redis.Addr))
	}

	srv := chat.NewServer(
		annotate.NewBuilder(idx, highlight.New(nil), e.cfg.Panel.Annotate(), e.log),
		backend,
		chat.ServerOptions{
			DefaultModel:  e.cfg.Ollama.DefaultModel,
			AllowedModels: e.cfg.Ollama.AllowedModels(),
			Cache:         cache,
			Logger:        e.log,
		},
	)
	httpSrv := &http.Server{
		Addr:              e.cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: e.cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("chat server listening", slog.String("addr", e.cfg.Server.Addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	e.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
