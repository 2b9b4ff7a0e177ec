package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openScratch(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	if _, err := conn.Exec("CREATE TABLE words (id INTEGER PRIMARY KEY, word TEXT)"); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	return conn
}

func insertWord(word string) WriteFunc {
	return func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO words (word) VALUES (?)", word)
		return err
	}
}

func countWords(t *testing.T, conn *sql.DB) int {
	t.Helper()
	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM words").Scan(&n); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	return n
}

func TestBatchWriterTransactions(t *testing.T) {
	conn := openScratch(t)
	bw := NewBatchWriter(conn, 2, 0)

	for _, w := range []string{"perro", "corre", "parque"} {
		if err := bw.Submit(insertWord(w)); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	doneCh := make(chan error, 1)
	go func() { doneCh <- bw.Close() }()
	select {
	case err := <-doneCh:
		if err != nil {
			t.Fatalf("close failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for batch commit/close")
	}

	if n := countWords(t, conn); n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
	if got := bw.Committed(); got != 3 {
		t.Fatalf("expected 3 committed writes, got %d", got)
	}
}

func TestBatchWriterRollback(t *testing.T) {
	conn := openScratch(t)
	bw := NewBatchWriter(conn, 2, 0)
	errCh := make(chan error, 1)
	bw.OnError = func(e error) { errCh <- e }

	// The second write fails, so the whole batch rolls back.
	_ = bw.Submit(insertWord("perro"))
	_ = bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		return fmt.Errorf("intentional error")
	})

	if err := bw.Close(); err == nil || !strings.Contains(err.Error(), "intentional") {
		t.Fatalf("expected Close to return the batch error, got %v", err)
	}
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected error, got nil")
		}
	default:
		t.Fatal("expected OnError to be called")
	}
	if n := countWords(t, conn); n != 0 {
		t.Fatalf("expected 0 rows (rollback), got %d", n)
	}
	if got := bw.Committed(); got != 0 {
		t.Fatalf("expected nothing committed, got %d", got)
	}
}

func TestBatchWriterFlushesBySize(t *testing.T) {
	bw := NewBatchWriter(nil, 5, 0)
	var mu sync.Mutex
	called := 0
	for i := 0; i < 12; i++ {
		if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			mu.Lock()
			called++
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if called != 12 {
		t.Fatalf("expected 12 calls, got %d", called)
	}
}

func TestBatchWriterFlushesOnInterval(t *testing.T) {
	bw := NewBatchWriter(nil, 10, 20*time.Millisecond)
	defer bw.Close()
	ran := make(chan struct{}, 1)
	if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		ran <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("interval flush did not run the write")
	}
}

func TestBatchWriterSubmitAfterClose(t *testing.T) {
	bw := NewBatchWriter(nil, 1, 0)
	if err := bw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := bw.Submit(func(context.Context, *sql.Tx) error { return nil }); err != ErrBatchWriterClosed {
		t.Fatalf("expected ErrBatchWriterClosed, got %v", err)
	}
	if err := bw.Close(); err != ErrBatchWriterClosed {
		t.Fatalf("expected ErrBatchWriterClosed on second close, got %v", err)
	}
}

func TestBatchWriterDropsBatchAfterShutdown(t *testing.T) {
	bw := NewBatchWriter(nil, 1, 0)
	defer bw.Close()
	errCh := make(chan error, 1)
	bw.OnError = func(e error) { errCh <- e }

	blocker := make(chan struct{})
	// The committer blocks on the first batch; the next two fill the queue.
	noop := func(context.Context, *sql.Tx) error { return nil }
	if err := bw.Submit(func(context.Context, *sql.Tx) error {
		<-blocker
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	_ = bw.Submit(noop)
	_ = bw.Submit(noop)

	bw.cancel()
	if err := bw.Submit(noop); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	close(blocker)

	select {
	case e := <-errCh:
		if e == nil || !strings.Contains(e.Error(), "dropping batch") {
			t.Fatalf("unexpected OnError value: %v", e)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected OnError to be called when batch dropped")
	}
}
