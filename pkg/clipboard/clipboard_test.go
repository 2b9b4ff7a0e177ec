package clipboard

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{ calls int }

func (f *failingSink) Write(context.Context, string) error {
	f.calls++
	return errors.New("no display")
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestFallbackUsedWhenPrimaryFails(t *testing.T) {
	primary := &failingSink{}
	var buf bytes.Buffer
	sink := WithFallback(primary, OSC52{W: &buf})

	ok := Copy(context.Background(), sink, "hola ñandú", quiet())
	require.True(t, ok)
	assert.Equal(t, 1, primary.calls)

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "\x1b]52;c;"))
	payload := strings.TrimSuffix(strings.TrimPrefix(out, "\x1b]52;c;"), "\a")
	decoded, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	assert.Equal(t, "hola ñandú", string(decoded))
}

func TestCopyReportsFailure(t *testing.T) {
	sink := WithFallback(&failingSink{}, OSC52{})
	assert.False(t, Copy(context.Background(), sink, "x", quiet()))
	assert.False(t, Copy(context.Background(), nil, "x", quiet()))
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.txt")
	require.True(t, Copy(context.Background(), File{Path: path}, "texto", quiet()))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "texto", string(b))
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	assert.False(t, Copy(ctx, OSC52{W: &buf}, "x", quiet()))
	assert.Zero(t, buf.Len())
}
