package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := Start(context.Background(), "ingest", "req-1")
	_, load := StartChild(ctx, "load")
	time.Sleep(time.Millisecond)
	load.End()
	_, build := StartChild(ctx, "build")
	build.SetAttr("documents", 3)
	build.End()
	root.End()

	assert.Same(t, root, FromContext(ctx))
	require.Len(t, root.Children(), 2)
	assert.Equal(t, "req-1", root.Children()[1].TraceID)
	assert.GreaterOrEqual(t, load.Duration(), time.Millisecond)

	d := root.Duration()
	root.End()
	assert.Equal(t, d, root.Duration())

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var last map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, "build", last["span"])
	assert.Equal(t, 1.0, last["depth"])
	assert.Equal(t, 3.0, last["documents"])
}

func TestStartChildWithoutParent(t *testing.T) {
	ctx, span := StartChild(context.Background(), "orphan")
	assert.Same(t, span, FromContext(ctx))
	assert.Empty(t, span.TraceID)
}
