// Package integration wires the real loader, retriever, ingest service,
// HTTP handler, middleware chain and health checks together behind an
// httptest server. Redis is used when BM25_TEST_REDIS_ADDR is set;
// everything else runs in process.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const petsDoc = `# Pets

Notes on household animals.

## Cats

The cat sat on the mat and ignored everyone.

## Dogs

The dog ran across the park after a ball.
`

const toolsDoc = `# Tools

A hammer drives nails.

A saw cuts wood.
`

func newStack(t *testing.T) (*httptest.Server, string) {
	t.Helper()

	docs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pets.md":
			io.WriteString(w, petsDoc)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(docs.Close)

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Loader.RetryAttempts = 1

	m := metrics.New(prometheus.NewRegistry())
	r := retriever.New(retriever.WithLoader(loader.NewSourceLoader(cfg.Loader, docs.Client())))

	ingestOpts := []ingest.Option{ingest.WithMetrics(m)}
	handlerOpts := []handler.Option{handler.WithMetrics(m)}
	if addr := os.Getenv("BM25_TEST_REDIS_ADDR"); addr != "" {
		client, err := pkgredis.NewClient(config.RedisConfig{Addr: addr, PoolSize: 4})
		require.NoError(t, err)
		t.Cleanup(func() { client.Close() })
		qc := cache.New(client, time.Minute, pkgredis.IsNilError)
		require.NoError(t, qc.Invalidate(context.Background()))
		ingestOpts = append(ingestOpts, ingest.WithCache(qc))
		handlerOpts = append(handlerOpts, handler.WithCache(qc))
	}
	svc := ingest.NewService(r, ingestOpts...)
	h := handler.New(r, svc, cfg.Retriever, handlerOpts...)

	checker := health.NewChecker()
	checker.Register("corpus", func(ctx context.Context) health.ComponentHealth {
		if !r.Ready() {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no corpus ingested"}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(5 * time.Second)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	srv := httptest.NewServer(chain)
	t.Cleanup(srv.Close)
	return srv, docs.URL
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func getQuery(t *testing.T, url string) (int, handler.QueryResponse) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out handler.QueryResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestIngestURLThenQuery(t *testing.T) {
	srv, docsURL := newStack(t)

	status, _ := getQuery(t, srv.URL+"/api/v1/query?q=cat")
	assert.Equal(t, http.StatusConflict, status)

	resp, body := postJSON(t, srv.URL+"/api/v1/ingest", fmt.Sprintf(`{"source":%q,"metadata":{"team":"pets"}}`, docsURL+"/pets.md"))
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))

	status, out := getQuery(t, srv.URL+"/api/v1/query?q=cat+mat&top_k=3")
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, out.Results)
	top := out.Results[0]
	assert.Contains(t, top.Text, "The cat sat on the mat")
	assert.Equal(t, "Cats", top.Metadata["title"])
	assert.Equal(t, "pets", top.Metadata["team"])
	assert.Equal(t, docsURL+"/pets.md", top.ContentPath)
	for i := 1; i < len(out.Results); i++ {
		assert.GreaterOrEqual(t, out.Results[i-1].Score, out.Results[i].Score)
	}
}

func TestFailedIngestKeepsCorpus(t *testing.T) {
	srv, docsURL := newStack(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "tools.md")
	require.NoError(t, os.WriteFile(path, []byte(toolsDoc), 0o644))

	resp, _ := postJSON(t, srv.URL+"/api/v1/ingest", fmt.Sprintf(`{"source":%q,"chunk_type":"chunk_by_paragraph"}`, path))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = postJSON(t, srv.URL+"/api/v1/ingest", fmt.Sprintf(`{"source":%q}`, docsURL+"/missing.md"))
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	status, out := getQuery(t, srv.URL+"/api/v1/query?q=hammer")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, out.Results, 1)
	assert.Contains(t, out.Results[0].Text, "hammer")
	assert.Equal(t, uint64(1), out.Generation)
}

func TestReadinessFollowsCorpus(t *testing.T) {
	srv, docsURL := newStack(t)

	resp, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	// Degraded still serves traffic.
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ingestResp, _ := postJSON(t, srv.URL+"/api/v1/ingest", fmt.Sprintf(`{"source":%q}`, docsURL+"/pets.md"))
	require.Equal(t, http.StatusOK, ingestResp.StatusCode)

	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	var report health.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, health.StatusUp, report.Status)
}
