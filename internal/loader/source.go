package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/resilience"
)

// ErrTooLarge is returned when a source exceeds the configured byte limit.
var ErrTooLarge = errors.New("source exceeds size limit")

// SourceLoader reads local files and http(s) URLs, then chunks the content
// as Markdown.
type SourceLoader struct {
	client   *http.Client
	cfg      config.LoaderConfig
	defaults Options
	logger   *slog.Logger
}

// NewSourceLoader creates a SourceLoader. A nil client gets one with
// cfg.HTTPTimeout.
func NewSourceLoader(cfg config.LoaderConfig, client *http.Client) *SourceLoader {
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return &SourceLoader{
		client: client,
		cfg:    cfg,
		defaults: Options{
			ChunkType:     cfg.ChunkType,
			MaxCharacters: cfg.MaxCharacters,
		},
		logger: slog.Default().With("component", "source-loader"),
	}
}

// Load fetches source and segments it. Zero-valued fields of opts fall back
// to the loader's configured defaults.
func (l *SourceLoader) Load(ctx context.Context, source string, opts Options) ([]Chunk, error) {
	if opts.ChunkType == "" {
		opts.ChunkType = l.defaults.ChunkType
	}
	if opts.MaxCharacters == 0 {
		opts.MaxCharacters = l.defaults.MaxCharacters
	}
	if err := ValidateOptions(opts); err != nil {
		return nil, err
	}

	start := time.Now()
	base := make(map[string]any, len(opts.Metadata)+2)
	maps.Copy(base, opts.Metadata)
	base["source"] = source

	var data []byte
	var err error
	if isURL(source) {
		data, err = l.fetchURL(ctx, source)
		base["url"] = source
	} else {
		data, err = l.readFile(source)
		base["filename"] = filepath.Base(source)
	}
	if err != nil {
		return nil, err
	}

	chunks := Segment(data, opts, base)
	l.logger.Info("source loaded",
		"source", source,
		"bytes", len(data),
		"chunk_type", opts.ChunkType,
		"chunks", len(chunks),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return chunks, nil
}

func isURL(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (l *SourceLoader) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if l.cfg.MaxBytes > 0 && info.Size() > l.cfg.MaxBytes {
		return nil, fmt.Errorf("%s is %d bytes: %w", path, info.Size(), ErrTooLarge)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func (l *SourceLoader) fetchURL(ctx context.Context, source string) ([]byte, error) {
	var data []byte
	retryCfg := resilience.RetryConfig{MaxAttempts: l.cfg.RetryAttempts}
	err := resilience.Retry(ctx, "fetch "+source, retryCfg, func() error {
		body, err := l.fetchOnce(ctx, source)
		if err != nil {
			return err
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (l *SourceLoader) fetchOnce(ctx context.Context, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("building request for %s: %w", source, err))
	}
	req.Header.Set("Accept", "text/markdown, text/plain;q=0.9, */*;q=0.5")
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("fetching %s: unexpected status %s", source, resp.Status)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, resilience.Permanent(statusErr)
	}

	reader := io.Reader(resp.Body)
	if l.cfg.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, l.cfg.MaxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", source, err)
	}
	if l.cfg.MaxBytes > 0 && int64(len(data)) > l.cfg.MaxBytes {
		return nil, resilience.Permanent(fmt.Errorf("%s: %w", source, ErrTooLarge))
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text") && resp.Header.Get("Content-Type") != "" {
		l.logger.Warn("non-text content type, parsing as markdown anyway",
			"source", source,
			"content_type", resp.Header.Get("Content-Type"),
		)
	}
	return data, nil
}
