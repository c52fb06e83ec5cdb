// Command bm25 loads one or more sources, runs a single query and prints
// the ranked chunks as JSON on stdout. Logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/loader"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/internal/retriever/ranker"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bm25-retriever/pkg/logger"
)

type output struct {
	Query   string             `json:"query"`
	TopK    int                `json:"top_k"`
	Stats   retriever.Stats    `json:"corpus"`
	Results []retriever.Result `json:"results"`
}

func main() {
	configPath := flag.String("config", "", "optional path to config file")
	source := flag.String("source", "", "file path or URL to load; comma-separate several")
	query := flag.String("q", "", "query text")
	topK := flag.Int("top-k", retriever.DefaultTopK, "number of results")
	chunkType := flag.String("chunk-type", "", "chunk_by_title or chunk_by_paragraph")
	maxChars := flag.Int("max-characters", 0, "maximum characters per chunk (0 uses the config default)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))

	if *source == "" {
		fmt.Fprintln(os.Stderr, "usage: bm25 -source <path|url>[,<path|url>...] -q <query> [-top-k N]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := retriever.New(
		retriever.WithParams(ranker.Params{K1: cfg.Retriever.K1, B: cfg.Retriever.B}),
		retriever.WithLoader(loader.NewSourceLoader(cfg.Loader, &http.Client{Timeout: cfg.Loader.HTTPTimeout})),
	)
	opts := loader.Options{ChunkType: *chunkType, MaxCharacters: *maxChars}

	sources := splitSources(*source)
	if len(sources) == 1 {
		err = r.Process(ctx, sources[0], opts)
	} else {
		err = r.ProcessAll(ctx, sources, opts)
	}
	if err != nil {
		slog.Error("loading failed", "source", *source, "error", err)
		os.Exit(1)
	}

	results, err := r.Query(*query, *topK)
	if err != nil {
		slog.Error("query failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output{Query: *query, TopK: *topK, Stats: r.Stats(), Results: results}); err != nil {
		slog.Error("writing results failed", "error", err)
		os.Exit(1)
	}
}

func splitSources(raw string) []string {
	var sources []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}
	return sources
}
