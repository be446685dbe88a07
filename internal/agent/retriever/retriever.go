// Package retriever implements hybrid semantic and keyword retrieval over
// the knowledge index, with results cached through the cache manager.
package retriever

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"support-agent/internal/agent/cache"
	"support-agent/internal/common/llm"
	"support-agent/internal/common/logger"
	"support-agent/internal/models"
)

const cacheNamespace = "retrieval"

type Config struct {
	MaxChunks     int
	DefaultK      int
	Weights       Weights
	SearchTimeout time.Duration
	CacheTTL      time.Duration
}

type Retriever struct {
	index    Index
	embedder llm.Embedder
	cache    *cache.Manager
	config   Config
	logger   logger.Logger
}

func New(index Index, embedder llm.Embedder, c *cache.Manager, config Config, log logger.Logger) *Retriever {
	if config.MaxChunks <= 0 {
		config.MaxChunks = 10
	}
	if config.DefaultK <= 0 || config.DefaultK > config.MaxChunks {
		config.DefaultK = config.MaxChunks
	}
	return &Retriever{
		index:    index,
		embedder: embedder,
		cache:    c,
		config:   config,
		logger:   log.With(map[string]interface{}{"component": "retriever"}),
	}
}

// Retrieve returns up to k chunks relevant to query. It never fails: an
// unavailable index yields an empty context.
func (r *Retriever) Retrieve(ctx context.Context, query string, customer models.CustomerContext, k int) models.RetrievedContext {
	if k <= 0 {
		k = r.config.DefaultK
	}
	if k > r.config.MaxChunks {
		k = r.config.MaxChunks
	}

	// The cache holds the full MaxChunks ranking so any k can be served
	// from one entry.
	key := cache.Key(cacheNamespace, cache.Fingerprint(query, customer.Tier))
	if r.cache != nil {
		var cached []models.Chunk
		if r.cache.GetValue(ctx, key, &cached) {
			return models.NewRetrievedContext(topChunks(cached, k))
		}
	}

	semantic, keyword, complete := r.search(ctx, query, r.config.MaxChunks)
	ranked := Rerank(semantic, keyword, r.config.Weights, r.config.MaxChunks)

	r.logger.Debug("retrieval completed", map[string]interface{}{
		"semanticHits": len(semantic),
		"keywordHits":  len(keyword),
		"ranked":       len(ranked),
		"complete":     complete,
	})

	if len(ranked) > 0 && complete && r.cache != nil {
		if err := r.cache.PutValue(ctx, key, ranked, r.config.CacheTTL); err != nil {
			r.logger.Warn("failed to cache retrieval result", map[string]interface{}{
				"error": err,
			})
		}
	}
	return models.NewRetrievedContext(topChunks(ranked, k))
}

func topChunks(chunks []models.Chunk, k int) []models.Chunk {
	if len(chunks) > k {
		return chunks[:k]
	}
	return chunks
}

// search runs both sub-queries concurrently. complete is false when either
// of them failed.
func (r *Retriever) search(ctx context.Context, query string, k int) (semantic, keyword []Hit, complete bool) {
	if r.index == nil {
		return nil, nil, false
	}
	candidates := k * 3

	var semErr, kwErr error
	var g errgroup.Group
	g.Go(func() error {
		sctx, cancel := r.searchContext(ctx)
		defer cancel()
		if r.embedder == nil {
			semErr = errNoEmbedder
			return nil
		}
		vector, err := r.embedder.Embed(sctx, query)
		if err != nil {
			semErr = err
			return nil
		}
		semantic, semErr = r.index.SemanticSearch(sctx, vector, candidates)
		return nil
	})
	g.Go(func() error {
		sctx, cancel := r.searchContext(ctx)
		defer cancel()
		keyword, kwErr = r.index.KeywordSearch(sctx, query, candidates)
		return nil
	})
	_ = g.Wait()

	if semErr != nil {
		r.logger.Warn("semantic search failed", map[string]interface{}{"error": semErr})
		semantic = nil
	}
	if kwErr != nil {
		r.logger.Warn("keyword search failed", map[string]interface{}{"error": kwErr})
		keyword = nil
	}
	return semantic, keyword, semErr == nil && kwErr == nil
}

func (r *Retriever) searchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.config.SearchTimeout > 0 {
		return context.WithTimeout(ctx, r.config.SearchTimeout)
	}
	return context.WithCancel(ctx)
}
