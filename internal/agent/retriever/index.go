package retriever

import (
	"context"

	"support-agent/internal/models"
)

// Hit is one search result. Semantic hits score by cosine similarity,
// keyword hits by the index's lexical relevance score.
type Hit struct {
	Chunk models.Chunk
	Score float64
}

// Index is the knowledge corpus as seen by the retriever. Rebuilding it is
// the indexing job's concern.
type Index interface {
	SemanticSearch(ctx context.Context, vector []float32, k int) ([]Hit, error)
	KeywordSearch(ctx context.Context, query string, k int) ([]Hit, error)
}

type retrieverError string

func (e retrieverError) Error() string { return string(e) }

const errNoEmbedder = retrieverError("no embedder configured")
