package retriever

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"support-agent/internal/common/llm"
	"support-agent/internal/common/text"
	"support-agent/internal/models"
)

// ErrIndexUnavailable is returned by a MemoryIndex marked unavailable.
var ErrIndexUnavailable = errors.New("index unavailable")

type memDoc struct {
	chunk  models.Chunk
	vector []float32
	terms  map[string]int
	length int
}

// MemoryIndex is an in-process corpus for local runs and tests. Keyword
// search scores with BM25.
type MemoryIndex struct {
	mu          sync.RWMutex
	docs        []memDoc
	docFreq     map[string]int
	totalLength int
	embedder    llm.Embedder
	unavailable bool
}

func NewMemoryIndex(embedder llm.Embedder) *MemoryIndex {
	return &MemoryIndex{embedder: embedder, docFreq: make(map[string]int)}
}

// Add embeds and indexes chunks.
func (m *MemoryIndex) Add(ctx context.Context, chunks ...models.Chunk) error {
	for _, c := range chunks {
		vec, err := m.embedder.Embed(ctx, c.Text)
		if err != nil {
			return err
		}
		terms := make(map[string]int)
		tokens := text.ContentTerms(c.Text)
		for _, t := range tokens {
			terms[t]++
		}

		m.mu.Lock()
		for t := range terms {
			m.docFreq[t]++
		}
		m.docs = append(m.docs, memDoc{chunk: c, vector: vec, terms: terms, length: len(tokens)})
		m.totalLength += len(tokens)
		m.mu.Unlock()
	}
	return nil
}

// SetUnavailable makes every search fail, simulating an outage.
func (m *MemoryIndex) SetUnavailable(v bool) {
	m.mu.Lock()
	m.unavailable = v
	m.mu.Unlock()
}

func (m *MemoryIndex) SemanticSearch(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unavailable {
		return nil, ErrIndexUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(m.docs))
	for _, d := range m.docs {
		score := cosine(vector, d.vector)
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{Chunk: d.chunk, Score: score})
	}
	return topK(hits, k), nil
}

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

func (m *MemoryIndex) KeywordSearch(ctx context.Context, query string, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.unavailable {
		return nil, ErrIndexUnavailable
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.docs) == 0 {
		return nil, nil
	}

	queryTerms := text.TermSet(query)
	n := float64(len(m.docs))
	avgLen := float64(m.totalLength) / n

	var hits []Hit
	for _, d := range m.docs {
		score := 0.0
		for t := range queryTerms {
			tf := float64(d.terms[t])
			if tf == 0 {
				continue
			}
			df := float64(m.docFreq[t])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			score += idf * tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(d.length)/avgLen))
		}
		if score > 0 {
			hits = append(hits, Hit{Chunk: d.chunk, Score: score})
		}
	}
	return topK(hits, k), nil
}

func topK(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.ChunkID < hits[j].Chunk.ChunkID
	})
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
