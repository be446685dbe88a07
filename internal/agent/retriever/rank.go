package retriever

import (
	"math"
	"sort"

	"support-agent/internal/models"
)

// Weights are the re-rank coefficients for the two score components.
type Weights struct {
	Semantic float64
	Keyword  float64
}

type candidate struct {
	chunk    models.Chunk
	semantic float64
	keyword  float64
}

// Rerank merges both candidate lists, deduplicates by chunk id and orders
// by w.Semantic*semantic + w.Keyword*keyword. Semantic scores are clamped
// to [0,1]; keyword scores are divided by the largest keyword score in the
// batch. Ties break on chunk id so the order is stable. At most k chunks
// are returned.
func Rerank(semantic, keyword []Hit, w Weights, k int) []models.Chunk {
	byID := make(map[string]*candidate, len(semantic)+len(keyword))
	var order []string
	get := func(c models.Chunk) *candidate {
		if cand, ok := byID[c.ChunkID]; ok {
			return cand
		}
		cand := &candidate{chunk: c}
		byID[c.ChunkID] = cand
		order = append(order, c.ChunkID)
		return cand
	}

	for _, h := range semantic {
		cand := get(h.Chunk)
		cand.semantic = math.Max(cand.semantic, clamp01(h.Score))
	}

	maxKeyword := 0.0
	for _, h := range keyword {
		if h.Score > maxKeyword {
			maxKeyword = h.Score
		}
	}
	for _, h := range keyword {
		cand := get(h.Chunk)
		if maxKeyword > 0 {
			cand.keyword = math.Max(cand.keyword, clamp01(h.Score/maxKeyword))
		}
	}

	ranked := make([]models.Chunk, 0, len(order))
	for _, id := range order {
		cand := byID[id]
		c := cand.chunk
		c.Score = w.Semantic*cand.semantic + w.Keyword*cand.keyword
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ChunkID < ranked[j].ChunkID
	})

	if k >= 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
