package retriever

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"support-agent/internal/models"
)

func hit(id string, score float64) Hit {
	return Hit{Chunk: models.Chunk{ChunkID: id, Text: "text " + id, SourceDocumentID: "doc-" + id}, Score: score}
}

func ids(chunks []models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ChunkID
	}
	return out
}

func TestRerank(t *testing.T) {
	tests := []struct {
		name     string
		semantic []Hit
		keyword  []Hit
		weights  Weights
		k        int
		want     []string
	}{
		{
			name:     "chunk found by both searches wins",
			semantic: []Hit{hit("a", 0.9), hit("b", 0.8)},
			keyword:  []Hit{hit("b", 12), hit("c", 6)},
			weights:  Weights{Semantic: 0.7, Keyword: 0.3},
			k:        5,
			want:     []string{"b", "a", "c"},
		},
		{
			name:     "keyword only weighting",
			semantic: []Hit{hit("a", 0.99)},
			keyword:  []Hit{hit("c", 2), hit("d", 8)},
			weights:  Weights{Semantic: 0, Keyword: 1},
			k:        5,
			want:     []string{"d", "c", "a"},
		},
		{
			name:     "ties break on chunk id",
			semantic: []Hit{hit("z", 0.5), hit("m", 0.5)},
			weights:  Weights{Semantic: 1},
			k:        5,
			want:     []string{"m", "z"},
		},
		{
			name:     "truncates to k",
			semantic: []Hit{hit("a", 0.9), hit("b", 0.7), hit("c", 0.5)},
			weights:  Weights{Semantic: 1},
			k:        2,
			want:     []string{"a", "b"},
		},
		{
			name:    "empty input",
			weights: Weights{Semantic: 0.7, Keyword: 0.3},
			k:       3,
			want:    []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Rerank(tt.semantic, tt.keyword, tt.weights, tt.k)))
		})
	}
}

func TestRerank_ScoresNormalised(t *testing.T) {
	got := Rerank(
		[]Hit{hit("a", 1.7), hit("b", -0.3)},
		[]Hit{hit("a", 20), hit("b", 10)},
		Weights{Semantic: 0.7, Keyword: 0.3},
		5,
	)
	assert.InDelta(t, 0.7*1+0.3*1, got[0].Score, 1e-9)
	assert.InDelta(t, 0.7*0+0.3*0.5, got[1].Score, 1e-9)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}
