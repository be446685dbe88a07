package llm

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/zeebo/blake3"

	"support-agent/internal/common/text"
)

// HashEmbedder is a deterministic bag-of-words embedder using the hashing
// trick. It needs no network and backs local runs and the in-memory index.
type HashEmbedder struct {
	Dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{Dims: dims}
}

func (h *HashEmbedder) Embed(_ context.Context, s string) ([]float32, error) {
	vec := make([]float32, h.Dims)
	for _, term := range text.ContentTerms(s) {
		sum := blake3.Sum256([]byte(term))
		idx := binary.LittleEndian.Uint32(sum[:4]) % uint32(h.Dims)
		sign := float32(1)
		if sum[4]&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}
