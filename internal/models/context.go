package models

// Chunk is one retrieved knowledge-base passage.
type Chunk struct {
	ChunkID          string  `json:"chunkId" cbor:"1,keyasint"`
	Text             string  `json:"text" cbor:"2,keyasint"`
	Score            float64 `json:"score" cbor:"3,keyasint"`
	SourceDocumentID string  `json:"sourceDocumentId" cbor:"4,keyasint"`
}

// RetrievedContext is an immutable, relevance-ordered snapshot of chunks.
type RetrievedContext struct {
	chunks []Chunk
}

// NewRetrievedContext copies chunks into a new snapshot.
func NewRetrievedContext(chunks []Chunk) RetrievedContext {
	if len(chunks) == 0 {
		return RetrievedContext{}
	}
	cp := make([]Chunk, len(chunks))
	copy(cp, chunks)
	return RetrievedContext{chunks: cp}
}

// EmptyContext is the "no grounding available" snapshot.
func EmptyContext() RetrievedContext { return RetrievedContext{} }

// Chunks returns a copy of the chunks.
func (r RetrievedContext) Chunks() []Chunk {
	if len(r.chunks) == 0 {
		return nil
	}
	cp := make([]Chunk, len(r.chunks))
	copy(cp, r.chunks)
	return cp
}

func (r RetrievedContext) Len() int      { return len(r.chunks) }
func (r RetrievedContext) IsEmpty() bool { return len(r.chunks) == 0 }

// At returns the i-th chunk by value.
func (r RetrievedContext) At(i int) Chunk { return r.chunks[i] }

// SourceDocuments returns distinct document ids in relevance order.
func (r RetrievedContext) SourceDocuments() []string {
	seen := make(map[string]bool, len(r.chunks))
	var out []string
	for _, c := range r.chunks {
		if c.SourceDocumentID == "" || seen[c.SourceDocumentID] {
			continue
		}
		seen[c.SourceDocumentID] = true
		out = append(out, c.SourceDocumentID)
	}
	return out
}
