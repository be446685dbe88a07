package retriever

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "support-agent/internal/common/errors"
	"support-agent/internal/common/metrics"
	"support-agent/internal/models"
)

// ElasticIndex searches a knowledge index whose documents carry chunk_id,
// document_id, title, content and a dense_vector "embedding" field
// configured for cosine similarity.
type ElasticIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticIndex(client *elasticsearch.Client, index string) *ElasticIndex {
	return &ElasticIndex{client: client, index: index}
}

type esSource struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
}

type esResponse struct {
	Hits struct {
		Hits []struct {
			ID     string   `json:"_id"`
			Score  float64  `json:"_score"`
			Source esSource `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SemanticSearch runs an approximate kNN query. Elasticsearch reports
// cosine similarity as (1+cos)/2; hits are converted back to cosine.
func (e *ElasticIndex) SemanticSearch(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	body := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "embedding",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": k * 10,
		},
		"_source": []string{"chunk_id", "document_id", "title", "content"},
	}
	hits, err := e.search(ctx, "semantic", body, k)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].Score = 2*hits[i].Score - 1
	}
	return hits, nil
}

func (e *ElasticIndex) KeywordSearch(ctx context.Context, query string, k int) ([]Hit, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"title^2", "content"},
				"type":   "best_fields",
			},
		},
		"_source": []string{"chunk_id", "document_id", "title", "content"},
	}
	return e.search(ctx, "keyword", body, k)
}

func (e *ElasticIndex) search(ctx context.Context, kind string, body map[string]interface{}, k int) ([]Hit, error) {
	start := time.Now()
	defer func() {
		metrics.VectorSearchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewSearchQueryFailedError(kind, err)
	}
	size := k
	req := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  strings.NewReader(string(payload)),
		Size:  &size,
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, apperrors.NewIndexUnavailableError(e.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == 404 {
			return nil, apperrors.NewIndexUnavailableError(e.index, fmt.Errorf("index not found"))
		}
		return nil, apperrors.NewSearchQueryFailedError(kind, fmt.Errorf("elasticsearch: %s", res.Status()))
	}

	var parsed esResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewSearchQueryFailedError(kind, fmt.Errorf("decode: %w", err))
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		chunkID := h.Source.ChunkID
		if chunkID == "" {
			chunkID = h.ID
		}
		content := h.Source.Content
		if h.Source.Title != "" && !strings.HasPrefix(content, h.Source.Title) {
			content = h.Source.Title + "\n" + content
		}
		hits = append(hits, Hit{
			Chunk: models.Chunk{
				ChunkID:          chunkID,
				Text:             content,
				SourceDocumentID: h.Source.DocumentID,
			},
			Score: h.Score,
		})
	}
	return hits, nil
}
