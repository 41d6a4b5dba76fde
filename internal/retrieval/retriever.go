// Package retrieval gathers supporting passages for a query from the
// vector-indexed content set.
package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/parchmentlabs/parchment/internal/metrics"
	"github.com/parchmentlabs/parchment/internal/vectordb"
)

// ErrNoContext signals that no index produced any match. Callers fall
// back to web search; this is not a failure.
var ErrNoContext = errors.New("no relevant context found")

const (
	perIndexTopK = 5
	maxResults   = 5
)

// Result is one index's contribution to the research context.
type Result struct {
	IndexID         string  `json:"index_id"`
	Text            string  `json:"text"`
	SimilarityScore float64 `json:"similarity_score"`
}

// Bundle is the retrieval outcome across all queried indexes.
type Bundle struct {
	Best  Result   `json:"best"`
	Top   []Result `json:"top"`
	Total int      `json:"total"`
}

// Embedder turns the query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorQuerier runs a similarity search against one index.
type VectorQuerier interface {
	Query(ctx context.Context, indexID string, vector []float32, topK int) ([]vectordb.ScoredChunk, error)
}

// Retriever implements the index-search half of research gathering.
type Retriever struct {
	embedder Embedder
	vectors  VectorQuerier
	logger   *zap.Logger
}

func NewRetriever(embedder Embedder, vectors VectorQuerier, logger *zap.Logger) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, vectors: vectors, logger: logger}
}

// Retrieve queries each index and assembles the best-scoring passages.
// Indexes without a vector collection are skipped. Zero matches across
// every index returns ErrNoContext.
func (r *Retriever) Retrieve(ctx context.Context, query string, indexIDs []string) (*Bundle, error) {
	if len(indexIDs) == 0 {
		metrics.RetrievalQueries.WithLabelValues("empty").Inc()
		return nil, ErrNoContext
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		metrics.RetrievalQueries.WithLabelValues("error").Inc()
		return nil, err
	}

	var results []Result
	for _, id := range indexIDs {
		chunks, err := r.vectors.Query(ctx, id, vector, perIndexTopK)
		if err != nil {
			if errors.Is(err, vectordb.ErrCollectionNotFound) {
				r.logger.Debug("Index has no vector collection, skipping",
					zap.String("index_id", id))
				continue
			}
			// a single failing index does not abort the whole retrieval
			r.logger.Warn("Vector query failed for index",
				zap.String("index_id", id), zap.Error(err))
			continue
		}
		if len(chunks) == 0 {
			continue
		}
		results = append(results, indexResult(id, chunks))
	}

	if len(results) == 0 {
		metrics.RetrievalQueries.WithLabelValues("no_context").Inc()
		return nil, ErrNoContext
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].SimilarityScore > results[j].SimilarityScore
	})
	total := len(results)
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	metrics.RetrievalQueries.WithLabelValues("ok").Inc()
	return &Bundle{Best: results[0], Top: results, Total: total}, nil
}

// indexResult folds one index's chunks into a Result. The score is the
// maximum chunk similarity; when the engine returned no scores at all the
// fallback is min(len(text)/1000, 1.0) so longer matches rank higher in a
// deterministic way.
func indexResult(indexID string, chunks []vectordb.ScoredChunk) Result {
	var parts []string
	best := 0.0
	scored := false
	for _, ch := range chunks {
		if ch.Text != "" {
			parts = append(parts, ch.Text)
		}
		if ch.Scored {
			scored = true
			if ch.Score > best {
				best = ch.Score
			}
		}
	}
	text := strings.Join(parts, "\n\n")
	if !scored {
		best = float64(len(text)) / 1000.0
		if best > 1.0 {
			best = 1.0
		}
	}
	return Result{IndexID: indexID, Text: text, SimilarityScore: best}
}

// FormatBrief renders a bundle as the research brief text handed to the
// writing stage.
func FormatBrief(b *Bundle) string {
	var sb strings.Builder
	for i, r := range b.Top {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		sb.WriteString(r.Text)
	}
	return sb.String()
}
