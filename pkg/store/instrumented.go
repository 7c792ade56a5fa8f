package store

import (
	"context"
	"time"

	"github.com/ndltd-tw/papergraph/pkg/common"
	"github.com/ndltd-tw/papergraph/pkg/metrics"
)

// Instrumented wraps a DocumentStore and records call counts and latency
// for every operation.
type Instrumented struct {
	next DocumentStore
}

var _ DocumentStore = (*Instrumented)(nil)

func NewInstrumented(next DocumentStore) *Instrumented {
	return &Instrumented{next: next}
}

func (s *Instrumented) FetchDocument(ctx context.Context, uid string) (common.Document, error) {
	start := time.Now()
	doc, err := s.next.FetchDocument(ctx, uid)
	metrics.ObserveStoreCall("fetch_document", start, err)
	return doc, err
}

func (s *Instrumented) FetchDocuments(ctx context.Context, uids []string) (map[string]common.Document, error) {
	start := time.Now()
	docs, err := s.next.FetchDocuments(ctx, uids)
	metrics.ObserveStoreCall("fetch_documents", start, err)
	return docs, err
}

func (s *Instrumented) FetchEmbedding(ctx context.Context, uid string) (common.EmbeddingRecord, error) {
	start := time.Now()
	rec, err := s.next.FetchEmbedding(ctx, uid)
	metrics.ObserveStoreCall("fetch_embedding", start, err)
	return rec, err
}

func (s *Instrumented) VectorTopK(ctx context.Context, q KNNQuery) ([]common.ScoredCandidate, error) {
	start := time.Now()
	res, err := s.next.VectorTopK(ctx, q)
	metrics.ObserveStoreCall("vector_top_k", start, err)
	return res, err
}

func (s *Instrumented) FullTextSearch(ctx context.Context, query string, limit int) ([]common.Document, error) {
	start := time.Now()
	res, err := s.next.FullTextSearch(ctx, query, limit)
	metrics.ObserveStoreCall("full_text_search", start, err)
	return res, err
}

func (s *Instrumented) AggregateTerms(ctx context.Context, field string, year int) ([]common.FieldBucket, error) {
	start := time.Now()
	res, err := s.next.AggregateTerms(ctx, field, year)
	metrics.ObserveStoreCall("aggregate_terms", start, err)
	return res, err
}

func (s *Instrumented) AggregateNested(ctx context.Context, outerField, innerField string, year int) ([]common.NestedBucket, error) {
	start := time.Now()
	res, err := s.next.AggregateNested(ctx, outerField, innerField, year)
	metrics.ObserveStoreCall("aggregate_nested", start, err)
	return res, err
}

func (s *Instrumented) CountDocuments(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.next.CountDocuments(ctx)
	metrics.ObserveStoreCall("count_documents", start, err)
	return n, err
}

func (s *Instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	metrics.ObserveStoreCall("ping", start, err)
	return err
}
