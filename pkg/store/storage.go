package store

import (
	"context"

	"github.com/ndltd-tw/papergraph/pkg/common"
)

// DocumentStore is the gateway to the search engine holding the corpus.
// Implementations are long-lived and safe for concurrent use; a single
// instance is shared by all requests.
//
// All methods may fail with common.ErrUpstreamUnavailable when the engine
// cannot be reached and with common.ErrValidation when the engine rejects a
// malformed query. Lookups by uid fail with common.ErrNotFound.
type DocumentStore interface {
	FetchDocument(ctx context.Context, uid string) (common.Document, error)
	// FetchDocuments returns one document per distinct uid. It fails with
	// common.ErrNotFound if any uid is missing.
	FetchDocuments(ctx context.Context, uids []string) (map[string]common.Document, error)
	FetchEmbedding(ctx context.Context, uid string) (common.EmbeddingRecord, error)

	// VectorTopK returns at most q.K candidates ordered by descending score.
	VectorTopK(ctx context.Context, q KNNQuery) ([]common.ScoredCandidate, error)
	FullTextSearch(ctx context.Context, query string, limit int) ([]common.Document, error)

	AggregateTerms(ctx context.Context, field string, year int) ([]common.FieldBucket, error)
	AggregateNested(ctx context.Context, outerField, innerField string, year int) ([]common.NestedBucket, error)
	CountDocuments(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
}

// KNNQuery describes a nearest-neighbour query.
//
// NumCandidates is the size of the candidate pool the engine considers
// before picking the top K. NarrowField and DetailedField are optional
// exact-match filters. Scores are rounded to RoundDecimal places.
type KNNQuery struct {
	Vector        []float32
	K             int
	NumCandidates int
	NarrowField   string
	DetailedField string
	RoundDecimal  int
}

// Normalize fills defaults and validates the query. It never touches the
// network, so callers can rely on it rejecting bad input up front.
func (q *KNNQuery) Normalize() error {
	if q.RoundDecimal == 0 {
		q.RoundDecimal = common.DefaultRoundDecimal
	}
	if err := common.ValidateRoundDecimal(q.RoundDecimal); err != nil {
		return err
	}
	if q.K < 1 {
		return common.NewValidationError("vector_top_k", "k", "must be at least 1")
	}
	if q.NumCandidates < q.K {
		q.NumCandidates = q.K
	}
	if len(q.Vector) == 0 {
		return common.NewValidationError("vector_top_k", "vector", "must not be empty")
	}
	return nil
}

// ValidateAggregationField rejects fields outside the aggregation whitelist.
func ValidateAggregationField(field string) error {
	if !common.IsAggregationField(field) {
		return common.NewValidationError("aggregate", field, "unsupported aggregation field")
	}
	return nil
}
