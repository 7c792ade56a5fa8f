// Package storetest provides an in-memory store.DocumentStore for tests.
package storetest

import (
	"context"
	"strings"
	"sync"

	"github.com/ndltd-tw/papergraph/pkg/common"
	"github.com/ndltd-tw/papergraph/pkg/store"
)

// Operation names used for call counting and error injection.
const (
	OpFetchDocument  = "fetch_document"
	OpFetchDocuments = "fetch_documents"
	OpFetchEmbedding = "fetch_embedding"
	OpVectorTopK     = "vector_top_k"
	OpFullTextSearch = "full_text_search"
	OpAggregateTerms = "aggregate_terms"
	OpAggregateNest  = "aggregate_nested"
	OpCount          = "count_documents"
	OpPing           = "ping"
)

// Store is a fake document store. Each document gets a one-dimensional
// embedding holding its registration index, which lets VectorTopK map a
// query vector back to the document whose neighbours were configured.
type Store struct {
	mu sync.Mutex

	docs      map[string]common.Document
	order     []string
	neighbors map[string][]common.ScoredCandidate

	Terms  map[string][]common.FieldBucket
	Nested []common.NestedBucket
	Total  int64

	// Errors fails every call of an operation.
	Errors map[string]error
	// EmbeddingErrors fails FetchEmbedding for a single uid.
	EmbeddingErrors map[string]error

	calls   map[string]int
	queries []store.KNNQuery
	aggs    []string
	years   []int
}

var _ store.DocumentStore = (*Store)(nil)

func New() *Store {
	return &Store{
		docs:            map[string]common.Document{},
		neighbors:       map[string][]common.ScoredCandidate{},
		Terms:           map[string][]common.FieldBucket{},
		Errors:          map[string]error{},
		EmbeddingErrors: map[string]error{},
		calls:           map[string]int{},
	}
}

// Add registers documents with the given uids. Titles default to "Title <uid>".
func (s *Store) Add(uids ...string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, uid := range uids {
		if _, ok := s.docs[uid]; ok {
			continue
		}
		s.docs[uid] = common.Document{
			UID:      uid,
			Title:    "Title " + uid,
			Abstract: "Abstract " + uid,
		}
		s.order = append(s.order, uid)
	}
	return s
}

// AddDocument registers a fully populated document.
func (s *Store) AddDocument(doc common.Document) *Store {
	s.Add(doc.UID)
	s.mu.Lock()
	s.docs[doc.UID] = doc
	s.mu.Unlock()
	return s
}

// Link sets the ranked neighbours returned for uid. Scores are given in
// the same order as targets.
func (s *Store) Link(uid string, targets []string, scores []float64) *Store {
	s.Add(uid)
	s.Add(targets...)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]common.ScoredCandidate, len(targets))
	for i, t := range targets {
		score := 1.0 - float64(i)*0.1
		if i < len(scores) {
			score = scores[i]
		}
		out[i] = common.ScoredCandidate{UID: t, Title: s.docs[t].Title, Score: score}
	}
	s.neighbors[uid] = out
	return s
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of calls across all operations.
func (s *Store) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// Queries returns the KNN queries received so far.
func (s *Store) Queries() []store.KNNQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.KNNQuery(nil), s.queries...)
}

// AggregatedFields returns the fields of every aggregation, in call order.
// Nested aggregations are recorded as "outer>inner".
func (s *Store) AggregatedFields() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.aggs...)
}

// AggregatedYears returns the year filter of every aggregation, in call order.
func (s *Store) AggregatedYears() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.years...)
}

func (s *Store) begin(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	return s.Errors[op]
}

func (s *Store) FetchDocument(ctx context.Context, uid string) (common.Document, error) {
	if err := s.begin(OpFetchDocument); err != nil {
		return common.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uid]
	if !ok {
		return common.Document{}, common.NewNotFoundError("get", uid)
	}
	return doc, nil
}

func (s *Store) FetchDocuments(ctx context.Context, uids []string) (map[string]common.Document, error) {
	if err := s.begin(OpFetchDocuments); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]common.Document, len(uids))
	for _, uid := range uids {
		doc, ok := s.docs[uid]
		if !ok {
			return nil, common.NewNotFoundError("mget", uid)
		}
		out[uid] = doc
	}
	return out, nil
}

func (s *Store) FetchEmbedding(ctx context.Context, uid string) (common.EmbeddingRecord, error) {
	if err := s.begin(OpFetchEmbedding); err != nil {
		return common.EmbeddingRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.EmbeddingErrors[uid]; err != nil {
		return common.EmbeddingRecord{}, err
	}
	for i, u := range s.order {
		if u == uid {
			return common.EmbeddingRecord{UID: uid, Embedding: []float32{float32(i)}}, nil
		}
	}
	return common.EmbeddingRecord{}, common.NewNotFoundError("get", uid)
}

func (s *Store) VectorTopK(ctx context.Context, q store.KNNQuery) ([]common.ScoredCandidate, error) {
	if err := s.begin(OpVectorTopK); err != nil {
		return nil, err
	}
	if err := q.Normalize(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)

	idx := int(q.Vector[0])
	if idx < 0 || idx >= len(s.order) {
		return []common.ScoredCandidate{}, nil
	}
	out := make([]common.ScoredCandidate, 0, q.K)
	for _, c := range s.neighbors[s.order[idx]] {
		if len(out) == q.K {
			break
		}
		doc := s.docs[c.UID]
		if q.NarrowField != "" && (doc.NarrowField == nil || *doc.NarrowField != q.NarrowField) {
			continue
		}
		if q.DetailedField != "" && (doc.DetailedField == nil || *doc.DetailedField != q.DetailedField) {
			continue
		}
		c.Score = common.RoundScore(c.Score, q.RoundDecimal)
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) FullTextSearch(ctx context.Context, query string, limit int) ([]common.Document, error) {
	if err := s.begin(OpFullTextSearch); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []common.Document{}
	for _, uid := range s.order {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(s.docs[uid].Title), strings.ToLower(query)) {
			out = append(out, s.docs[uid])
		}
	}
	return out, nil
}

func (s *Store) AggregateTerms(ctx context.Context, field string, year int) ([]common.FieldBucket, error) {
	if err := s.begin(OpAggregateTerms); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggs = append(s.aggs, field)
	s.years = append(s.years, year)
	return append([]common.FieldBucket{}, s.Terms[field]...), nil
}

func (s *Store) AggregateNested(ctx context.Context, outerField, innerField string, year int) ([]common.NestedBucket, error) {
	if err := s.begin(OpAggregateNest); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aggs = append(s.aggs, outerField+">"+innerField)
	s.years = append(s.years, year)
	return append([]common.NestedBucket{}, s.Nested...), nil
}

func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	if err := s.begin(OpCount); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Total != 0 {
		return s.Total, nil
	}
	return int64(len(s.docs)), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.begin(OpPing)
}
