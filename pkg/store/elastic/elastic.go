package elastic

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/ndltd-tw/papergraph/pkg/common"
	"github.com/ndltd-tw/papergraph/pkg/store"
	"github.com/ndltd-tw/papergraph/pkg/store/dsl"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

// Store implements store.DocumentStore on top of an Elasticsearch index
// whose documents carry a dense_vector field named "embedding".
type Store struct {
	es    *elasticsearch.Client
	index string
}

var _ store.DocumentStore = (*Store)(nil)

// NewStoreParams configures the connection to the search engine.
//
// InsecureSkipVerify disables TLS certificate checks, which is only meant
// for local clusters with self-signed certificates.
type NewStoreParams struct {
	Addresses []string
	Username  string
	Password  string
	Index     string

	CompressRequestBody bool
	InsecureSkipVerify  bool
	MaxRetries          int
}

func NewStore(params NewStoreParams) (*Store, error) {
	index := params.Index
	if index == "" {
		index = dsl.DefaultIndex
	}

	cfg := elasticsearch.Config{
		Addresses:           params.Addresses,
		Username:            params.Username,
		Password:            params.Password,
		CompressRequestBody: params.CompressRequestBody,
		MaxRetries:          params.MaxRetries,
	}
	if params.InsecureSkipVerify {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		cfg.Transport = tr
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &Store{es: es, index: index}, nil
}

func (s *Store) FetchDocument(ctx context.Context, uid string) (common.Document, error) {
	res, err := s.es.Get(
		s.index,
		uid,
		s.es.Get.WithContext(ctx),
		s.es.Get.WithSourceExcludes(dsl.ExcludedFields...),
	)
	var body dsl.GetResponse[common.Document]
	if err := decode("get", uid, res, err, &body); err != nil {
		return common.Document{}, err
	}
	if !body.Found {
		return common.Document{}, common.NewNotFoundError("get", uid)
	}
	if body.Source.UID == "" {
		body.Source.UID = uid
	}
	return body.Source, nil
}

func (s *Store) FetchDocuments(ctx context.Context, uids []string) (map[string]common.Document, error) {
	return dsl.CollectDocuments(uids, func(ids []string) ([]dsl.GetResponse[common.Document], error) {
		res, err := s.es.Mget(
			esutil.NewJSONReader(dsl.IdsBody(ids)),
			s.es.Mget.WithContext(ctx),
			s.es.Mget.WithIndex(s.index),
			s.es.Mget.WithSourceExcludes(dsl.ExcludedFields...),
		)
		var body dsl.MgetResponse[common.Document]
		if err := decode("mget", ids[0], res, err, &body); err != nil {
			return nil, err
		}
		return body.Docs, nil
	})
}

func (s *Store) FetchEmbedding(ctx context.Context, uid string) (common.EmbeddingRecord, error) {
	res, err := s.es.Get(
		s.index,
		uid,
		s.es.Get.WithContext(ctx),
		s.es.Get.WithSourceIncludes("embedding"),
	)
	var body dsl.GetResponse[dsl.EmbeddingSource]
	if err := decode("get_embedding", uid, res, err, &body); err != nil {
		return common.EmbeddingRecord{}, err
	}
	if !body.Found || len(body.Source.Embedding) == 0 {
		return common.EmbeddingRecord{}, common.NewNotFoundError("get_embedding", uid)
	}
	return common.EmbeddingRecord{UID: uid, Embedding: body.Source.Embedding}, nil
}

func (s *Store) VectorTopK(ctx context.Context, q store.KNNQuery) ([]common.ScoredCandidate, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(esutil.NewJSONReader(knnBody(q))),
		s.es.Search.WithSourceIncludes("title"),
	)
	var body dsl.SearchResponse[dsl.TitleSource]
	if err := decode("vector_top_k", "", res, err, &body); err != nil {
		return nil, err
	}
	return dsl.Scored(body.Hits.Hits, q.RoundDecimal), nil
}

// knnBody uses the top-level knn search section of Elasticsearch 8.
func knnBody(q store.KNNQuery) map[string]any {
	knn := map[string]any{
		"field":          "embedding",
		"query_vector":   q.Vector,
		"k":              q.K,
		"num_candidates": q.NumCandidates,
	}
	if filters := dsl.FieldFilters(q); len(filters) > 0 {
		knn["filter"] = filters
	}

	return map[string]any{
		"size": q.K,
		"knn":  knn,
	}
}

func (s *Store) FullTextSearch(ctx context.Context, query string, limit int) ([]common.Document, error) {
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(esutil.NewJSONReader(dsl.TitleMatchBody(query, limit))),
		s.es.Search.WithSourceExcludes(dsl.ExcludedFields...),
	)
	var body dsl.SearchResponse[common.Document]
	if err := decode("full_text_search", query, res, err, &body); err != nil {
		return nil, err
	}
	return dsl.Documents(body.Hits.Hits), nil
}

func (s *Store) AggregateTerms(ctx context.Context, field string, year int) ([]common.FieldBucket, error) {
	if err := store.ValidateAggregationField(field); err != nil {
		return nil, err
	}
	var body dsl.SearchResponse[struct{}]
	if err := s.aggregate(ctx, field, dsl.TermsBody(field, year), &body); err != nil {
		return nil, err
	}
	return dsl.FieldBuckets(body.Aggregations)
}

func (s *Store) AggregateNested(ctx context.Context, outerField, innerField string, year int) ([]common.NestedBucket, error) {
	if err := store.ValidateAggregationField(outerField); err != nil {
		return nil, err
	}
	if err := store.ValidateAggregationField(innerField); err != nil {
		return nil, err
	}
	var body dsl.SearchResponse[struct{}]
	if err := s.aggregate(ctx, outerField+">"+innerField, dsl.NestedBody(outerField, innerField, year), &body); err != nil {
		return nil, err
	}
	return dsl.NestedBuckets(body.Aggregations)
}

func (s *Store) aggregate(ctx context.Context, subject string, req map[string]any, out any) error {
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(esutil.NewJSONReader(req)),
	)
	return decode("aggregate", subject, res, err, out)
}

func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	res, err := s.es.Count(
		s.es.Count.WithContext(ctx),
		s.es.Count.WithIndex(s.index),
	)
	var body struct {
		Count int64 `json:"count"`
	}
	if err := decode("count", s.index, res, err, &body); err != nil {
		return 0, err
	}
	return body.Count, nil
}

func (s *Store) Ping(ctx context.Context) error {
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	return decode("ping", "", res, err, nil)
}

func decode(op, subject string, res *esapi.Response, err error, out any) error {
	if err != nil {
		return dsl.Decode(op, subject, 0, nil, err, out)
	}
	return dsl.Decode(op, subject, res.StatusCode, res.Body, nil, out)
}
