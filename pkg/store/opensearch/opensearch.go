package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/ndltd-tw/papergraph/pkg/common"
	"github.com/ndltd-tw/papergraph/pkg/store"
	"github.com/ndltd-tw/papergraph/pkg/store/dsl"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"
)

// Store implements store.DocumentStore on top of an OpenSearch index with
// the k-NN plugin enabled and a knn_vector field named "embedding".
type Store struct {
	client *opensearch.Client
	index  string
}

var _ store.DocumentStore = (*Store)(nil)

// NewStoreParams configures the connection to the cluster.
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

	cfg := opensearch.Config{
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

	client, err := opensearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}

	return &Store{client: client, index: index}, nil
}

func (s *Store) FetchDocument(ctx context.Context, uid string) (common.Document, error) {
	res, err := s.client.Get(
		s.index,
		uid,
		s.client.Get.WithContext(ctx),
		s.client.Get.WithSourceExcludes(dsl.ExcludedFields...),
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
		res, err := s.client.Mget(
			opensearchutil.NewJSONReader(dsl.IdsBody(ids)),
			s.client.Mget.WithContext(ctx),
			s.client.Mget.WithIndex(s.index),
			s.client.Mget.WithSourceExcludes(dsl.ExcludedFields...),
		)
		var body dsl.MgetResponse[common.Document]
		if err := decode("mget", ids[0], res, err, &body); err != nil {
			return nil, err
		}
		return body.Docs, nil
	})
}

func (s *Store) FetchEmbedding(ctx context.Context, uid string) (common.EmbeddingRecord, error) {
	res, err := s.client.Get(
		s.index,
		uid,
		s.client.Get.WithContext(ctx),
		s.client.Get.WithSourceIncludes("embedding"),
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

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(opensearchutil.NewJSONReader(knnBody(q))),
		s.client.Search.WithSourceIncludes("title"),
	)
	var body dsl.SearchResponse[dsl.TitleSource]
	if err := decode("vector_top_k", "", res, err, &body); err != nil {
		return nil, err
	}
	return dsl.Scored(body.Hits.Hits, q.RoundDecimal), nil
}

// knnBody uses the knn query clause of the k-NN plugin. Field filters go
// inside the clause so they apply before the top k are picked.
func knnBody(q store.KNNQuery) map[string]any {
	embedding := map[string]any{
		"vector": q.Vector,
		"k":      q.K,
	}
	if filters := dsl.FieldFilters(q); len(filters) > 0 {
		embedding["filter"] = map[string]any{
			"bool": map[string]any{"must": filters},
		}
	}

	return map[string]any{
		"size": q.K,
		"query": map[string]any{
			"knn": map[string]any{"embedding": embedding},
		},
	}
}

func (s *Store) FullTextSearch(ctx context.Context, query string, limit int) ([]common.Document, error) {
	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(opensearchutil.NewJSONReader(dsl.TitleMatchBody(query, limit))),
		s.client.Search.WithSourceExcludes(dsl.ExcludedFields...),
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
	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(opensearchutil.NewJSONReader(req)),
	)
	return decode("aggregate", subject, res, err, out)
}

func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	res, err := s.client.Count(
		s.client.Count.WithContext(ctx),
		s.client.Count.WithIndex(s.index),
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
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	return decode("ping", "", res, err, nil)
}

func decode(op, subject string, res *opensearchapi.Response, err error, out any) error {
	if err != nil {
		return dsl.Decode(op, subject, 0, nil, err, out)
	}
	return dsl.Decode(op, subject, res.StatusCode, res.Body, nil, out)
}
