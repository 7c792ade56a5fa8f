// Package dsl holds the query bodies and response shapes shared by the
// Elasticsearch and OpenSearch gateways. Both engines speak the same
// document, search and aggregation dialect; only the vector query differs.
package dsl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ndltd-tw/papergraph/pkg/common"
	"github.com/ndltd-tw/papergraph/pkg/store"
)

// DefaultIndex is the index holding the thesis corpus.
const DefaultIndex = "ndltd"

// MgetChunkSize bounds the number of ids sent in one _mget request.
const MgetChunkSize = 500

// ExcludedFields are never returned with a document.
var ExcludedFields = []string{"embedding", "advisor", "title_ws", "abstract_ws"}

type GetResponse[T any] struct {
	ID     string `json:"_id"`
	Found  bool   `json:"found"`
	Source T      `json:"_source"`
}

type MgetResponse[T any] struct {
	Docs []GetResponse[T] `json:"docs"`
}

type SearchHit[T any] struct {
	ID     string  `json:"_id"`
	Score  float64 `json:"_score"`
	Source T       `json:"_source"`
}

type SearchResponse[T any] struct {
	Hits struct {
		Hits []SearchHit[T] `json:"hits"`
	} `json:"hits"`
	Aggregations json.RawMessage `json:"aggregations"`
}

type EmbeddingSource struct {
	Embedding []float32 `json:"embedding"`
}

type TitleSource struct {
	Title string `json:"title"`
}

func Term(field string, value any) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

// FieldFilters returns the exact-match filters of a vector query.
func FieldFilters(q store.KNNQuery) []map[string]any {
	filters := make([]map[string]any, 0, 2)
	if q.NarrowField != "" {
		filters = append(filters, Term(common.FieldNarrowField, q.NarrowField))
	}
	if q.DetailedField != "" {
		filters = append(filters, Term(common.FieldDetailedField, q.DetailedField))
	}
	return filters
}

// IdsBody is the _mget body for ids.
func IdsBody(ids []string) map[string]any {
	return map[string]any{"ids": ids}
}

// TitleMatchBody is the full text query on titles.
func TitleMatchBody(query string, limit int) map[string]any {
	return map[string]any{
		"size":  limit,
		"query": map[string]any{"match": map[string]any{"title": query}},
	}
}

func yearFilter(year int) map[string]any {
	return map[string]any{
		"bool": map[string]any{
			"filter": Term(common.FieldGraduatedAcademicYear, year),
		},
	}
}

// TermsBody counts documents of one graduation year per value of field.
func TermsBody(field string, year int) map[string]any {
	return map[string]any{
		"size":  0,
		"query": yearFilter(year),
		"aggs": map[string]any{
			"outer": map[string]any{"terms": map[string]any{"field": field}},
		},
	}
}

// NestedBody counts documents per inner value within each outer value.
func NestedBody(outerField, innerField string, year int) map[string]any {
	return map[string]any{
		"size":  0,
		"query": yearFilter(year),
		"aggs": map[string]any{
			"outer": map[string]any{
				"terms": map[string]any{"field": outerField},
				"aggs": map[string]any{
					"inner": map[string]any{"terms": map[string]any{"field": innerField}},
				},
			},
		},
	}
}

type termsBucket struct {
	Key      json.RawMessage `json:"key"`
	DocCount int64           `json:"doc_count"`
	Inner    *struct {
		Buckets []termsBucket `json:"buckets"`
	} `json:"inner"`
}

func (b termsBucket) fieldBucket() common.FieldBucket {
	return common.FieldBucket{Key: bucketKey(b.Key), DocCount: b.DocCount}
}

// bucketKey renders a bucket key as a string. Keyword fields produce JSON
// strings, numeric fields produce JSON numbers which are kept verbatim.
func bucketKey(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func outerBuckets(raw json.RawMessage) ([]termsBucket, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var aggs struct {
		Outer struct {
			Buckets []termsBucket `json:"buckets"`
		} `json:"outer"`
	}
	if err := json.Unmarshal(raw, &aggs); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation response: %w", err)
	}
	return aggs.Outer.Buckets, nil
}

// FieldBuckets decodes the aggregations of a TermsBody search.
func FieldBuckets(raw json.RawMessage) ([]common.FieldBucket, error) {
	buckets, err := outerBuckets(raw)
	if err != nil {
		return nil, err
	}
	out := make([]common.FieldBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b.fieldBucket())
	}
	return out, nil
}

// NestedBuckets decodes the aggregations of a NestedBody search.
func NestedBuckets(raw json.RawMessage) ([]common.NestedBucket, error) {
	buckets, err := outerBuckets(raw)
	if err != nil {
		return nil, err
	}
	out := make([]common.NestedBucket, 0, len(buckets))
	for _, b := range buckets {
		nb := common.NestedBucket{FieldBucket: b.fieldBucket(), Inner: []common.FieldBucket{}}
		if b.Inner != nil {
			for _, ib := range b.Inner.Buckets {
				nb.Inner = append(nb.Inner, ib.fieldBucket())
			}
		}
		out = append(out, nb)
	}
	return out, nil
}

// Scored converts vector search hits into rounded candidates.
func Scored(hits []SearchHit[TitleSource], roundDecimal int) []common.ScoredCandidate {
	out := make([]common.ScoredCandidate, 0, len(hits))
	for _, hit := range hits {
		out = append(out, common.ScoredCandidate{
			UID:   hit.ID,
			Title: hit.Source.Title,
			Score: common.RoundScore(hit.Score, roundDecimal),
		})
	}
	return out
}

// Documents converts search hits into documents, filling a missing uid
// from the hit id.
func Documents(hits []SearchHit[common.Document]) []common.Document {
	out := make([]common.Document, 0, len(hits))
	for _, hit := range hits {
		doc := hit.Source
		if doc.UID == "" {
			doc.UID = hit.ID
		}
		out = append(out, doc)
	}
	return out
}

// Decode turns a round trip into either a decoded body or a typed error.
// Transport failures and 5xx answers are upstream errors, 404 means the
// subject does not exist and 400 means the engine rejected the query.
func Decode(op, subject string, status int, body io.ReadCloser, err error, out any) error {
	if err != nil {
		return common.NewUpstreamError(op, subject, err)
	}
	defer body.Close()

	if status > 299 {
		reason := errorReason(body)
		switch status {
		case http.StatusNotFound:
			return common.NewNotFoundError(op, subject)
		case http.StatusBadRequest:
			return common.NewValidationError(op, subject, reason)
		default:
			return common.NewUpstreamError(op, subject, fmt.Errorf("status %d: %s", status, reason))
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, body)
		return nil
	}
	if err := json.NewDecoder(body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

func errorReason(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(raw) == 0 {
		return "unknown error"
	}
	var body struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Reason != "" {
		return body.Error.Type + ": " + body.Error.Reason
	}
	return string(raw)
}

// CollectDocuments fetches uids through mget in chunks of MgetChunkSize.
// It fails with common.ErrNotFound on the first missing uid.
func CollectDocuments(uids []string, mget func(ids []string) ([]GetResponse[common.Document], error)) (map[string]common.Document, error) {
	uids = store.DedupeStrings(uids)
	out := make(map[string]common.Document, len(uids))

	err := store.ChunkRange(len(uids), MgetChunkSize, func(start, end int) error {
		docs, err := mget(uids[start:end])
		if err != nil {
			return err
		}
		for _, d := range docs {
			if !d.Found {
				return common.NewNotFoundError("mget", d.ID)
			}
			if d.Source.UID == "" {
				d.Source.UID = d.ID
			}
			out[d.ID] = d.Source
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, uid := range uids {
		if _, ok := out[uid]; !ok {
			return nil, common.NewNotFoundError("mget", uid)
		}
	}
	return out, nil
}
