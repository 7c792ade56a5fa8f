package pgx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ndltd-tw/papergraph/pkg/common"
	"github.com/ndltd-tw/papergraph/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// maxEfSearch is the largest candidate pool accepted by the hnsw index.
const maxEfSearch = 1000

// aggregationBucketLimit mirrors the default size of a terms aggregation.
const aggregationBucketLimit = 10

const documentColumns = `uid,
	COALESCE(title, ''),
	COALESCE(abstract, ''),
	COALESCE(author, ''),
	COALESCE(degree, ''),
	COALESCE(institution, ''),
	COALESCE(department, ''),
	narrow_field,
	detailed_field,
	COALESCE(graduated_academic_year, 0),
	COALESCE(url, ''),
	COALESCE(keywords, '{}'),
	COALESCE(types_of_paper, ''),
	COALESCE(language, '')`

// Store implements store.DocumentStore on PostgreSQL with pgvector. Every
// document is a row of the documents table; similarity uses cosine
// distance on the embedding column.
type Store struct {
	conn pgxIConn
	pool *pgxpool.Pool
}

var _ store.DocumentStore = (*Store)(nil)

// Open connects to databaseURL and registers the pgvector types on every
// new connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgxv5.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &Store{conn: pool, pool: pool}, nil
}

// NewStoreWithConnection creates a Store on an existing connection or
// transaction. The caller owns the connection.
func NewStoreWithConnection(conn pgxIConn) *Store {
	return &Store{conn: conn}
}

// Close releases the pool opened by Open.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func scanDocument(row pgxv5.Row) (common.Document, error) {
	var d common.Document
	err := row.Scan(
		&d.UID,
		&d.Title,
		&d.Abstract,
		&d.Author,
		&d.Degree,
		&d.Institution,
		&d.Department,
		&d.NarrowField,
		&d.DetailedField,
		&d.GraduatedAcademicYear,
		&d.URL,
		&d.Keywords,
		&d.TypesOfPaper,
		&d.Language,
	)
	return d, err
}

func (s *Store) FetchDocument(ctx context.Context, uid string) (common.Document, error) {
	row := s.conn.QueryRow(ctx, "SELECT "+documentColumns+" FROM documents WHERE uid = $1", uid)
	doc, err := scanDocument(row)
	if err != nil {
		return common.Document{}, mapError("get", uid, err)
	}
	return doc, nil
}

func (s *Store) FetchDocuments(ctx context.Context, uids []string) (map[string]common.Document, error) {
	uids = store.DedupeStrings(uids)
	out := make(map[string]common.Document, len(uids))
	if len(uids) == 0 {
		return out, nil
	}

	rows, err := s.conn.Query(ctx, "SELECT "+documentColumns+" FROM documents WHERE uid = ANY($1)", uids)
	if err != nil {
		return nil, mapError("mget", uids[0], err)
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, mapError("mget", "", err)
		}
		out[doc.UID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("mget", "", err)
	}

	for _, uid := range uids {
		if _, ok := out[uid]; !ok {
			return nil, common.NewNotFoundError("mget", uid)
		}
	}
	return out, nil
}

func (s *Store) FetchEmbedding(ctx context.Context, uid string) (common.EmbeddingRecord, error) {
	var vec pgvector.Vector
	err := s.conn.QueryRow(ctx,
		"SELECT embedding FROM documents WHERE uid = $1 AND embedding IS NOT NULL", uid,
	).Scan(&vec)
	if err != nil {
		return common.EmbeddingRecord{}, mapError("get_embedding", uid, err)
	}
	return common.EmbeddingRecord{UID: uid, Embedding: vec.Slice()}, nil
}

const vectorTopKQuery = `
SELECT uid, COALESCE(title, ''), 1 - (embedding <=> $1) AS score
FROM documents
WHERE embedding IS NOT NULL
	AND ($2::text IS NULL OR narrow_field = $2)
	AND ($3::text IS NULL OR detailed_field = $3)
ORDER BY embedding <=> $1
LIMIT $4`

func (s *Store) VectorTopK(ctx context.Context, q store.KNNQuery) ([]common.ScoredCandidate, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, mapError("vector_top_k", "", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", efSearch(q.NumCandidates))); err != nil {
		return nil, mapError("vector_top_k", "", err)
	}

	rows, err := tx.Query(ctx, vectorTopKQuery,
		pgvector.NewVector(q.Vector),
		nullableText(q.NarrowField),
		nullableText(q.DetailedField),
		q.K,
	)
	if err != nil {
		return nil, mapError("vector_top_k", "", err)
	}

	out := make([]common.ScoredCandidate, 0, q.K)
	for rows.Next() {
		var c common.ScoredCandidate
		if err := rows.Scan(&c.UID, &c.Title, &c.Score); err != nil {
			rows.Close()
			return nil, mapError("vector_top_k", "", err)
		}
		c.Score = common.RoundScore(c.Score, q.RoundDecimal)
		out = append(out, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, mapError("vector_top_k", "", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapError("vector_top_k", "", err)
	}
	return out, nil
}

// efSearch clamps the candidate pool to the range accepted by hnsw.
func efSearch(numCandidates int) int {
	return max(1, min(numCandidates, maxEfSearch))
}

func nullableText(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

const fullTextQuery = `
SELECT ` + documentColumns + `
FROM documents
WHERE to_tsvector('simple', title) @@ plainto_tsquery('simple', $1)
ORDER BY ts_rank(to_tsvector('simple', title), plainto_tsquery('simple', $1)) DESC, uid
LIMIT $2`

func (s *Store) FullTextSearch(ctx context.Context, query string, limit int) ([]common.Document, error) {
	rows, err := s.conn.Query(ctx, fullTextQuery, query, limit)
	if err != nil {
		return nil, mapError("full_text_search", query, err)
	}
	defer rows.Close()

	out := make([]common.Document, 0, limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, mapError("full_text_search", query, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("full_text_search", query, err)
	}
	return out, nil
}

// termsQuery builds the grouping query for one whitelisted column. Column
// names cannot be bound as parameters, so only whitelisted fields are
// interpolated.
func termsQuery(field string) (string, error) {
	if err := store.ValidateAggregationField(field); err != nil {
		return "", err
	}
	return fmt.Sprintf(`
SELECT %[1]s::text AS bucket_key, count(*) AS doc_count
FROM documents
WHERE graduated_academic_year = $1 AND %[1]s IS NOT NULL
GROUP BY %[1]s
ORDER BY doc_count DESC, bucket_key
LIMIT %[2]d`, field, aggregationBucketLimit), nil
}

func nestedTermsQuery(outerField, innerField string) (string, error) {
	if err := store.ValidateAggregationField(outerField); err != nil {
		return "", err
	}
	if err := store.ValidateAggregationField(innerField); err != nil {
		return "", err
	}
	return fmt.Sprintf(`
WITH ob AS (
	SELECT %[1]s::text AS bucket_key, count(*) AS doc_count
	FROM documents
	WHERE graduated_academic_year = $1 AND %[1]s IS NOT NULL
	GROUP BY %[1]s
	ORDER BY doc_count DESC, bucket_key
	LIMIT %[3]d
)
SELECT ob.bucket_key, ob.doc_count, ib.bucket_key, ib.doc_count
FROM ob
LEFT JOIN LATERAL (
	SELECT d.%[2]s::text AS bucket_key, count(*) AS doc_count
	FROM documents d
	WHERE d.graduated_academic_year = $1
		AND d.%[1]s::text = ob.bucket_key
		AND d.%[2]s IS NOT NULL
	GROUP BY d.%[2]s
	ORDER BY doc_count DESC, bucket_key
	LIMIT %[3]d
) ib ON true
ORDER BY ob.doc_count DESC, ob.bucket_key, ib.doc_count DESC, ib.bucket_key`,
		outerField, innerField, aggregationBucketLimit), nil
}

func (s *Store) AggregateTerms(ctx context.Context, field string, year int) ([]common.FieldBucket, error) {
	sql, err := termsQuery(field)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, sql, year)
	if err != nil {
		return nil, mapError("aggregate", field, err)
	}
	defer rows.Close()

	out := make([]common.FieldBucket, 0, aggregationBucketLimit)
	for rows.Next() {
		var b common.FieldBucket
		if err := rows.Scan(&b.Key, &b.DocCount); err != nil {
			return nil, mapError("aggregate", field, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("aggregate", field, err)
	}
	return out, nil
}

type nestedRow struct {
	outerKey   string
	outerCount int64
	innerKey   *string
	innerCount *int64
}

// groupNestedRows folds the flat join result into nested buckets, keeping
// row order for both levels.
func groupNestedRows(rows []nestedRow) []common.NestedBucket {
	out := make([]common.NestedBucket, 0)
	for _, r := range rows {
		if len(out) == 0 || out[len(out)-1].Key != r.outerKey {
			out = append(out, common.NestedBucket{
				FieldBucket: common.FieldBucket{Key: r.outerKey, DocCount: r.outerCount},
				Inner:       []common.FieldBucket{},
			})
		}
		if r.innerKey == nil || r.innerCount == nil {
			continue
		}
		last := &out[len(out)-1]
		last.Inner = append(last.Inner, common.FieldBucket{Key: *r.innerKey, DocCount: *r.innerCount})
	}
	return out
}

func (s *Store) AggregateNested(ctx context.Context, outerField, innerField string, year int) ([]common.NestedBucket, error) {
	sql, err := nestedTermsQuery(outerField, innerField)
	if err != nil {
		return nil, err
	}
	subject := outerField + ">" + innerField

	rows, err := s.conn.Query(ctx, sql, year)
	if err != nil {
		return nil, mapError("aggregate", subject, err)
	}
	defer rows.Close()

	flat := make([]nestedRow, 0)
	for rows.Next() {
		var r nestedRow
		if err := rows.Scan(&r.outerKey, &r.outerCount, &r.innerKey, &r.innerCount); err != nil {
			return nil, mapError("aggregate", subject, err)
		}
		flat = append(flat, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("aggregate", subject, err)
	}
	return groupNestedRows(flat), nil
}

func (s *Store) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	if err := s.conn.QueryRow(ctx, "SELECT count(*) FROM documents").Scan(&n); err != nil {
		return 0, mapError("count", "documents", err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.pool != nil {
		if err := s.pool.Ping(ctx); err != nil {
			return mapError("ping", "", err)
		}
		return nil
	}
	if _, err := s.conn.Exec(ctx, "SELECT 1"); err != nil {
		return mapError("ping", "", err)
	}
	return nil
}

// mapError converts driver errors into typed errors. Data exceptions and
// syntax errors are caller mistakes, everything else is an upstream fault.
func mapError(op, subject string, err error) error {
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.NewNotFoundError(op, subject)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "42") {
			return common.NewValidationError(op, subject, pgErr.Message)
		}
	}
	return common.NewUpstreamError(op, subject, err)
}
