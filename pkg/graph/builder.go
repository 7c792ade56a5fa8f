package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/ndltd-tw/papergraph/pkg/common"
	"github.com/ndltd-tw/papergraph/pkg/logger"
	"github.com/ndltd-tw/papergraph/pkg/metrics"
	"github.com/ndltd-tw/papergraph/pkg/store"

	"golang.org/x/sync/errgroup"
)

// Builder expands a seed document into a layered similarity network. A
// Builder holds no per-request state and may be shared between requests.
type Builder struct {
	store        store.DocumentStore
	roundDecimal int
	parallelism  int
	metrics      bool
}

type BuilderOption func(*Builder)

// WithRoundDecimal sets the number of decimal places edge scores are
// rounded to.
func WithRoundDecimal(n int) BuilderOption {
	return func(b *Builder) {
		b.roundDecimal = n
	}
}

// WithParallelism sets how many frontier members of one layer are
// expanded concurrently. Values below 1 mean sequential expansion.
func WithParallelism(n int) BuilderOption {
	return func(b *Builder) {
		b.parallelism = max(n, 1)
	}
}

func WithMetrics(enabled bool) BuilderOption {
	return func(b *Builder) {
		b.metrics = enabled
	}
}

func NewBuilder(s store.DocumentStore, opts ...BuilderOption) *Builder {
	b := &Builder{
		store:        s,
		roundDecimal: common.DefaultRoundDecimal,
		parallelism:  1,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(b)
	}
	return b
}

// Build runs a breadth-first expansion from seedUID. Layers 0 through
// maxLayer are expanded, so nodes can reach layer maxLayer+1. Every
// candidate returned by the store yields an edge, while a node is only
// recorded the first time its uid is discovered.
//
// Any store failure aborts the build and no partial network is returned.
func (b *Builder) Build(ctx context.Context, seedUID string, maxLayer, perLayerResults int) (*common.NetworkResult, error) {
	if err := b.validate(seedUID, maxLayer, perLayerResults); err != nil {
		return nil, err
	}
	start := time.Now()

	nodes := []common.Node{{UID: seedUID, Layer: 0}}
	edges := make([]common.Edge, 0)
	seen := map[string]struct{}{seedUID: {}}

	for layer := 0; layer <= maxLayer; layer++ {
		frontier := make([]string, 0)
		for _, n := range nodes {
			if n.Layer == layer {
				frontier = append(frontier, n.UID)
			}
		}
		if len(frontier) == 0 {
			break
		}

		expansions, err := b.expandFrontier(ctx, frontier, perLayerResults)
		if err != nil {
			return nil, err
		}

		for i, uid := range frontier {
			candidates := expansions[i]
			discovered := make([]string, 0, len(candidates))
			for _, c := range candidates {
				edges = append(edges, common.Edge{Source: uid, Target: c.UID, Score: c.Score})
				if _, ok := seen[c.UID]; !ok {
					nodes = append(nodes, common.Node{UID: c.UID, Layer: layer + 1})
					discovered = append(discovered, c.UID)
				}
			}
			for _, d := range discovered {
				seen[d] = struct{}{}
			}
		}

		logger.Debug("Expanded similarity layer", "seed", seedUID, "layer", layer, "frontier", len(frontier), "nodes", len(nodes), "edges", len(edges))
	}

	nodes = dedupeNodes(nodes)
	uids := make([]string, len(nodes))
	for i, n := range nodes {
		uids[i] = n.UID
	}

	docs, err := b.store.FetchDocuments(ctx, uids)
	if err != nil {
		return nil, err
	}

	if b.metrics {
		metrics.ObserveNetworkBuild(start, len(nodes), len(edges))
	}

	return &common.NetworkResult{
		Nodes:     nodes,
		Edges:     edges,
		Documents: docs,
	}, nil
}

func (b *Builder) validate(seedUID string, maxLayer, perLayerResults int) error {
	if seedUID == "" {
		return common.NewValidationError("build_network", "uid", "must not be empty")
	}
	if maxLayer < 0 {
		return common.NewValidationError("build_network", "layer", "must not be negative")
	}
	if perLayerResults < 1 {
		return common.NewValidationError("build_network", "n_results", "must be at least 1")
	}
	return common.ValidateRoundDecimal(b.roundDecimal)
}

// expandFrontier fetches the neighbours of every frontier member. The
// result is indexed like frontier regardless of completion order.
func (b *Builder) expandFrontier(ctx context.Context, frontier []string, k int) ([][]common.ScoredCandidate, error) {
	out := make([][]common.ScoredCandidate, len(frontier))

	if b.parallelism <= 1 || len(frontier) == 1 {
		for i, uid := range frontier {
			res, err := b.neighbours(ctx, uid, store.KNNQuery{K: k, NumCandidates: k})
			if err != nil {
				return nil, err
			}
			out[i] = res
		}
		return out, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)
	for i, uid := range frontier {
		g.Go(func() error {
			res, err := b.neighbours(gCtx, uid, store.KNNQuery{K: k, NumCandidates: k})
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// neighbours looks up the embedding of uid and runs q with it. Unset
// rounding falls back to the builder's setting.
func (b *Builder) neighbours(ctx context.Context, uid string, q store.KNNQuery) ([]common.ScoredCandidate, error) {
	rec, err := b.store.FetchEmbedding(ctx, uid)
	if err != nil {
		return nil, err
	}
	q.Vector = rec.Embedding
	if q.RoundDecimal == 0 {
		q.RoundDecimal = b.roundDecimal
	}
	res, err := b.store.VectorTopK(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbours of %s: %w", uid, err)
	}
	return res, nil
}

// RelatedQuery selects the nearest neighbours of a single document.
type RelatedQuery struct {
	K             int
	NarrowField   string
	DetailedField string
	RoundDecimal  int
}

// Related returns the nearest neighbours of uid, optionally restricted to
// a narrow or detailed field. The document itself is not filtered out.
func (b *Builder) Related(ctx context.Context, uid string, q RelatedQuery) ([]common.ScoredCandidate, error) {
	if uid == "" {
		return nil, common.NewValidationError("related", "uid", "must not be empty")
	}
	if q.K < 1 {
		return nil, common.NewValidationError("related", "k", "must be at least 1")
	}
	if q.RoundDecimal != 0 {
		if err := common.ValidateRoundDecimal(q.RoundDecimal); err != nil {
			return nil, err
		}
	}
	return b.neighbours(ctx, uid, store.KNNQuery{
		K:             q.K,
		NumCandidates: q.K,
		NarrowField:   q.NarrowField,
		DetailedField: q.DetailedField,
		RoundDecimal:  q.RoundDecimal,
	})
}

// dedupeNodes keeps the first occurrence of every uid.
func dedupeNodes(nodes []common.Node) []common.Node {
	seen := make(map[string]struct{}, len(nodes))
	out := make([]common.Node, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := seen[n.UID]; ok {
			continue
		}
		seen[n.UID] = struct{}{}
		out = append(out, n)
	}
	return out
}
